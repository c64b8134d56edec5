package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"lethe/api/grpcserver"
	pb "lethe/api/pb"
	"lethe/infra/kafka"
	"lethe/infra/sequence"
	"lethe/jobs/broadcaster"
	"lethe/journal"
	"lethe/service"
	"lethe/wal"
)

func main() {
	var (
		addr         = flag.String("addr", ":50051", "gRPC listen address")
		walDir       = flag.String("wal-dir", "./wal_data", "WAL directory")
		journalDir   = flag.String("journal-dir", "./journal_data", "reclamation journal directory")
		grace        = flag.Duration("grace", 2*time.Second, "reader grace period")
		brokers      = flag.String("brokers", "", "comma-separated Kafka brokers (empty disables Kafka)")
		updateTopic  = flag.String("update-topic", "lethe.updates", "update event topic")
		reclaimTopic = flag.String("reclaim-topic", "lethe.reclaimed", "reclamation event topic")
	)
	flag.Parse()

	// ---------------- WAL ----------------

	w, err := wal.New(wal.Config{
		Dir:             *walDir,
		SegmentSize:     2 * 1024 * 1024,
		SegmentDuration: time.Minute,
		FlushInterval:   100 * time.Millisecond,
	})
	if err != nil {
		log.Fatalf("WAL init failed: %v", err)
	}

	// ---------------- Journal ----------------

	j, err := journal.Open(*journalDir)
	if err != nil {
		log.Fatalf("journal init failed: %v", err)
	}
	defer j.Close()

	// ---------------- Kafka ----------------

	var producer *kafka.Producer
	var brokerList []string
	if *brokers != "" {
		brokerList = strings.Split(*brokers, ",")
		producer = kafka.NewProducer(brokerList, *updateTopic)
		defer producer.Close()
	}

	// ---------------- Sequencer ----------------

	seqGen := sequence.New(0)

	// ---------------- Service ----------------

	svc, err := service.New(service.Config{
		GracePeriod: *grace,
		WAL:         w,
		Sequencer:   seqGen,
		Journal:     j,
		Producer:    producer,
	})
	if err != nil {
		log.Fatalf("service init failed: %v", err)
	}

	// ---------------- WAL REPLAY ----------------

	if err := svc.Replay(); err != nil {
		log.Fatalf("WAL replay failed: %v", err)
	}

	// ---------------- Background Jobs ----------------

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc.Start(ctx)

	if len(brokerList) > 0 {
		bc, err := broadcaster.New(j, brokerList, *reclaimTopic)
		if err != nil {
			log.Fatalf("broadcaster init failed: %v", err)
		}
		defer bc.Close()
		bc.Start(ctx)
	}

	// ---------------- gRPC ----------------

	lis, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Fatalf("listen failed: %v", err)
	}

	grpcSrv := grpc.NewServer(grpc.ForceServerCodec(pb.Codec{}))
	grpcserver.Register(grpcSrv, grpcserver.NewServer(svc))

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Println("[main] shutting down")
		grpcSrv.GracefulStop()
	}()

	log.Printf("[main] lethe store running on %s (grace period %v)", *addr, *grace)

	if err := grpcSrv.Serve(lis); err != nil {
		log.Fatalf("gRPC server exited: %v", err)
	}

	cancel()
	if err := svc.Close(); err != nil {
		log.Printf("[main] close: %v", err)
	}
}
