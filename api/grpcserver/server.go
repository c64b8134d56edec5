package grpcserver

import (
	"context"
	"log"

	pb "lethe/api/pb"
	"lethe/service"
)

// Server adapts StoreService to gRPC.
type Server struct {
	svc *service.StoreService
}

func NewServer(svc *service.StoreService) *Server {
	return &Server{svc: svc}
}

// -------------------- Commands --------------------

func (s *Server) Put(ctx context.Context, req *pb.PutRequest) (*pb.PutResponse, error) {
	seq, err := s.svc.Put(ctx, req.Key, req.Data)
	if err != nil {
		return nil, err
	}

	log.Printf("[gRPC] Put key=%q bytes=%d seq=%d", req.Key, len(req.Data), seq)

	return &pb.PutResponse{Status: "ok", Seq: seq}, nil
}

func (s *Server) Delete(ctx context.Context, req *pb.DeleteRequest) (*pb.DeleteResponse, error) {
	existed, seq, err := s.svc.Delete(ctx, req.Key)
	if err != nil {
		return nil, err
	}

	log.Printf("[gRPC] Delete key=%q existed=%v seq=%d", req.Key, existed, seq)

	return &pb.DeleteResponse{Status: "ok", Existed: existed, Seq: seq}, nil
}

// -------------------- Queries --------------------

func (s *Server) Get(ctx context.Context, req *pb.GetRequest) (*pb.GetResponse, error) {
	data, seq, ok := s.svc.Get(req.Key)
	if !ok {
		return &pb.GetResponse{Found: false}, nil
	}
	return &pb.GetResponse{Found: true, Data: data, Seq: seq}, nil
}

func (s *Server) Stats(ctx context.Context, req *pb.StatsRequest) (*pb.StatsResponse, error) {
	st := s.svc.Stats()
	return &pb.StatsResponse{
		Keys:           st.Keys,
		Retired:        st.Retired,
		PendingEntries: int64(st.PendingEntries),
		RingBacklog:    int64(st.RingBacklog),
		ActiveReaders:  st.ActiveReaders,
	}, nil
}
