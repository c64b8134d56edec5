// Package broadcaster drains the reclamation journal and publishes
// each event to Kafka. Records move NEW → SENT → ACKED around the
// publish; anything short of ACKED is picked up again on the next
// tick, so consumers must tolerate duplicates.
package broadcaster

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"lethe/journal"

	"github.com/IBM/sarama"
)

type Broadcaster struct {
	journal  *journal.Journal
	producer sarama.SyncProducer
	topic    string
	interval time.Duration
}

// Event is the published reclamation notice.
type Event struct {
	V    int    `json:"v"`
	Type string `json:"type"`
	Key  string `json:"key"`
	Seq  uint64 `json:"seq"`
}

func New(j *journal.Journal, brokers []string, topic string) (*Broadcaster, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}

	return &Broadcaster{
		journal:  j,
		producer: producer,
		topic:    topic,
		interval: 250 * time.Millisecond,
	}, nil
}

func (b *Broadcaster) Start(ctx context.Context) {
	log.Println("[broadcaster] started")

	go func() {
		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return

			case <-ticker.C:
				b.drainOnce()
			}
		}
	}()
}

// drainOnce publishes every NEW record, then retries anything stuck in
// SENT from an earlier crash between publish and ack.
func (b *Broadcaster) drainOnce() {
	b.publishState(journal.StateNew)
	b.publishState(journal.StateSent)
}

func (b *Broadcaster) publishState(state journal.State) {
	_ = b.journal.ScanByState(state, func(seq uint64, rec journal.Record) error {
		if err := b.journal.UpdateState(seq, journal.StateSent, rec.Retries+1); err != nil {
			return nil
		}

		payload, err := json.Marshal(Event{
			V:    1,
			Type: "reclaimed",
			Key:  rec.Key,
			Seq:  seq,
		})
		if err != nil {
			return nil
		}

		msg := &sarama.ProducerMessage{
			Topic: b.topic,
			Value: sarama.ByteEncoder(payload),
		}
		if _, _, err := b.producer.SendMessage(msg); err != nil {
			return nil // retry next tick
		}

		_ = b.journal.UpdateState(seq, journal.StateAcked, rec.Retries+1)
		_ = b.journal.Delete(seq)
		return nil
	})
}

func (b *Broadcaster) Close() error {
	return b.producer.Close()
}
