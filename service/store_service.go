package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"lethe/infra/kafka"
	"lethe/infra/sequence"
	"lethe/journal"
	"lethe/store"
	"lethe/wal"
)

/*
StoreService is the ONLY write entry point into the system.

All coordination between:
- store (RCU map + deferred reclamation)
- infra (wal, sequence, kafka)
- journal (reclamation outbox)
happens here.
*/

type StoreService struct {
	store    *store.Store
	wal      wal.WAL
	journal  *journal.Journal
	seq      *sequence.Sequencer
	producer *kafka.Producer
}

// Config wires a StoreService. WAL and Sequencer are required;
// Journal and Producer are optional side channels.
type Config struct {
	GracePeriod    time.Duration
	BufferCapacity int
	RingSize       uint64

	WAL       wal.WAL
	Sequencer *sequence.Sequencer
	Journal   *journal.Journal
	Producer  *kafka.Producer
}

// New builds the service and its store. Retired versions whose grace
// period has ended are recorded in the journal for broadcasting.
func New(cfg Config) (*StoreService, error) {
	s := &StoreService{
		wal:      cfg.WAL,
		journal:  cfg.Journal,
		seq:      cfg.Sequencer,
		producer: cfg.Producer,
	}

	var onReclaim func(*store.Version) error
	if cfg.Journal != nil {
		onReclaim = func(v *store.Version) error {
			return s.journal.PutNew(v.Seq, v.Key)
		}
	}

	st, err := store.New(store.Config{
		Timeout:        cfg.GracePeriod,
		BufferCapacity: cfg.BufferCapacity,
		RingSize:       cfg.RingSize,
		OnReclaim:      onReclaim,
	})
	if err != nil {
		return nil, fmt.Errorf("create store: %w", err)
	}
	s.store = st
	return s, nil
}

// updateEvent is the Kafka payload published on the write path.
type updateEvent struct {
	V    int    `json:"v"`
	Type string `json:"type"`
	Key  string `json:"key"`
	Seq  uint64 `json:"seq"`
}

// Put writes a new version of key. It returns the assigned sequence
// number. The WAL record is appended before the version is visible; it
// reaches disk on the WAL's next flush or Sync, not before Put returns.
func (s *StoreService) Put(ctx context.Context, key string, data []byte) (uint64, error) {
	seq := s.seq.Next()

	rec := &wal.Record{
		Type: wal.RecordPut,
		Seq:  seq,
		Time: time.Now().UnixNano(),
		Key:  key,
		Data: data,
	}
	if err := s.wal.Append(rec); err != nil {
		return 0, fmt.Errorf("wal append: %w", err)
	}

	if err := s.store.Put(key, data, seq); err != nil {
		return 0, fmt.Errorf("store put: %w", err)
	}

	s.publish(ctx, "put", key, seq)
	return seq, nil
}

// Delete removes key. It reports whether the key existed and the
// sequence assigned to the removal.
func (s *StoreService) Delete(ctx context.Context, key string) (bool, uint64, error) {
	seq := s.seq.Next()

	rec := &wal.Record{
		Type: wal.RecordDelete,
		Seq:  seq,
		Time: time.Now().UnixNano(),
		Key:  key,
	}
	if err := s.wal.Append(rec); err != nil {
		return false, 0, fmt.Errorf("wal append: %w", err)
	}

	existed, err := s.store.Delete(key)
	if err != nil {
		return existed, seq, fmt.Errorf("store delete: %w", err)
	}

	if existed {
		s.publish(ctx, "delete", key, seq)
	}
	return existed, seq, nil
}

// Get copies the current version of key out of its read section. The
// returned data is the caller's to keep.
func (s *StoreService) Get(key string) ([]byte, uint64, bool) {
	r := s.store.NewReader()
	r.Begin()
	defer r.End()

	v, ok := s.store.Get(key)
	if !ok {
		return nil, 0, false
	}
	return append([]byte(nil), v.Data...), v.Seq, true
}

// Stats returns a point-in-time store snapshot.
func (s *StoreService) Stats() store.Stats {
	return s.store.Stats()
}

// Store exposes the underlying store for read-section callers that
// want zero-copy access.
func (s *StoreService) Store() *store.Store { return s.store }

func (s *StoreService) publish(ctx context.Context, typ, key string, seq uint64) {
	if s.producer == nil {
		return
	}
	payload, err := json.Marshal(updateEvent{V: 1, Type: typ, Key: key, Seq: seq})
	if err != nil {
		return
	}
	// Best-effort: the WAL is the source of truth.
	if err := s.producer.Send(ctx, []byte(key), payload); err != nil {
		log.Printf("[service] publish %s %q: %v", typ, key, err)
	}
}

// Close drains the reclamation pipeline, sleeping out every remaining
// grace period, then seals the WAL.
func (s *StoreService) Close() error {
	if err := s.store.Close(); err != nil {
		log.Printf("[service] store close: %v", err)
	}
	if err := s.wal.Sync(); err != nil {
		return fmt.Errorf("wal sync: %w", err)
	}
	return s.wal.Close()
}
