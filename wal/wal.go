package wal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Config defines configuration for a WAL instance.
type Config struct {
	Dir             string
	SegmentSize     uint64
	SegmentDuration time.Duration
	Serializer      Serializer
	FlushInterval   time.Duration
}

// WAL is the public interface users interact with.
type WAL interface {
	Append(*Record) error
	Sync() error
	Close() error

	// LastSeq is the highest sequence appended, recovered from disk at
	// open. It may cover records not yet flushed.
	LastSeq() uint64

	// ReplayFrom applies every record with Seq > from, oldest first.
	ReplayFrom(from uint64, apply func(*Record)) error
}

// New creates a new WAL instance from Config.
func New(cfg Config) (WAL, error) {
	if cfg.Dir == "" {
		cfg.Dir = "./wal_data"
	}
	if cfg.SegmentSize == 0 {
		cfg.SegmentSize = 2 * 1024 * 1024
	}
	if cfg.SegmentDuration == 0 {
		cfg.SegmentDuration = 5 * time.Minute
	}
	if cfg.Serializer == nil {
		cfg.Serializer = ProtoSerializer{}
	}

	core, err := newCoreWAL(cfg)
	if err != nil {
		return nil, fmt.Errorf("create wal: %w", err)
	}

	w := &walWrapper{core: core, cfg: cfg, stop: make(chan struct{})}
	if cfg.FlushInterval > 0 {
		go w.autoFlush()
	}
	return w, nil
}

type walWrapper struct {
	core *coreWAL
	cfg  Config
	stop chan struct{}
}

func (w *walWrapper) Append(rec *Record) error {
	return w.core.Append(rec)
}

func (w *walWrapper) Sync() error {
	return w.core.Sync()
}

func (w *walWrapper) LastSeq() uint64 {
	return w.core.LastSeq()
}

func (w *walWrapper) Close() error {
	close(w.stop)
	return w.core.Close()
}

func (w *walWrapper) autoFlush() {
	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = w.core.Sync()
		case <-w.stop:
			return
		}
	}
}

func (w *walWrapper) ReplayFrom(from uint64, apply func(*Record)) error {
	if err := w.core.Sync(); err != nil {
		return err
	}

	index, err := LoadAllIndex(w.cfg.Dir)
	if err != nil {
		return fmt.Errorf("load index: %w", err)
	}
	sort.Slice(index, func(a, b int) bool {
		return index[a].FirstSeq < index[b].FirstSeq
	})

	for _, seg := range index {
		if seg.LastSeq <= from {
			continue
		}
		if err := w.replayFile(filepath.Join(w.cfg.Dir, seg.File), from, apply); err != nil {
			return err
		}
	}

	current := filepath.Join(w.cfg.Dir, "current.wal")
	if _, err := os.Stat(current); err == nil {
		if err := w.replayFile(current, from, apply); err != nil {
			return err
		}
	}
	return nil
}

func (w *walWrapper) replayFile(path string, from uint64, apply func(*Record)) error {
	r, err := OpenReader(path, w.cfg.Serializer)
	if err != nil {
		return err
	}
	defer r.Close()
	for r.Next() {
		rec := r.Record()
		if rec.Seq <= from {
			continue
		}
		apply(rec)
	}
	return r.Err()
}
