package service

import (
	"fmt"
	"log"

	"lethe/wal"
)

/*
Replay rebuilds in-memory state from the WAL.

IMPORTANT:
- This MUST run before accepting traffic
- The reclamation journal is NOT replayed here; the broadcaster
  re-drives it on its own
*/

func (s *StoreService) Replay() error {
	var applied uint64
	err := s.wal.ReplayFrom(0, func(rec *wal.Record) {
		switch rec.Type {
		case wal.RecordPut:
			if err := s.store.Put(rec.Key, rec.Data, rec.Seq); err != nil {
				log.Printf("[service] replay put seq=%d: %v", rec.Seq, err)
				return
			}
		case wal.RecordDelete:
			if _, err := s.store.Delete(rec.Key); err != nil {
				log.Printf("[service] replay delete seq=%d: %v", rec.Seq, err)
				return
			}
		default:
			return
		}
		applied++
	})
	if err != nil {
		return fmt.Errorf("wal replay: %w", err)
	}

	// Resume sequencing AFTER replay.
	s.seq.Reset(s.wal.LastSeq())

	log.Printf("[service] WAL replay completed (%d records, last seq = %d)", applied, s.wal.LastSeq())
	return nil
}
