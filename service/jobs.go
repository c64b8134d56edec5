package service

import (
	"context"
	"log"
	"time"

	"lethe/call"
	"lethe/memory"
)

// Start launches the maintenance loop: it drains the retire ring into
// the delay pipeline continuously and runs an opportunistic purge at a
// bounded rate. The loop stops when ctx is cancelled.
func (s *StoreService) Start(ctx context.Context) {
	go s.maintain(ctx)
}

func (s *StoreService) maintain(ctx context.Context) {
	purge := call.NewAtMostEvery(s.store.Timeout() / 2)
	alive := call.NewAtMostEvery(time.Minute)

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.store.Reclaim(); err != nil {
				log.Printf("[service] reclaim: %v", err)
			}
			call.Do(purge, func() {
				if err := s.store.Purge(memory.Opportunistic); err != nil {
					log.Printf("[service] purge: %v", err)
				}
			})
			call.Do(alive, func() {
				st := s.store.Stats()
				log.Printf("[service] alive keys=%d retired=%d pending=%d", st.Keys, st.Retired, st.PendingEntries)
			})
		}
	}
}
