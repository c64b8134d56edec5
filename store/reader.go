package store

import (
	"log"
	"time"
)

// Reader marks read sections. Versions obtained through Get inside a
// section may be dereferenced until End; a section that outlasts the
// store's grace period may observe reclaimed storage, so End logs when
// that contract was broken.
//
// A Reader belongs to one goroutine. Create as many as needed; they
// cost nothing while idle.
type Reader struct {
	store *Store
	began time.Time
}

// NewReader returns a read-section marker bound to the store.
func (s *Store) NewReader() *Reader {
	return &Reader{store: s}
}

// Begin opens a read section.
func (r *Reader) Begin() {
	r.store.readers.Add(1)
	r.began = time.Now()
}

// End closes the section. Pointers obtained from Get inside it must
// not be used afterwards.
func (r *Reader) End() {
	r.store.readers.Add(-1)
	if held := time.Since(r.began); held > r.store.Timeout() {
		log.Printf("[store] read section held %v, longer than the %v grace period", held, r.store.Timeout())
	}
}
