// Package journal is the durable reclamation outbox. Every version the
// store retires gets one record here, keyed by its update sequence;
// records move NEW → SENT → ACKED as the broadcaster publishes them,
// and ACKED records are deleted. On restart the broadcaster re-drives
// whatever is still NEW or SENT.
package journal

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
)

type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Record tracks one retired version through the outbox.
type Record struct {
	State       State
	Retries     uint32
	LastAttempt int64
	Key         string
}

// binary encoding: [state:1][retries:4][lastAttempt:8][key:rest]
func encodeRecord(r Record) []byte {
	buf := make([]byte, 1+4+8+len(r.Key))
	buf[0] = byte(r.State)
	binary.BigEndian.PutUint32(buf[1:5], r.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(r.LastAttempt))
	copy(buf[13:], r.Key)
	return buf
}

func decodeRecord(b []byte) (Record, error) {
	if len(b) < 13 {
		return Record{}, errors.New("invalid journal record length")
	}
	return Record{
		State:       State(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Key:         string(b[13:]),
	}, nil
}

// Journal is a pebble-backed outbox of reclamation events.
type Journal struct {
	db *pebble.DB
}

func Open(dir string) (*Journal, error) {
	db, err := pebble.Open(dir, &pebble.Options{
		DisableWAL: false, // we WANT durability
	})
	if err != nil {
		return nil, err
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// PutNew inserts a new outbox entry for a retired version.
func (j *Journal) PutNew(seq uint64, key string) error {
	rec := Record{
		State:       StateNew,
		Retries:     0,
		LastAttempt: 0,
		Key:         key,
	}
	return j.db.Set(keyFor(seq), encodeRecord(rec), pebble.Sync)
}

// UpdateState updates state after send / ack / failure.
func (j *Journal) UpdateState(seq uint64, state State, retries uint32) error {
	cur, err := j.Get(seq)
	if err != nil {
		return err
	}
	cur.State = state
	cur.Retries = retries
	cur.LastAttempt = time.Now().UnixNano()
	return j.db.Set(keyFor(seq), encodeRecord(cur), pebble.Sync)
}

// Delete removes ACKED records.
func (j *Journal) Delete(seq uint64) error {
	return j.db.Delete(keyFor(seq), pebble.Sync)
}

// Get returns the current record for a sequence.
func (j *Journal) Get(seq uint64) (Record, error) {
	val, closer, err := j.db.Get(keyFor(seq))
	if err != nil {
		return Record{}, err
	}
	defer closer.Close()

	return decodeRecord(val)
}

// ScanByState iterates all records in the given state, lowest sequence
// first. This is what the broadcaster drains.
func (j *Journal) ScanByState(state State, fn func(seq uint64, rec Record) error) error {
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("retire/"),
		UpperBound: []byte("retire/~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		rec, err := decodeRecord(iter.Value())
		if err != nil {
			return err
		}
		if rec.State != state {
			continue
		}
		seq, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		if err := fn(seq, rec); err != nil {
			return err
		}
	}
	return iter.Error()
}

func keyFor(seq uint64) []byte {
	return []byte(fmt.Sprintf("retire/%020d", seq))
}

func parseKey(b []byte) (uint64, error) {
	var seq uint64
	_, err := fmt.Sscanf(string(bytes.TrimPrefix(b, []byte("retire/"))), "%d", &seq)
	return seq, err
}
