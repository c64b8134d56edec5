package wal

import "errors"

// Serializer converts records to and from their on-disk payload. The
// payload does not include the frame header; the log frames every
// payload with a length and CRC of its own.
type Serializer interface {
	Encode(*Record) ([]byte, error)
	Decode([]byte) (*Record, error)
}

var ErrCorruptRecord = errors.New("wal: corrupted record")
