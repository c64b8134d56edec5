// Package wal implements a minimal write-ahead log for durable store
// updates. It supports segmented files, CRC validation, and replay
// iteration.
package wal
