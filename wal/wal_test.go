package wal

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestWAL(t *testing.T, dir string, segmentSize uint64) WAL {
	t.Helper()
	w, err := New(Config{
		Dir:         dir,
		SegmentSize: segmentSize,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return w
}

func putRecord(seq uint64, key, data string) *Record {
	return &Record{
		Type: RecordPut,
		Seq:  seq,
		Time: int64(seq),
		Key:  key,
		Data: []byte(data),
	}
}

func TestAppendReplayRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w := newTestWAL(t, dir, 1<<20)

	records := []*Record{
		putRecord(1, "a", "v1"),
		putRecord(2, "b", "v2"),
		{Type: RecordDelete, Seq: 3, Time: 3, Key: "a"},
	}
	for _, rec := range records {
		if err := w.Append(rec); err != nil {
			t.Fatalf("Append(%d): %v", rec.Seq, err)
		}
	}
	if err := w.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if got := w.LastSeq(); got != 3 {
		t.Fatalf("LastSeq = %d, want 3", got)
	}

	var replayed []*Record
	if err := w.ReplayFrom(0, func(rec *Record) {
		replayed = append(replayed, rec)
	}); err != nil {
		t.Fatalf("ReplayFrom(0): %v", err)
	}
	if len(replayed) != 3 {
		t.Fatalf("replayed %d records, want 3", len(replayed))
	}
	for i, rec := range replayed {
		want := records[i]
		if rec.Seq != want.Seq || rec.Type != want.Type || rec.Key != want.Key ||
			!bytes.Equal(rec.Data, want.Data) || rec.Time != want.Time {
			t.Fatalf("record %d = %+v, want %+v", i, rec, want)
		}
	}

	replayed = nil
	if err := w.ReplayFrom(2, func(rec *Record) {
		replayed = append(replayed, rec)
	}); err != nil {
		t.Fatalf("ReplayFrom(2): %v", err)
	}
	if len(replayed) != 1 || replayed[0].Seq != 3 {
		t.Fatalf("ReplayFrom(2) = %+v, want only seq 3", replayed)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestRotationSealsSegments(t *testing.T) {
	dir := t.TempDir()
	w := newTestWAL(t, dir, 64)

	const n = 6
	for seq := uint64(1); seq <= n; seq++ {
		if err := w.Append(putRecord(seq, "key", "value")); err != nil {
			t.Fatalf("Append(%d): %v", seq, err)
		}
	}
	if err := w.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	index, err := LoadAllIndex(dir)
	if err != nil {
		t.Fatalf("LoadAllIndex: %v", err)
	}
	if len(index) == 0 {
		t.Fatal("no sealed segments after writing past the segment size")
	}
	for i := 1; i < len(index); i++ {
		if index[i].FirstSeq != index[i-1].LastSeq+1 {
			t.Fatalf("segment %d starts at %d, previous ended at %d",
				i, index[i].FirstSeq, index[i-1].LastSeq)
		}
	}

	var seqs []uint64
	if err := w.ReplayFrom(0, func(rec *Record) {
		seqs = append(seqs, rec.Seq)
	}); err != nil {
		t.Fatalf("ReplayFrom: %v", err)
	}
	if len(seqs) != n {
		t.Fatalf("replayed %d records across segments, want %d", len(seqs), n)
	}
	for i, seq := range seqs {
		if seq != uint64(i+1) {
			t.Fatalf("seqs = %v, not ordered", seqs)
		}
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestReopenRecoversLastSeq(t *testing.T) {
	dir := t.TempDir()

	w := newTestWAL(t, dir, 1<<20)
	for seq := uint64(1); seq <= 3; seq++ {
		if err := w.Append(putRecord(seq, "k", "v")); err != nil {
			t.Fatalf("Append(%d): %v", seq, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	w = newTestWAL(t, dir, 1<<20)
	if got := w.LastSeq(); got != 3 {
		t.Fatalf("LastSeq after reopen = %d, want 3", got)
	}
	if err := w.Append(putRecord(4, "k", "v4")); err != nil {
		t.Fatalf("Append(4): %v", err)
	}
	if err := w.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	var seqs []uint64
	if err := w.ReplayFrom(0, func(rec *Record) {
		seqs = append(seqs, rec.Seq)
	}); err != nil {
		t.Fatalf("ReplayFrom: %v", err)
	}
	if len(seqs) != 4 || seqs[3] != 4 {
		t.Fatalf("seqs after reopen = %v, want 1..4", seqs)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestTornTailIsTruncated(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "current.wal")

	var buf bytes.Buffer
	payload, err := ProtoSerializer{}.Encode(putRecord(1, "k", "v"))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := writeFrame(&buf, payload); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}
	valid := buf.Len()
	// A crash mid-append leaves a header with no payload behind it.
	buf.Write([]byte{0x20, 0x00, 0x00, 0x00, 0xde, 0xad, 0xbe, 0xef})
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	w := newTestWAL(t, dir, 1<<20)
	if got := w.LastSeq(); got != 1 {
		t.Fatalf("LastSeq after recovery = %d, want 1", got)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size() != int64(valid) {
		t.Fatalf("current.wal is %d bytes after recovery, want %d", info.Size(), valid)
	}

	if err := w.Append(putRecord(2, "k", "v2")); err != nil {
		t.Fatalf("Append after recovery: %v", err)
	}
	if err := w.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	var seqs []uint64
	if err := w.ReplayFrom(0, func(rec *Record) {
		seqs = append(seqs, rec.Seq)
	}); err != nil {
		t.Fatalf("ReplayFrom: %v", err)
	}
	if len(seqs) != 2 || seqs[0] != 1 || seqs[1] != 2 {
		t.Fatalf("seqs after torn-tail recovery = %v, want [1 2]", seqs)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestCorruptChecksumStopsReader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seg.wal")

	payload, err := ProtoSerializer{}.Encode(putRecord(1, "k", "v"))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var buf bytes.Buffer
	if err := writeFrame(&buf, payload); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}
	b := buf.Bytes()
	b[len(b)-1] ^= 0xff
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	r, err := OpenReader(path, ProtoSerializer{})
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r.Close()
	if r.Next() {
		t.Fatal("Next succeeded on a corrupt frame")
	}
	if !errors.Is(r.Err(), ErrCorruptRecord) {
		t.Fatalf("Err = %v, want ErrCorruptRecord", r.Err())
	}
}

func TestChecksumValidate(t *testing.T) {
	data := []byte("retire/00000000000000000042")
	sum := CRC32Checksum(data)
	if !CRC32Validate(data, sum) {
		t.Fatal("CRC32Validate rejected a matching checksum")
	}
	if CRC32Validate(data, sum+1) {
		t.Fatal("CRC32Validate accepted a mismatched checksum")
	}
}

func TestProtoSerializerRoundTrip(t *testing.T) {
	want := &Record{
		Type: RecordDelete,
		Seq:  987654321,
		Time: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC).UnixNano(),
		Key:  "orders/42",
		Data: []byte{0x00, 0x01, 0xff},
	}
	b, err := ProtoSerializer{}.Encode(want)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := ProtoSerializer{}.Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Seq != want.Seq || got.Type != want.Type || got.Time != want.Time ||
		got.Key != want.Key || !bytes.Equal(got.Data, want.Data) {
		t.Fatalf("round trip = %+v, want %+v", got, want)
	}

	if _, err := (ProtoSerializer{}).Decode([]byte{0xff}); !errors.Is(err, ErrCorruptRecord) {
		t.Fatalf("Decode(garbage) = %v, want ErrCorruptRecord", err)
	}
}
