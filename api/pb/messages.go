// Package pb holds the wire messages of the store API. The messages
// are framed directly with the protobuf wire format and served through
// a dedicated gRPC codec, so no generated code is involved.
package pb

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Message is implemented by every wire message in this package.
type Message interface {
	MarshalWire() []byte
	UnmarshalWire([]byte) error
}

type PutRequest struct {
	Key  string
	Data []byte
}

func (m *PutRequest) MarshalWire() []byte {
	var b []byte
	b = appendString(b, 1, m.Key)
	b = appendBytes(b, 2, m.Data)
	return b
}

func (m *PutRequest) UnmarshalWire(data []byte) error {
	return walkFields(data, func(num protowire.Number, f field) error {
		switch num {
		case 1:
			m.Key = f.str()
		case 2:
			m.Data = f.bytes()
		}
		return nil
	})
}

type PutResponse struct {
	Status string
	Seq    uint64
}

func (m *PutResponse) MarshalWire() []byte {
	var b []byte
	b = appendString(b, 1, m.Status)
	b = appendVarint(b, 2, m.Seq)
	return b
}

func (m *PutResponse) UnmarshalWire(data []byte) error {
	return walkFields(data, func(num protowire.Number, f field) error {
		switch num {
		case 1:
			m.Status = f.str()
		case 2:
			m.Seq = f.varint()
		}
		return nil
	})
}

type GetRequest struct {
	Key string
}

func (m *GetRequest) MarshalWire() []byte {
	return appendString(nil, 1, m.Key)
}

func (m *GetRequest) UnmarshalWire(data []byte) error {
	return walkFields(data, func(num protowire.Number, f field) error {
		if num == 1 {
			m.Key = f.str()
		}
		return nil
	})
}

type GetResponse struct {
	Found bool
	Data  []byte
	Seq   uint64
}

func (m *GetResponse) MarshalWire() []byte {
	var b []byte
	if m.Found {
		b = appendVarint(b, 1, 1)
	}
	b = appendBytes(b, 2, m.Data)
	b = appendVarint(b, 3, m.Seq)
	return b
}

func (m *GetResponse) UnmarshalWire(data []byte) error {
	return walkFields(data, func(num protowire.Number, f field) error {
		switch num {
		case 1:
			m.Found = f.varint() != 0
		case 2:
			m.Data = f.bytes()
		case 3:
			m.Seq = f.varint()
		}
		return nil
	})
}

type DeleteRequest struct {
	Key string
}

func (m *DeleteRequest) MarshalWire() []byte {
	return appendString(nil, 1, m.Key)
}

func (m *DeleteRequest) UnmarshalWire(data []byte) error {
	return walkFields(data, func(num protowire.Number, f field) error {
		if num == 1 {
			m.Key = f.str()
		}
		return nil
	})
}

type DeleteResponse struct {
	Status  string
	Existed bool
	Seq     uint64
}

func (m *DeleteResponse) MarshalWire() []byte {
	var b []byte
	b = appendString(b, 1, m.Status)
	if m.Existed {
		b = appendVarint(b, 2, 1)
	}
	b = appendVarint(b, 3, m.Seq)
	return b
}

func (m *DeleteResponse) UnmarshalWire(data []byte) error {
	return walkFields(data, func(num protowire.Number, f field) error {
		switch num {
		case 1:
			m.Status = f.str()
		case 2:
			m.Existed = f.varint() != 0
		case 3:
			m.Seq = f.varint()
		}
		return nil
	})
}

type StatsRequest struct{}

func (m *StatsRequest) MarshalWire() []byte { return nil }

func (m *StatsRequest) UnmarshalWire([]byte) error { return nil }

type StatsResponse struct {
	Keys           int64
	Retired        uint64
	PendingEntries int64
	RingBacklog    int64
	ActiveReaders  int64
}

func (m *StatsResponse) MarshalWire() []byte {
	var b []byte
	b = appendVarint(b, 1, uint64(m.Keys))
	b = appendVarint(b, 2, m.Retired)
	b = appendVarint(b, 3, uint64(m.PendingEntries))
	b = appendVarint(b, 4, uint64(m.RingBacklog))
	b = appendVarint(b, 5, uint64(m.ActiveReaders))
	return b
}

func (m *StatsResponse) UnmarshalWire(data []byte) error {
	return walkFields(data, func(num protowire.Number, f field) error {
		switch num {
		case 1:
			m.Keys = int64(f.varint())
		case 2:
			m.Retired = f.varint()
		case 3:
			m.PendingEntries = int64(f.varint())
		case 4:
			m.RingBacklog = int64(f.varint())
		case 5:
			m.ActiveReaders = int64(f.varint())
		}
		return nil
	})
}

// -------------------- wire helpers --------------------

type field struct {
	v uint64
	b []byte
}

func (f field) varint() uint64 { return f.v }
func (f field) bytes() []byte {
	if f.b == nil {
		return nil
	}
	return append([]byte(nil), f.b...)
}
func (f field) str() string { return string(f.b) }

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func walkFields(data []byte, visit func(protowire.Number, field) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("pb: bad tag")
		}
		data = data[n:]
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return fmt.Errorf("pb: bad varint for field %d", num)
			}
			data = data[n:]
			if err := visit(num, field{v: v}); err != nil {
				return err
			}
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return fmt.Errorf("pb: bad bytes for field %d", num)
			}
			data = data[n:]
			if err := visit(num, field{b: v}); err != nil {
				return err
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return fmt.Errorf("pb: bad field %d", num)
			}
			data = data[n:]
		}
	}
	return nil
}
