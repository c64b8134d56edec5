package wal

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the record message.
const (
	fieldSeq  = 1
	fieldTime = 2
	fieldType = 3
	fieldKey  = 4
	fieldData = 5
)

// ProtoSerializer encodes records as protobuf wire format.
type ProtoSerializer struct{}

func (ProtoSerializer) Encode(rec *Record) ([]byte, error) {
	b := make([]byte, 0, 32+len(rec.Key)+len(rec.Data))
	b = protowire.AppendTag(b, fieldSeq, protowire.VarintType)
	b = protowire.AppendVarint(b, rec.Seq)
	b = protowire.AppendTag(b, fieldTime, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(rec.Time))
	b = protowire.AppendTag(b, fieldType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(rec.Type))
	b = protowire.AppendTag(b, fieldKey, protowire.BytesType)
	b = protowire.AppendString(b, rec.Key)
	b = protowire.AppendTag(b, fieldData, protowire.BytesType)
	b = protowire.AppendBytes(b, rec.Data)
	return b, nil
}

func (ProtoSerializer) Decode(data []byte) (*Record, error) {
	rec := &Record{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("%w: bad tag", ErrCorruptRecord)
		}
		data = data[n:]
		switch {
		case typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("%w: bad varint", ErrCorruptRecord)
			}
			data = data[n:]
			switch num {
			case fieldSeq:
				rec.Seq = v
			case fieldTime:
				rec.Time = int64(v)
			case fieldType:
				rec.Type = RecordType(v)
			}
		case typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("%w: bad bytes", ErrCorruptRecord)
			}
			data = data[n:]
			switch num {
			case fieldKey:
				rec.Key = string(v)
			case fieldData:
				rec.Data = append([]byte(nil), v...)
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("%w: bad field", ErrCorruptRecord)
			}
			data = data[n:]
		}
	}
	return rec, nil
}
