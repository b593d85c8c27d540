// Copyright 2025 The packetd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package wire

import (
	"encoding/binary"
	"math"
	"time"
)

// Reader is a cursor over a byte slice, decoding the same primitives
// Writer encodes. Reading past the end of b is a malformed-frame error,
// never a panic.
type Reader struct {
	b   []byte
	pos int

	bitsLeft int
	bitByte  byte
}

func NewReader(b []byte) *Reader {
	return &Reader{b: b}
}

// Remaining returns the number of unread octets.
func (r *Reader) Remaining() int { return len(r.b) - r.pos }

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.b) {
		return nil, malformed("unexpected end of buffer")
	}
	out := r.b[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

func (r *Reader) ReadOctet() (byte, error) {
	r.resetBits()
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) ReadShort() (uint16, error) {
	r.resetBits()
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *Reader) ReadLong() (uint32, error) {
	r.resetBits()
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *Reader) ReadLongLong() (uint64, error) {
	r.resetBits()
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (r *Reader) ReadFloat32() (float32, error) {
	v, err := r.ReadLong()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func (r *Reader) ReadFloat64() (float64, error) {
	v, err := r.ReadLongLong()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

func (r *Reader) ReadShortStr() (string, error) {
	r.resetBits()
	n, err := r.take(1)
	if err != nil {
		return "", err
	}
	b, err := r.take(int(n[0]))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *Reader) ReadLongStr() (string, error) {
	n, err := r.ReadLong()
	if err != nil {
		return "", err
	}
	b, err := r.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadLong()
	if err != nil {
		return nil, err
	}
	b, err := r.take(int(n))
	if err != nil {
		return nil, err
	}
	return append([]byte{}, b...), nil
}

func (r *Reader) ReadTimestamp() (time.Time, error) {
	v, err := r.ReadLongLong()
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(v), 0).UTC(), nil
}

func (r *Reader) ReadDecimal() (Decimal, error) {
	r.resetBits()
	scale, err := r.take(1)
	if err != nil {
		return Decimal{}, err
	}
	v, err := r.ReadLong()
	if err != nil {
		return Decimal{}, err
	}
	return Decimal{Scale: scale[0], Value: int32(v)}, nil
}

// ReadBit pops one boolean out of the current packed octet, reading a new
// octet on demand. Any non-bit read resets packing state (resetBits): a
// run of consecutive bits shares one octet, but the next non-bit argument
// always starts on its own.
func (r *Reader) ReadBit() (bool, error) {
	if r.bitsLeft == 0 {
		b, err := r.take(1)
		if err != nil {
			return false, err
		}
		r.bitByte = b[0]
		r.bitsLeft = 8
	}
	bit := r.bitByte&1 == 1
	r.bitByte >>= 1
	r.bitsLeft--
	return bit, nil
}

func (r *Reader) resetBits() {
	r.bitsLeft = 0
	r.bitByte = 0
}

func (r *Reader) ReadTable() (Table, error) {
	r.resetBits()
	n, err := r.ReadLong()
	if err != nil {
		return nil, err
	}
	body, err := r.take(int(n))
	if err != nil {
		return nil, err
	}
	inner := NewReader(body)
	var out Table
	for inner.Remaining() > 0 {
		key, err := inner.ReadShortStr()
		if err != nil {
			return nil, err
		}
		val, err := inner.ReadValue()
		if err != nil {
			return nil, err
		}
		out = out.Set(key, val) // last-wins on duplicate keys
	}
	return out, nil
}

func (r *Reader) ReadArray() ([]Value, error) {
	r.resetBits()
	n, err := r.ReadLong()
	if err != nil {
		return nil, err
	}
	body, err := r.take(int(n))
	if err != nil {
		return nil, err
	}
	inner := NewReader(body)
	var out []Value
	for inner.Remaining() > 0 {
		val, err := inner.ReadValue()
		if err != nil {
			return nil, err
		}
		out = append(out, val)
	}
	return out, nil
}

// ReadValue reads a tag byte and its payload.
func (r *Reader) ReadValue() (Value, error) {
	r.resetBits()
	tagByte, err := r.take(1)
	if err != nil {
		return Value{}, err
	}
	switch Tag(tagByte[0]) {
	case TagBoolean:
		b, err := r.take(1)
		if err != nil {
			return Value{}, err
		}
		return Bool(b[0] != 0), nil
	case TagInt8:
		b, err := r.take(1)
		if err != nil {
			return Value{}, err
		}
		return Int8(int8(b[0])), nil
	case TagUint8:
		b, err := r.take(1)
		if err != nil {
			return Value{}, err
		}
		return Uint8(b[0]), nil
	case TagInt16:
		v, err := r.ReadShort()
		return Int16(int16(v)), err
	case TagUint16:
		v, err := r.ReadShort()
		return Uint16(v), err
	case TagInt32:
		v, err := r.ReadLong()
		return Int32(int32(v)), err
	case TagUint32:
		v, err := r.ReadLong()
		return Uint32(v), err
	case TagInt64:
		v, err := r.ReadLongLong()
		return Int64(int64(v)), err
	case TagUint64:
		v, err := r.ReadLongLong()
		return Uint64(v), err
	case TagFloat32:
		v, err := r.ReadFloat32()
		return Float32(v), err
	case TagFloat64:
		v, err := r.ReadFloat64()
		return Float64(v), err
	case TagDecimal:
		d, err := r.ReadDecimal()
		return DecimalValue(d), err
	case TagShortStr:
		s, err := r.ReadShortStr()
		return ShortString(s), err
	case TagLongStr:
		s, err := r.ReadLongStr()
		return LongString(s), err
	case TagArray:
		a, err := r.ReadArray()
		return ArrayValue(a), err
	case TagTimestamp:
		t, err := r.ReadTimestamp()
		return Timestamp(t), err
	case TagTable:
		t, err := r.ReadTable()
		return TableValue(t), err
	case TagVoid:
		return Void(), nil
	case TagByteArray:
		b, err := r.ReadBytes()
		return ByteArray(b), err
	default:
		return Value{}, malformed("unrecognized field tag")
	}
}
