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

	"github.com/valyala/bytebufferpool"
)

// Dialect selects which integer tag letters a Writer emits for values
// built through the dialect-aware helpers in schema.go. Values built with
// the explicit constructors in value.go (Int8, Uint32, ...) always keep
// their exact tag: Dialect only governs the one genuinely ambiguous case,
// converting an untyped Go value into a Value.
type Dialect uint8

const (
	// DialectRabbitMQ is the tag set RabbitMQ itself emits, and the
	// default this library uses since RabbitMQ is the most common broker.
	DialectRabbitMQ Dialect = iota
	// DialectStrict091 collapses narrow integer kinds onto the widest
	// equivalent tag, per the 0-9-1 base spec.
	DialectStrict091
)

var bufPool bytebufferpool.Pool

// Writer accumulates an encoded method/table/frame payload. It owns a
// pooled scratch buffer; callers must call Release when done.
type Writer struct {
	buf *bytebufferpool.ByteBuffer

	pendingBits int
	bitByte     byte
}

// NewWriter returns a Writer backed by a buffer drawn from the shared pool.
func NewWriter() *Writer {
	return &Writer{buf: bufPool.Get()}
}

// Release returns the scratch buffer to the pool. The Writer must not be
// used afterwards.
func (w *Writer) Release() {
	bufPool.Put(w.buf)
	w.buf = nil
}

// Bytes returns the encoded payload accumulated so far.
func (w *Writer) Bytes() []byte {
	w.flushBits()
	return w.buf.Bytes()
}

func (w *Writer) WriteOctet(b byte) {
	w.flushBits()
	_ = w.buf.WriteByte(b)
}

func (w *Writer) WriteShort(v uint16) {
	w.flushBits()
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	_, _ = w.buf.Write(b[:])
}

func (w *Writer) WriteLong(v uint32) {
	w.flushBits()
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	_, _ = w.buf.Write(b[:])
}

func (w *Writer) WriteLongLong(v uint64) {
	w.flushBits()
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	_, _ = w.buf.Write(b[:])
}

func (w *Writer) WriteFloat32(v float32) {
	w.WriteLong(math.Float32bits(v))
}

func (w *Writer) WriteFloat64(v float64) {
	w.WriteLongLong(math.Float64bits(v))
}

// WriteShortStr writes a 1-octet length prefix followed by s. A string
// longer than 255 octets is an encoding error.
func (w *Writer) WriteShortStr(s string) error {
	if len(s) > math.MaxUint8 {
		return encodingError("shortstr exceeds 255 octets")
	}
	w.flushBits()
	_ = w.buf.WriteByte(byte(len(s)))
	_, _ = w.buf.WriteString(s)
	return nil
}

// WriteLongStr writes a 4-octet length prefix followed by s.
func (w *Writer) WriteLongStr(s string) error {
	if uint64(len(s)) > math.MaxUint32 {
		return encodingError("longstr exceeds 2^32-1 octets")
	}
	w.WriteLong(uint32(len(s)))
	_, _ = w.buf.WriteString(s)
	return nil
}

// WriteBytes writes a 4-octet length prefix followed by raw bytes.
func (w *Writer) WriteBytes(b []byte) error {
	if uint64(len(b)) > math.MaxUint32 {
		return encodingError("byte array exceeds 2^32-1 octets")
	}
	w.WriteLong(uint32(len(b)))
	_, _ = w.buf.Write(b)
	return nil
}

func (w *Writer) WriteTimestamp(t time.Time) {
	w.WriteLongLong(uint64(t.Unix()))
}

func (w *Writer) WriteDecimal(d Decimal) {
	w.flushBits()
	_ = w.buf.WriteByte(d.Scale)
	w.WriteLong(uint32(d.Value))
}

// WriteBit queues one boolean argument for LSB-first bit packing. Packing
// resets the moment a non-boolean argument is written (flushBits).
func (w *Writer) WriteBit(v bool) {
	if v {
		w.bitByte |= 1 << uint(w.pendingBits)
	}
	w.pendingBits++
	if w.pendingBits == 8 {
		w.flushBits()
	}
}

func (w *Writer) flushBits() {
	if w.pendingBits == 0 {
		return
	}
	_ = w.buf.WriteByte(w.bitByte)
	w.pendingBits = 0
	w.bitByte = 0
}

// WriteTable encodes a field table as a 4-octet byte length followed by
// (shortstr key, tagged value) pairs.
func (w *Writer) WriteTable(t Table) error {
	w.flushBits()
	inner := NewWriter()
	defer inner.Release()
	for _, f := range t {
		if err := inner.WriteShortStr(f.Key); err != nil {
			return err
		}
		if err := inner.WriteValue(f.Value); err != nil {
			return err
		}
	}
	body := inner.Bytes()
	if uint64(len(body)) > math.MaxUint32 {
		return encodingError("table exceeds 2^32-1 octets")
	}
	w.WriteLong(uint32(len(body)))
	_, _ = w.buf.Write(body)
	return nil
}

// WriteArray encodes a field array as a 4-octet byte length followed by
// tagged values.
func (w *Writer) WriteArray(a []Value) error {
	w.flushBits()
	inner := NewWriter()
	defer inner.Release()
	for _, v := range a {
		if err := inner.WriteValue(v); err != nil {
			return err
		}
	}
	body := inner.Bytes()
	if uint64(len(body)) > math.MaxUint32 {
		return encodingError("array exceeds 2^32-1 octets")
	}
	w.WriteLong(uint32(len(body)))
	_, _ = w.buf.Write(body)
	return nil
}

// WriteValue writes a tag byte followed by the value's payload.
func (w *Writer) WriteValue(v Value) error {
	w.flushBits()
	_ = w.buf.WriteByte(byte(v.Tag))
	switch v.Tag {
	case TagBoolean:
		if v.Bool() {
			_ = w.buf.WriteByte(1)
		} else {
			_ = w.buf.WriteByte(0)
		}
	case TagInt8:
		_ = w.buf.WriteByte(byte(v.Int8()))
	case TagUint8:
		_ = w.buf.WriteByte(v.Uint8())
	case TagInt16:
		w.WriteShort(uint16(v.Int16()))
	case TagUint16:
		w.WriteShort(v.Uint16())
	case TagInt32:
		w.WriteLong(uint32(v.Int32()))
	case TagUint32:
		w.WriteLong(v.Uint32())
	case TagInt64:
		w.WriteLongLong(uint64(v.Int64()))
	case TagUint64:
		w.WriteLongLong(v.Uint64())
	case TagFloat32:
		w.WriteFloat32(v.Float32())
	case TagFloat64:
		w.WriteFloat64(v.Float64())
	case TagDecimal:
		w.WriteDecimal(v.Decimal())
	case TagShortStr:
		return w.WriteShortStr(v.String())
	case TagLongStr:
		return w.WriteLongStr(v.String())
	case TagArray:
		return w.WriteArray(v.Array())
	case TagTimestamp:
		w.WriteTimestamp(v.Time())
	case TagTable:
		return w.WriteTable(v.Table())
	case TagVoid:
		// no payload
	case TagByteArray:
		return w.WriteBytes(v.Bytes())
	default:
		return encodingError("unknown value tag")
	}
	return nil
}
