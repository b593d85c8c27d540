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

import "time"

// Tag identifies the wire representation of a field-table value. Letters
// follow the RabbitMQ dialect of AMQP 0-9-1; the 0-9-1 "strict" dialect
// collapses some of these onto wider integer types, but a reader accepts
// every tag below regardless of which dialect a peer emits.
type Tag byte

const (
	TagBoolean   Tag = 't'
	TagInt8      Tag = 'b'
	TagUint8     Tag = 'B'
	TagInt16     Tag = 'U'
	TagUint16    Tag = 'u'
	TagInt32     Tag = 'I'
	TagUint32    Tag = 'i'
	TagInt64     Tag = 'L'
	TagUint64    Tag = 'l'
	TagFloat32   Tag = 'f'
	TagFloat64   Tag = 'd'
	TagDecimal   Tag = 'D'
	TagShortStr  Tag = 's'
	TagLongStr   Tag = 'S'
	TagArray     Tag = 'A'
	TagTimestamp Tag = 'T'
	TagTable     Tag = 'F'
	TagVoid      Tag = 'V'
	TagByteArray Tag = 'x'
)

// Decimal is a scaled signed integer: Value / 10^Scale.
type Decimal struct {
	Scale uint8
	Value int32
}

// Float64 returns the decimal as a float64 approximation.
func (d Decimal) Float64() float64 {
	f := float64(d.Value)
	for i := uint8(0); i < d.Scale; i++ {
		f /= 10
	}
	return f
}

// Value is a tagged AMQP field value, able to hold any of the wire kinds
// the Tag constants enumerate.
type Value struct {
	Tag  Tag
	data any
}

func Bool(v bool) Value        { return Value{Tag: TagBoolean, data: v} }
func Int8(v int8) Value        { return Value{Tag: TagInt8, data: v} }
func Uint8(v uint8) Value      { return Value{Tag: TagUint8, data: v} }
func Int16(v int16) Value      { return Value{Tag: TagInt16, data: v} }
func Uint16(v uint16) Value    { return Value{Tag: TagUint16, data: v} }
func Int32(v int32) Value      { return Value{Tag: TagInt32, data: v} }
func Uint32(v uint32) Value    { return Value{Tag: TagUint32, data: v} }
func Int64(v int64) Value      { return Value{Tag: TagInt64, data: v} }
func Uint64(v uint64) Value    { return Value{Tag: TagUint64, data: v} }
func Float32(v float32) Value  { return Value{Tag: TagFloat32, data: v} }
func Float64(v float64) Value  { return Value{Tag: TagFloat64, data: v} }
func DecimalValue(d Decimal) Value { return Value{Tag: TagDecimal, data: d} }
func ShortString(s string) Value   { return Value{Tag: TagShortStr, data: s} }
func LongString(s string) Value    { return Value{Tag: TagLongStr, data: s} }
func ArrayValue(a []Value) Value   { return Value{Tag: TagArray, data: a} }
func Timestamp(t time.Time) Value  { return Value{Tag: TagTimestamp, data: t.Truncate(time.Second)} }
func TableValue(t Table) Value     { return Value{Tag: TagTable, data: t} }
func Void() Value                  { return Value{Tag: TagVoid} }
func ByteArray(b []byte) Value     { return Value{Tag: TagByteArray, data: append([]byte{}, b...)} }

func (v Value) Bool() bool             { b, _ := v.data.(bool); return b }
func (v Value) Int8() int8             { x, _ := v.data.(int8); return x }
func (v Value) Uint8() uint8           { x, _ := v.data.(uint8); return x }
func (v Value) Int16() int16           { x, _ := v.data.(int16); return x }
func (v Value) Uint16() uint16         { x, _ := v.data.(uint16); return x }
func (v Value) Int32() int32           { x, _ := v.data.(int32); return x }
func (v Value) Uint32() uint32         { x, _ := v.data.(uint32); return x }
func (v Value) Int64() int64           { x, _ := v.data.(int64); return x }
func (v Value) Uint64() uint64         { x, _ := v.data.(uint64); return x }
func (v Value) Float32() float32       { x, _ := v.data.(float32); return x }
func (v Value) Float64() float64       { x, _ := v.data.(float64); return x }
func (v Value) Decimal() Decimal       { d, _ := v.data.(Decimal); return d }
func (v Value) String() string         { s, _ := v.data.(string); return s }
func (v Value) Array() []Value         { a, _ := v.data.([]Value); return a }
func (v Value) Time() time.Time        { t, _ := v.data.(time.Time); return t }
func (v Value) Table() Table           { t, _ := v.data.(Table); return t }
func (v Value) Bytes() []byte          { b, _ := v.data.([]byte); return b }

// Equal reports whether two values have the same tag and payload.
func (v Value) Equal(other Value) bool {
	if v.Tag != other.Tag {
		return false
	}
	switch v.Tag {
	case TagTable:
		return v.Table().Equal(other.Table())
	case TagArray:
		a, b := v.Array(), other.Array()
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if !a[i].Equal(b[i]) {
				return false
			}
		}
		return true
	case TagByteArray:
		a, b := v.Bytes(), other.Bytes()
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
		return true
	case TagTimestamp:
		return v.Time().Equal(other.Time())
	default:
		return v.data == other.data
	}
}

// Any returns the underlying Go value, for callers that just want to read
// field-table contents without caring about the exact wire width.
func (v Value) Any() any {
	return v.data
}
