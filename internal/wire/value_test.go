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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueRoundTrip(t *testing.T) {
	values := []Value{
		Bool(true),
		Bool(false),
		Int8(-12),
		Uint8(200),
		Int16(-3000),
		Uint16(50000),
		Int32(-70000),
		Uint32(4000000000),
		Int64(-1 << 40),
		Uint64(1 << 40),
		Float32(3.5),
		Float64(2.71828),
		DecimalValue(Decimal{Scale: 2, Value: 12345}),
		ShortString("hello"),
		LongString("a long string value"),
		Timestamp(time.Unix(1700000000, 0).UTC()),
		TableValue(Table{{Key: "k", Value: ShortString("v")}}),
		ArrayValue([]Value{Uint8(1), Uint8(2), ShortString("three")}),
		ByteArray([]byte{0xDE, 0xAD, 0xBE, 0xEF}),
		Void(),
	}

	for _, v := range values {
		w := NewWriter()
		require.NoError(t, w.WriteValue(v))
		encoded := make([]byte, len(w.Bytes()))
		copy(encoded, w.Bytes())
		w.Release()

		r := NewReader(encoded)
		decoded, err := r.ReadValue()
		require.NoError(t, err)
		assert.Truef(t, v.Equal(decoded), "tag %c: want %v got %v", v.Tag, v.Any(), decoded.Any())
		assert.Equal(t, 0, r.Remaining())
	}
}

func TestFromAnyDialectIntWidth(t *testing.T) {
	rabbit := FromAny(42, DialectRabbitMQ)
	assert.Equal(t, TagInt32, rabbit.Tag)

	strict := FromAny(42, DialectStrict091)
	assert.Equal(t, TagInt64, strict.Tag)

	// explicitly widthed inputs keep their tag regardless of dialect
	explicit := FromAny(uint8(7), DialectStrict091)
	assert.Equal(t, TagUint8, explicit.Tag)
}
