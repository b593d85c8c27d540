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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeMethodRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		cm   ClassMethod
		args []Value
	}{
		{
			name: "connection.start-ok",
			cm:   ClassMethod{ClassConnection, 11},
			args: []Value{
				TableValue(Table{{Key: "product", Value: ShortString("goamqp")}}),
				ShortString("PLAIN"),
				LongString("\x00guest\x00guest"),
				ShortString("en_US"),
			},
		},
		{
			name: "connection.tune",
			cm:   ClassMethod{ClassConnection, 30},
			args: []Value{Uint16(2047), Uint32(131072), Uint16(60)},
		},
		{
			// exchange.declare packs five consecutive KindBit args into a
			// single octet.
			name: "exchange.declare bit packing",
			cm:   ClassMethod{ClassExchange, 10},
			args: []Value{
				Uint16(0), ShortString("amq.direct"), ShortString("direct"),
				Bool(false), Bool(true), Bool(false), Bool(false), Bool(true),
				TableValue(nil),
			},
		},
		{
			name: "basic.ack",
			cm:   ClassMethod{ClassBasic, 80},
			args: []Value{Uint64(42), Bool(true)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := EncodeMethod(tt.cm, tt.args)
			require.NoError(t, err)

			cm, args, err := DecodeMethod(payload)
			require.NoError(t, err)
			assert.Equal(t, tt.cm, cm)
			require.Len(t, args, len(tt.args))
			for i := range tt.args {
				assert.Truef(t, tt.args[i].Equal(args[i]), "arg %d: want %v got %v", i, tt.args[i], args[i])
			}
		})
	}
}

func TestDecodeMethodUnknownMethod(t *testing.T) {
	payload, err := EncodeMethod(ClassMethod{ClassID: 9999, MethodID: 1}, nil)
	require.NoError(t, err)

	cm, args, err := DecodeMethod(payload)
	assert.ErrorIs(t, err, ErrUnknownMethod)
	assert.Equal(t, ClassMethod{ClassID: 9999, MethodID: 1}, cm)
	assert.Nil(t, args)
}

func TestBitPackingRecoversExactBooleans(t *testing.T) {
	// 10 consecutive bits span two packed octets; the decoder must recover
	// every one regardless of the split.
	bits := []bool{true, false, true, true, false, false, true, false, true, true}
	schema := make([]Kind, len(bits))
	args := make([]Value, len(bits))
	for i, b := range bits {
		schema[i] = KindBit
		args[i] = Bool(b)
	}

	w := NewWriter()
	defer w.Release()
	require.NoError(t, EncodeArgs(w, args))

	out := make([]byte, len(w.Bytes()))
	copy(out, w.Bytes())
	assert.Len(t, out, 2, "10 bits pack into 2 octets")

	decoded, err := DecodeArgs(out, schema)
	require.NoError(t, err)
	require.Len(t, decoded, len(bits))
	for i, b := range bits {
		assert.Equal(t, b, decoded[i].Bool())
	}
}

func TestExpectedReply(t *testing.T) {
	reply, ok := ExpectedReply(ClassMethod{ClassConnection, 10}) // start
	assert.True(t, ok)
	assert.Equal(t, ClassMethod{ClassConnection, 11}, reply) // start-ok

	_, ok = ExpectedReply(ClassMethod{ClassConnection, 51}) // close-ok has no reply
	assert.False(t, ok)
}
