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

func TestTableRoundTrip(t *testing.T) {
	tbl := Table{
		{Key: "x-max-length", Value: Uint32(1000)},
		{Key: "x-message-ttl", Value: Uint64(60000)},
		{Key: "nested", Value: TableValue(Table{{Key: "inner", Value: Bool(true)}})},
	}

	w := NewWriter()
	require.NoError(t, w.WriteTable(tbl))
	encoded := make([]byte, len(w.Bytes()))
	copy(encoded, w.Bytes())
	w.Release()

	r := NewReader(encoded)
	decoded, err := r.ReadTable()
	require.NoError(t, err)
	assert.True(t, tbl.Equal(decoded))

	// re-encoding the decoded table reproduces the same bytes.
	w2 := NewWriter()
	require.NoError(t, w2.WriteTable(decoded))
	reencoded := make([]byte, len(w2.Bytes()))
	copy(reencoded, w2.Bytes())
	w2.Release()
	assert.Equal(t, encoded, reencoded)
}

func TestTableSetPreservesPositionAndDedups(t *testing.T) {
	var tbl Table
	tbl = tbl.Set("a", Uint8(1))
	tbl = tbl.Set("b", Uint8(2))
	tbl = tbl.Set("a", Uint8(3)) // overwrite, same position

	require.Len(t, tbl, 2)
	assert.Equal(t, "a", tbl[0].Key)
	v, ok := tbl.Get("a")
	assert.True(t, ok)
	assert.Equal(t, uint8(3), v.Uint8())
}

func TestTableDecodeDuplicateKeysLastWins(t *testing.T) {
	w := NewWriter()
	require.NoError(t, w.WriteShortStr("dup"))
	require.NoError(t, w.WriteValue(Uint8(1)))
	require.NoError(t, w.WriteShortStr("dup"))
	require.NoError(t, w.WriteValue(Uint8(2)))
	body := make([]byte, len(w.Bytes()))
	copy(body, w.Bytes())
	w.Release()

	outer := NewWriter()
	require.NoError(t, outer.WriteBytes(body))
	raw := make([]byte, len(outer.Bytes()))
	copy(raw, outer.Bytes())
	outer.Release()

	r := NewReader(raw)
	decoded, err := r.ReadTable()
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	v, ok := decoded.Get("dup")
	require.True(t, ok)
	assert.Equal(t, uint8(2), v.Uint8())
}
