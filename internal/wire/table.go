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

import "github.com/goccy/go-json"

// Field is one entry of a field table: a short-string key paired with a
// tagged value.
type Field struct {
	Key   string
	Value Value
}

// Table is an ordered field-table. Entry order is preserved on the wire
// exactly as received; duplicate keys are tolerated on decode (last one
// read wins, per Reader.ReadTable) but Set never lets a table grow a
// second entry for the same key, so a table built through Set never needs
// de-duplication when it is encoded.
type Table []Field

// Get returns the value for key, with last-wins semantics, and whether it
// was present at all.
func (t Table) Get(key string) (Value, bool) {
	v, ok := Value{}, false
	for _, f := range t {
		if f.Key == key {
			v, ok = f.Value, true
		}
	}
	return v, ok
}

// Set replaces the value for key, preserving its original position, or
// appends a new field if key is not yet present.
func (t Table) Set(key string, v Value) Table {
	for i, f := range t {
		if f.Key == key {
			t[i].Value = v
			return t
		}
	}
	return append(t, Field{Key: key, Value: v})
}

// Clone returns a deep-enough copy safe to mutate independently of t.
func (t Table) Clone() Table {
	if t == nil {
		return nil
	}
	out := make(Table, len(t))
	copy(out, t)
	return out
}

// Equal compares two tables field-by-field and in order; it does not
// consider {a:1, b:2} equal to {b:2, a:1}, matching the wire's insistence
// that table order is significant.
func (t Table) Equal(other Table) bool {
	if len(t) != len(other) {
		return false
	}
	for i := range t {
		if t[i].Key != other[i].Key || !t[i].Value.Equal(other[i].Value) {
			return false
		}
	}
	return true
}

// MarshalJSON renders the table as a plain JSON object for structured
// logging; it is lossy for types JSON cannot express natively (byte
// arrays become base64 via go-json's default []byte handling).
func (t Table) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(t))
	for _, f := range t {
		m[f.Key] = f.Value.Any()
	}
	return json.Marshal(m)
}
