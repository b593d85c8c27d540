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

func TestContentHeaderRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		p    Properties
	}{
		{name: "empty properties", p: Properties{}},
		{
			name: "fully populated",
			p: Properties{
				ContentType:     "application/json",
				ContentEncoding: "gzip",
				Headers:         Table{{Key: "x-retry", Value: Uint8(3)}},
				DeliveryMode:    2,
				Priority:        5,
				CorrelationID:   "corr-1",
				ReplyTo:         "amq.rabbitmq.reply-to",
				Expiration:      "60000",
				MessageID:       "msg-1",
				Timestamp:       time.Unix(1700000000, 0).UTC(),
				Type:            "order.created",
				UserID:          "guest",
				AppID:           "goamqp-test",
			},
		},
		{
			name: "only delivery mode set",
			p:    Properties{DeliveryMode: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := EncodeContentHeader(ClassBasic, 1234, tt.p)
			require.NoError(t, err)

			hdr, err := DecodeContentHeader(payload)
			require.NoError(t, err)
			assert.Equal(t, uint16(ClassBasic), hdr.ClassID)
			assert.Equal(t, uint64(1234), hdr.BodySize)
			assert.Equal(t, tt.p, hdr.Properties)
		})
	}
}

func TestContentHeaderFlagsOnlySetBitsForPresentFields(t *testing.T) {
	payload, err := EncodeContentHeader(ClassBasic, 0, Properties{
		ContentType:  "text/plain",
		DeliveryMode: 2,
	})
	require.NoError(t, err)

	r := NewReader(payload)
	_, err = r.ReadShort() // class id
	require.NoError(t, err)
	_, err = r.ReadShort() // weight
	require.NoError(t, err)
	_, err = r.ReadLongLong() // body size
	require.NoError(t, err)
	flags, err := r.ReadShort()
	require.NoError(t, err)

	assert.NotZero(t, flags&flagContentType)
	assert.NotZero(t, flags&flagDeliveryMode)
	assert.Zero(t, flags&flagContentEncoding)
	assert.Zero(t, flags&flagHeaders)
	assert.Zero(t, flags&flagPriority)
	assert.Zero(t, flags&flagTimestamp)
	assert.Zero(t, flags&1, "continuation bit never set by this library")
}
