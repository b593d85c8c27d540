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

// Properties is the basic-class content-header property list: 14
// fixed-order properties, each present or absent according to a
// property_flags bitmask. Presence is derived from Go zero values on
// encode (empty string / zero byte / nil table / zero time means
// "absent"), the same convention production AMQP clients use so callers
// never have to juggle a separate "is it set" bit per field.
type Properties struct {
	ContentType     string
	ContentEncoding string
	Headers         Table
	DeliveryMode    uint8
	Priority        uint8
	CorrelationID   string
	ReplyTo         string
	Expiration      string
	MessageID       string
	Timestamp       time.Time
	Type            string
	UserID          string
	AppID           string
	reserved        string // cluster-id, bit 2: deprecated, never set by this library
}

// property bit positions within the single 16-bit flags word: bit 0
// signals continuation (never set here, since this library never emits a
// second property-flags word), bits 15..1 carry the 14 properties, and
// bit 1 is unused because only 14 of the 15 non-continuation bits are
// assigned.
const (
	flagContentType     = 1 << 15
	flagContentEncoding = 1 << 14
	flagHeaders         = 1 << 13
	flagDeliveryMode    = 1 << 12
	flagPriority        = 1 << 11
	flagCorrelationID   = 1 << 10
	flagReplyTo         = 1 << 9
	flagExpiration      = 1 << 8
	flagMessageID       = 1 << 7
	flagTimestamp       = 1 << 6
	flagType            = 1 << 5
	flagUserID          = 1 << 4
	flagAppID           = 1 << 3
	flagReserved        = 1 << 2
)

// EncodeContentHeader writes class_id:2 | weight:2(=0) | body_size:8 |
// property_flags | property_list.
func EncodeContentHeader(classID uint16, bodySize uint64, p Properties) ([]byte, error) {
	w := NewWriter()
	defer w.Release()

	w.WriteShort(classID)
	w.WriteShort(0) // weight, always 0
	w.WriteLongLong(bodySize)

	var flags uint16
	if p.ContentType != "" {
		flags |= flagContentType
	}
	if p.ContentEncoding != "" {
		flags |= flagContentEncoding
	}
	if p.Headers != nil {
		flags |= flagHeaders
	}
	if p.DeliveryMode != 0 {
		flags |= flagDeliveryMode
	}
	if p.Priority != 0 {
		flags |= flagPriority
	}
	if p.CorrelationID != "" {
		flags |= flagCorrelationID
	}
	if p.ReplyTo != "" {
		flags |= flagReplyTo
	}
	if p.Expiration != "" {
		flags |= flagExpiration
	}
	if p.MessageID != "" {
		flags |= flagMessageID
	}
	if !p.Timestamp.IsZero() {
		flags |= flagTimestamp
	}
	if p.Type != "" {
		flags |= flagType
	}
	if p.UserID != "" {
		flags |= flagUserID
	}
	if p.AppID != "" {
		flags |= flagAppID
	}
	if p.reserved != "" {
		flags |= flagReserved
	}
	// bit 0 of this word is the continuation flag; a single word always
	// suffices for the 14 defined properties, so it stays 0.
	w.WriteShort(flags)

	write := func(err *error, fn func() error) {
		if *err == nil {
			*err = fn()
		}
	}
	var err error
	if flags&flagContentType != 0 {
		write(&err, func() error { return w.WriteShortStr(p.ContentType) })
	}
	if flags&flagContentEncoding != 0 {
		write(&err, func() error { return w.WriteShortStr(p.ContentEncoding) })
	}
	if flags&flagHeaders != 0 {
		write(&err, func() error { return w.WriteTable(p.Headers) })
	}
	if flags&flagDeliveryMode != 0 {
		w.WriteOctet(p.DeliveryMode)
	}
	if flags&flagPriority != 0 {
		w.WriteOctet(p.Priority)
	}
	if flags&flagCorrelationID != 0 {
		write(&err, func() error { return w.WriteShortStr(p.CorrelationID) })
	}
	if flags&flagReplyTo != 0 {
		write(&err, func() error { return w.WriteShortStr(p.ReplyTo) })
	}
	if flags&flagExpiration != 0 {
		write(&err, func() error { return w.WriteShortStr(p.Expiration) })
	}
	if flags&flagMessageID != 0 {
		write(&err, func() error { return w.WriteShortStr(p.MessageID) })
	}
	if flags&flagTimestamp != 0 {
		w.WriteTimestamp(p.Timestamp)
	}
	if flags&flagType != 0 {
		write(&err, func() error { return w.WriteShortStr(p.Type) })
	}
	if flags&flagUserID != 0 {
		write(&err, func() error { return w.WriteShortStr(p.UserID) })
	}
	if flags&flagAppID != 0 {
		write(&err, func() error { return w.WriteShortStr(p.AppID) })
	}
	if flags&flagReserved != 0 {
		write(&err, func() error { return w.WriteShortStr(p.reserved) })
	}
	if err != nil {
		return nil, err
	}

	out := make([]byte, len(w.Bytes()))
	copy(out, w.Bytes())
	return out, nil
}

// ContentHeader is the decoded result of a header frame: the content
// class, the declared body size, and the property list.
type ContentHeader struct {
	ClassID    uint16
	BodySize   uint64
	Properties Properties
}

// DecodeContentHeader parses a header-frame payload.
func DecodeContentHeader(payload []byte) (ContentHeader, error) {
	r := NewReader(payload)
	classID, err := r.ReadShort()
	if err != nil {
		return ContentHeader{}, err
	}
	if _, err := r.ReadShort(); err != nil { // weight, ignored
		return ContentHeader{}, err
	}
	bodySize, err := r.ReadLongLong()
	if err != nil {
		return ContentHeader{}, err
	}

	var flags uint16
	for i := 0; ; i++ {
		word, err := r.ReadShort()
		if err != nil {
			return ContentHeader{}, err
		}
		if i == 0 {
			flags = word
		}
		if word&1 == 0 {
			break // no continuation word follows
		}
		// A continuation word's own presence bits are not defined by the
		// 14-property basic class; only the continuation chain itself
		// needs honoring, not a second property block.
	}

	var p Properties
	if flags&flagContentType != 0 {
		if p.ContentType, err = r.ReadShortStr(); err != nil {
			return ContentHeader{}, err
		}
	}
	if flags&flagContentEncoding != 0 {
		if p.ContentEncoding, err = r.ReadShortStr(); err != nil {
			return ContentHeader{}, err
		}
	}
	if flags&flagHeaders != 0 {
		if p.Headers, err = r.ReadTable(); err != nil {
			return ContentHeader{}, err
		}
	}
	if flags&flagDeliveryMode != 0 {
		if p.DeliveryMode, err = r.ReadOctet(); err != nil {
			return ContentHeader{}, err
		}
	}
	if flags&flagPriority != 0 {
		if p.Priority, err = r.ReadOctet(); err != nil {
			return ContentHeader{}, err
		}
	}
	if flags&flagCorrelationID != 0 {
		if p.CorrelationID, err = r.ReadShortStr(); err != nil {
			return ContentHeader{}, err
		}
	}
	if flags&flagReplyTo != 0 {
		if p.ReplyTo, err = r.ReadShortStr(); err != nil {
			return ContentHeader{}, err
		}
	}
	if flags&flagExpiration != 0 {
		if p.Expiration, err = r.ReadShortStr(); err != nil {
			return ContentHeader{}, err
		}
	}
	if flags&flagMessageID != 0 {
		if p.MessageID, err = r.ReadShortStr(); err != nil {
			return ContentHeader{}, err
		}
	}
	if flags&flagTimestamp != 0 {
		if p.Timestamp, err = r.ReadTimestamp(); err != nil {
			return ContentHeader{}, err
		}
	}
	if flags&flagType != 0 {
		if p.Type, err = r.ReadShortStr(); err != nil {
			return ContentHeader{}, err
		}
	}
	if flags&flagUserID != 0 {
		if p.UserID, err = r.ReadShortStr(); err != nil {
			return ContentHeader{}, err
		}
	}
	if flags&flagAppID != 0 {
		if p.AppID, err = r.ReadShortStr(); err != nil {
			return ContentHeader{}, err
		}
	}
	if flags&flagReserved != 0 {
		if p.reserved, err = r.ReadShortStr(); err != nil {
			return ContentHeader{}, err
		}
	}

	return ContentHeader{ClassID: classID, BodySize: bodySize, Properties: p}, nil
}
