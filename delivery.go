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

package amqp

import (
	"time"

	"github.com/packetd/goamqp/internal/wire"
)

// Publishing is the message a caller hands to Channel.Publish.
type Publishing struct {
	ContentType     string
	ContentEncoding string
	Headers         map[string]any
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
	Body            []byte
}

func (p Publishing) toWireProperties(dialect wire.Dialect) wire.Properties {
	var headers wire.Table
	for k, v := range p.Headers {
		headers = headers.Set(k, wire.FromAny(v, dialect))
	}
	return wire.Properties{
		ContentType:     p.ContentType,
		ContentEncoding: p.ContentEncoding,
		Headers:         headers,
		DeliveryMode:    p.DeliveryMode,
		Priority:        p.Priority,
		CorrelationID:   p.CorrelationID,
		ReplyTo:         p.ReplyTo,
		Expiration:      p.Expiration,
		MessageID:       p.MessageID,
		Timestamp:       p.Timestamp,
		Type:            p.Type,
		UserID:          p.UserID,
		AppID:           p.AppID,
	}
}

// Delivery is a fully-assembled inbound message: a basic.deliver,
// basic.return, or basic.get-ok's method arguments, properties, and body,
// assembled while the owning channel is in ReceivingContent.
type Delivery struct {
	ConsumerTag string
	DeliveryTag uint64
	Redelivered bool
	Exchange    string
	RoutingKey  string

	ReplyCode uint16 // basic.return only
	ReplyText string // basic.return only

	Properties wire.Properties
	Body       []byte

	channel *Channel
}

// Ack acknowledges this delivery. multiple acknowledges every unacked
// delivery up to and including this one.
func (d *Delivery) Ack(multiple bool) error {
	return d.channel.Ack(d.DeliveryTag, multiple)
}

// Nack negatively acknowledges this delivery.
func (d *Delivery) Nack(multiple, requeue bool) error {
	return d.channel.Nack(d.DeliveryTag, multiple, requeue)
}

// Reject rejects this delivery (single-tag nack with no multiple flag).
func (d *Delivery) Reject(requeue bool) error {
	return d.channel.Reject(d.DeliveryTag, requeue)
}

// pendingContent accumulates one content-bearing method's header and body
// frames while a channel is in ReceivingContent.
type pendingContent struct {
	method    wire.ClassMethod
	args      []wire.Value
	header    *wire.ContentHeader
	body      []byte
	remaining uint64
}

// addBody appends a body frame's payload. It reports an error if chunk
// would push the accumulated body past the length the content header
// declared, rather than silently truncating a misbehaving peer's overshoot.
func (p *pendingContent) addBody(chunk []byte) error {
	if uint64(len(chunk)) > p.remaining {
		return newError(KindMalformedFrame, "body frame overshoots declared body_size: got %d bytes with %d remaining", len(chunk), p.remaining)
	}
	p.body = append(p.body, chunk...)
	p.remaining -= uint64(len(chunk))
	return nil
}

func (p *pendingContent) complete() bool {
	return p.header != nil && p.remaining == 0
}
