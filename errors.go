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
	"fmt"

	"github.com/pkg/errors"
)

// Kind is this library's error taxonomy. It is not a Go type per kind —
// every failure is an *Error carrying one Kind — so callers switch on Kind
// rather than doing type assertions.
type Kind string

const (
	KindEncodingError     Kind = "EncodingError"
	KindMalformedFrame    Kind = "MalformedFrame"
	KindProtocolViolation Kind = "ProtocolViolation"
	KindUnknownMethod     Kind = "UnknownMethod"
	KindHeartbeatMissed   Kind = "HeartbeatMissed"
	KindTimeout           Kind = "Timeout"
	KindConnectionClosed  Kind = "ConnectionClosed"
	KindChannelClosed     Kind = "ChannelClosed"
	KindIOWait            Kind = "IOWait"
	KindAuthFailure       Kind = "AuthFailure"
)

// replyCodeNames maps the AMQP 0-9-1 reply codes this client is likely to
// see back to their protocol mnemonics.
var replyCodeNames = map[uint16]string{
	0:   "OK",
	311: "CONTENT_TOO_LARGE",
	312: "NO_ROUTE",
	313: "NO_CONSUMERS",
	403: "ACCESS_REFUSED",
	404: "NOT_FOUND",
	405: "RESOURCE_LOCKED",
	406: "PRECONDITION_FAILED",
	501: "FRAME_ERROR",
	502: "SYNTAX_ERROR",
	503: "COMMAND_INVALID",
	504: "CHANNEL_ERROR",
	505: "UNEXPECTED_FRAME",
	530: "NOT_ALLOWED",
	540: "NOT_IMPLEMENTED",
	541: "INTERNAL_ERROR",
}

// ReplyCodeName returns the AMQP reply-code mnemonic, or "UNKNOWN" for an
// unrecognized code.
func ReplyCodeName(code uint16) string {
	if s, ok := replyCodeNames[code]; ok {
		return s
	}
	return "UNKNOWN"
}

// Error is the single error type this library returns. ReplyCode/ReplyText
// /FailingClassID/FailingMethodID are populated for KindConnectionClosed
// and KindChannelClosed, mirroring the fields AMQP's own close methods
// carry.
type Error struct {
	Kind            Kind
	ReplyCode       uint16
	ReplyText       string
	FailingClassID  uint16
	FailingMethodID uint16
	cause           error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindConnectionClosed, KindChannelClosed:
		if e.ReplyCode != 0 {
			return fmt.Sprintf("%s: %d %s (%s)", e.Kind, e.ReplyCode, ReplyCodeName(e.ReplyCode), e.ReplyText)
		}
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.cause)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.cause }

// Is makes errors.Is(err, someKindSentinel) work: two *Error values match
// if they share a Kind, regardless of their other fields.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, cause: errors.Errorf(format, args...)}
}

func wrapError(kind Kind, cause error) *Error {
	return &Error{Kind: kind, cause: cause}
}

// connectionClosedError builds a KindConnectionClosed error from a
// connection.close method's fields (or zero-valued when the transport
// simply vanished).
func connectionClosedError(replyCode uint16, replyText string, failingClassID, failingMethodID uint16) *Error {
	return &Error{
		Kind:            KindConnectionClosed,
		ReplyCode:       replyCode,
		ReplyText:       replyText,
		FailingClassID:  failingClassID,
		FailingMethodID: failingMethodID,
	}
}

// channelClosedError builds a KindChannelClosed error from a
// channel.close method's fields.
func channelClosedError(replyCode uint16, replyText string, failingClassID, failingMethodID uint16) *Error {
	return &Error{
		Kind:            KindChannelClosed,
		ReplyCode:       replyCode,
		ReplyText:       replyText,
		FailingClassID:  failingClassID,
		FailingMethodID: failingMethodID,
	}
}

// Sentinel Kind-matching values for errors.Is(err, amqp.ErrX) callers.
var (
	ErrEncodingError     = &Error{Kind: KindEncodingError}
	ErrMalformedFrame    = &Error{Kind: KindMalformedFrame}
	ErrProtocolViolation = &Error{Kind: KindProtocolViolation}
	ErrUnknownMethod     = &Error{Kind: KindUnknownMethod}
	ErrHeartbeatMissed   = &Error{Kind: KindHeartbeatMissed}
	ErrTimeout           = &Error{Kind: KindTimeout}
	ErrConnectionClosed  = &Error{Kind: KindConnectionClosed}
	ErrChannelClosed     = &Error{Kind: KindChannelClosed}
	ErrIOWait            = &Error{Kind: KindIOWait}
	ErrAuthFailure       = &Error{Kind: KindAuthFailure}
)
