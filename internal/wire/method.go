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

import "encoding/binary"

// ClassMethod identifies an AMQP method by its (class-id, method-id) pair,
// using the ids the protocol assigns to each class and method. The
// registry below additionally records each method's full argument schema
// so methods can be encoded and decoded generically instead of by a
// per-method switch.
type ClassMethod struct {
	ClassID  uint16
	MethodID uint16
}

const (
	ClassConnection = 10
	ClassChannel    = 20
	ClassExchange   = 40
	ClassQueue      = 50
	ClassBasic      = 60
	ClassTx         = 90
	ClassConfirm    = 85
)

var ClassNames = map[uint16]string{
	ClassConnection: "connection",
	ClassChannel:    "channel",
	ClassExchange:   "exchange",
	ClassQueue:      "queue",
	ClassBasic:      "basic",
	ClassTx:         "tx",
	ClassConfirm:    "confirm",
}

// MethodInfo is one registry entry: its human name, its ordered argument
// schema, and whether it is followed by a content header + body.
type MethodInfo struct {
	Name           string
	Args           []Kind
	CarriesContent bool
}

// Kind is the wire type of one method or property-list argument. Unlike a
// field-table Value, method arguments are not self-tagged: their type is
// fixed by the schema.
type Kind uint8

const (
	KindBit Kind = iota
	KindOctet
	KindShort
	KindLong
	KindLongLong
	KindShortStr
	KindLongStr
	KindTable
	KindTimestamp
)

// Methods is the (class-id, method-id) -> schema registry, covering the
// six base AMQP 0-9-1 classes plus confirm.select/select-ok (RabbitMQ's
// publisher-confirms extension, class 85).
var Methods = map[ClassMethod]MethodInfo{
	{ClassConnection, 10}: {"start", []Kind{KindOctet, KindOctet, KindTable, KindLongStr, KindLongStr}, false},
	{ClassConnection, 11}: {"start-ok", []Kind{KindTable, KindShortStr, KindLongStr, KindShortStr}, false},
	{ClassConnection, 20}: {"secure", []Kind{KindLongStr}, false},
	{ClassConnection, 21}: {"secure-ok", []Kind{KindLongStr}, false},
	{ClassConnection, 30}: {"tune", []Kind{KindShort, KindLong, KindShort}, false},
	{ClassConnection, 31}: {"tune-ok", []Kind{KindShort, KindLong, KindShort}, false},
	{ClassConnection, 40}: {"open", []Kind{KindShortStr, KindShortStr, KindBit}, false},
	{ClassConnection, 41}: {"open-ok", []Kind{KindShortStr}, false},
	{ClassConnection, 50}: {"close", []Kind{KindShort, KindShortStr, KindShort, KindShort}, false},
	{ClassConnection, 51}: {"close-ok", nil, false},
	{ClassConnection, 60}: {"blocked", []Kind{KindShortStr}, false},
	{ClassConnection, 61}: {"unblocked", nil, false},

	{ClassChannel, 10}: {"open", []Kind{KindShortStr}, false},
	{ClassChannel, 11}: {"open-ok", []Kind{KindLongStr}, false},
	{ClassChannel, 20}: {"flow", []Kind{KindBit}, false},
	{ClassChannel, 21}: {"flow-ok", []Kind{KindBit}, false},
	{ClassChannel, 40}: {"close", []Kind{KindShort, KindShortStr, KindShort, KindShort}, false},
	{ClassChannel, 41}: {"close-ok", nil, false},

	{ClassExchange, 10}: {"declare", []Kind{KindShort, KindShortStr, KindShortStr, KindBit, KindBit, KindBit, KindBit, KindBit, KindTable}, false},
	{ClassExchange, 11}: {"declare-ok", nil, false},
	{ClassExchange, 20}: {"delete", []Kind{KindShort, KindShortStr, KindBit, KindBit}, false},
	{ClassExchange, 21}: {"delete-ok", nil, false},
	{ClassExchange, 30}: {"bind", []Kind{KindShort, KindShortStr, KindShortStr, KindShortStr, KindBit, KindTable}, false},
	{ClassExchange, 31}: {"bind-ok", nil, false},
	{ClassExchange, 40}: {"unbind", []Kind{KindShort, KindShortStr, KindShortStr, KindShortStr, KindBit, KindTable}, false},
	{ClassExchange, 51}: {"unbind-ok", nil, false},

	{ClassQueue, 10}: {"declare", []Kind{KindShort, KindShortStr, KindBit, KindBit, KindBit, KindBit, KindBit, KindTable}, false},
	{ClassQueue, 11}: {"declare-ok", []Kind{KindShortStr, KindLong, KindLong}, false},
	{ClassQueue, 20}: {"bind", []Kind{KindShort, KindShortStr, KindShortStr, KindShortStr, KindBit, KindTable}, false},
	{ClassQueue, 21}: {"bind-ok", nil, false},
	{ClassQueue, 30}: {"purge", []Kind{KindShort, KindShortStr, KindBit}, false},
	{ClassQueue, 31}: {"purge-ok", []Kind{KindLong}, false},
	{ClassQueue, 40}: {"delete", []Kind{KindShort, KindShortStr, KindBit, KindBit, KindBit}, false},
	{ClassQueue, 41}: {"delete-ok", []Kind{KindLong}, false},
	{ClassQueue, 50}: {"unbind", []Kind{KindShort, KindShortStr, KindShortStr, KindShortStr, KindTable}, false},
	{ClassQueue, 51}: {"unbind-ok", nil, false},

	{ClassBasic, 10}:  {"qos", []Kind{KindLong, KindShort, KindBit}, false},
	{ClassBasic, 11}:  {"qos-ok", nil, false},
	{ClassBasic, 20}:  {"consume", []Kind{KindShort, KindShortStr, KindShortStr, KindBit, KindBit, KindBit, KindBit, KindTable}, false},
	{ClassBasic, 21}:  {"consume-ok", []Kind{KindShortStr}, false},
	{ClassBasic, 30}:  {"cancel", []Kind{KindShortStr, KindBit}, false},
	{ClassBasic, 31}:  {"cancel-ok", []Kind{KindShortStr}, false},
	{ClassBasic, 40}:  {"publish", []Kind{KindShort, KindShortStr, KindShortStr, KindBit, KindBit}, true},
	{ClassBasic, 50}:  {"return", []Kind{KindShort, KindShortStr, KindShortStr, KindShortStr}, true},
	{ClassBasic, 60}:  {"deliver", []Kind{KindShortStr, KindLongLong, KindBit, KindShortStr, KindShortStr}, true},
	{ClassBasic, 70}:  {"get", []Kind{KindShort, KindShortStr, KindBit}, false},
	{ClassBasic, 71}:  {"get-ok", []Kind{KindLongLong, KindBit, KindShortStr, KindShortStr, KindLong}, true},
	{ClassBasic, 72}:  {"get-empty", []Kind{KindShortStr}, false},
	{ClassBasic, 80}:  {"ack", []Kind{KindLongLong, KindBit}, false},
	{ClassBasic, 90}:  {"reject", []Kind{KindLongLong, KindBit}, false},
	{ClassBasic, 100}: {"recover-async", []Kind{KindBit}, false},
	{ClassBasic, 110}: {"recover", []Kind{KindBit}, false},
	{ClassBasic, 111}: {"recover-ok", nil, false},
	{ClassBasic, 120}: {"nack", []Kind{KindLongLong, KindBit, KindBit}, false},

	{ClassTx, 10}: {"select", nil, false},
	{ClassTx, 11}: {"select-ok", nil, false},
	{ClassTx, 20}: {"commit", nil, false},
	{ClassTx, 21}: {"commit-ok", nil, false},
	{ClassTx, 30}: {"rollback", nil, false},
	{ClassTx, 31}: {"rollback-ok", nil, false},

	{ClassConfirm, 10}: {"select", []Kind{KindBit}, false},
	{ClassConfirm, 11}: {"select-ok", nil, false},
}

// classMethodPairs maps a request method name to its synchronous reply
// method name, and drives Channel's synchronous-wait matching.
var classMethodPairs = map[string]string{
	"start":    "start-ok",
	"secure":   "secure-ok",
	"tune":     "tune-ok",
	"open":     "open-ok",
	"close":    "close-ok",
	"flow":     "flow-ok",
	"declare":  "declare-ok",
	"delete":   "delete-ok",
	"bind":     "bind-ok",
	"unbind":   "unbind-ok",
	"purge":    "purge-ok",
	"qos":      "qos-ok",
	"consume":  "consume-ok",
	"cancel":   "cancel-ok",
	"get":      "get-ok",
	"recover":  "recover-ok",
	"select":   "select-ok",
	"commit":   "commit-ok",
	"rollback": "rollback-ok",
}

// ExpectedReply returns the (class-id, method-id) of the synchronous
// reply to a request method, if any.
func ExpectedReply(cm ClassMethod) (ClassMethod, bool) {
	info, ok := Methods[cm]
	if !ok {
		return ClassMethod{}, false
	}
	replyName, ok := classMethodPairs[info.Name]
	if !ok {
		return ClassMethod{}, false
	}
	for k, v := range Methods {
		if k.ClassID == cm.ClassID && v.Name == replyName {
			return k, true
		}
	}
	return ClassMethod{}, false
}

// DecodeMethodHeader reads the (class-id, method-id) prefix of a method
// frame's payload and returns it plus the remaining argument bytes.
func DecodeMethodHeader(payload []byte) (ClassMethod, []byte, error) {
	if len(payload) < 4 {
		return ClassMethod{}, nil, malformed("method frame too short")
	}
	cm := ClassMethod{
		ClassID:  binary.BigEndian.Uint16(payload[0:2]),
		MethodID: binary.BigEndian.Uint16(payload[2:4]),
	}
	return cm, payload[4:], nil
}
