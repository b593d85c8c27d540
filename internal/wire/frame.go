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
	"encoding/binary"
	"io"
)

// Frame types.
const (
	FrameMethod        byte = 1
	FrameHeader        byte = 2
	FrameBody          byte = 3
	FrameHeartbeat     byte = 8
	frameEnd           byte = 0xCE
	frameHeaderLen          = 7 // type(1) + channel(2) + length(4)
	frameTrailerLen         = 1
	// FrameOverhead is the framing cost (header + end-octet) charged
	// against frame_max for every emitted frame.
	FrameOverhead = frameHeaderLen + frameTrailerLen
)

var frameTypeNames = map[byte]string{
	FrameMethod:    "method",
	FrameHeader:    "header",
	FrameBody:      "body",
	FrameHeartbeat: "heartbeat",
}

func validFrameType(b byte) bool {
	_, ok := frameTypeNames[b]
	return ok
}

// Frame is one decoded AMQP frame: type, channel, and payload. The
// trailing 0xCE is implicit — ReadFrame validates it and does not surface
// it, WriteFrame appends it automatically.
type Frame struct {
	Type    byte
	Channel uint16
	Payload []byte
}

// ReadFrame reads exactly one frame from r: the 7-octet header, then
// length octets of payload, then the mandatory 0xCE end-octet. It
// performs exactly len(payload)+8 bytes worth of reads on success.
func ReadFrame(r io.Reader, maxPayload uint32) (Frame, error) {
	var head [frameHeaderLen]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return Frame{}, err
	}
	typ := head[0]
	if !validFrameType(typ) {
		return Frame{}, malformed("unknown frame type")
	}
	channel := binary.BigEndian.Uint16(head[1:3])
	length := binary.BigEndian.Uint32(head[3:7])
	if maxPayload > 0 && length > maxPayload {
		return Frame{}, malformed("frame payload exceeds frame_max")
	}

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, err
		}
	}

	var end [1]byte
	if _, err := io.ReadFull(r, end[:]); err != nil {
		return Frame{}, err
	}
	if end[0] != frameEnd {
		return Frame{}, malformed("missing frame end-octet")
	}

	return Frame{Type: typ, Channel: channel, Payload: payload}, nil
}

// WriteFrame serializes one frame into a single contiguous byte slice,
// ready for one Write call. The I/O driver may coalesce several of these
// into one syscall, but must flush before a reply is expected.
func WriteFrame(w io.Writer, typ byte, channel uint16, payload []byte) error {
	head := make([]byte, 0, frameHeaderLen+len(payload)+frameTrailerLen)
	head = append(head, typ)
	var chb [2]byte
	binary.BigEndian.PutUint16(chb[:], channel)
	head = append(head, chb[:]...)
	var lb [4]byte
	binary.BigEndian.PutUint32(lb[:], uint32(len(payload)))
	head = append(head, lb[:]...)
	head = append(head, payload...)
	head = append(head, frameEnd)
	_, err := w.Write(head)
	return err
}

// Heartbeat is the pre-encoded zero-length heartbeat frame on channel 0.
var Heartbeat = []byte{FrameHeartbeat, 0, 0, 0, 0, 0, 0, frameEnd}
