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

package ioloop

import (
	"bufio"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/packetd/goamqp/internal/wire"
	"github.com/packetd/goamqp/metrics"
)

var (
	// ErrClosed is returned by any operation performed after Close.
	ErrClosed = errors.New("ioloop: driver closed")
)

// Driver is the owned byte transport for one connection: a blocking TCP
// stream with read/write deadlines, plus the frame-level read/write
// helpers the connection FSM drives. last_read/last_write are tracked for
// the heartbeat bookkeeping in heartbeat.go.
type Driver struct {
	conn   net.Conn
	reader *bufio.Reader

	readTimeout  time.Duration
	writeTimeout time.Duration

	writeMu sync.Mutex
	closed  atomic.Bool

	lastMu    sync.Mutex
	lastRead  time.Time
	lastWrite time.Time

	dispatchSignals bool
}

// Options configures Connect.
type Options struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	Keepalive      time.Duration

	// DispatchSignals makes Wait race the read against process
	// SIGINT/SIGTERM so a blocked read loop notices a shutdown signal
	// instead of waiting out the full poll interval. Disable it for an
	// embedder that installs its own signal handling and doesn't want
	// this driver competing for the same signals.
	DispatchSignals bool
}

// Connect dials host:port and records last_read = last_write = now.
func Connect(host string, port int, opt Options) (*Driver, error) {
	dialer := net.Dialer{
		Timeout:   opt.ConnectTimeout,
		KeepAlive: opt.Keepalive,
	}
	conn, err := dialer.Dial("tcp", net.JoinHostPort(host, itoa(port)))
	if err != nil {
		return nil, errors.Wrap(err, "ioloop: dial")
	}

	now := time.Now()
	d := &Driver{
		conn:            conn,
		reader:          bufio.NewReaderSize(conn, 4096),
		readTimeout:     opt.ReadTimeout,
		writeTimeout:    opt.WriteTimeout,
		lastRead:        now,
		lastWrite:       now,
		dispatchSignals: opt.DispatchSignals,
	}
	return d, nil
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [12]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// ReadExact reads exactly n octets, updating last_read on success.
func (d *Driver) ReadExact(n int) ([]byte, error) {
	if d.closed.Load() {
		return nil, ErrClosed
	}
	if d.readTimeout > 0 {
		if err := d.conn.SetReadDeadline(time.Now().Add(d.readTimeout)); err != nil {
			return nil, err
		}
	}
	buf := make([]byte, n)
	if _, err := readFull(d.reader, buf); err != nil {
		return nil, err
	}
	d.touchRead()
	return buf, nil
}

// WriteAll writes b in full, updating last_write on success. Exactly one
// write transaction (WriteAll, WriteFrame, or WriteFrames) is in flight on
// the transport at a time.
func (d *Driver) WriteAll(b []byte) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	return d.writeLocked(b)
}

func (d *Driver) writeLocked(b []byte) error {
	if d.closed.Load() {
		return ErrClosed
	}
	if d.writeTimeout > 0 {
		if err := d.conn.SetWriteDeadline(time.Now().Add(d.writeTimeout)); err != nil {
			return err
		}
	}
	_, err := d.conn.Write(b)
	if err != nil {
		return err
	}
	d.touchWrite()
	metrics.BytesSent.Add(float64(len(b)))
	return nil
}

// ReadFrame reads one complete frame and records its byte/frame metrics.
func (d *Driver) ReadFrame(maxPayload uint32) (wire.Frame, error) {
	f, err := wire.ReadFrame(frameReader{d}, maxPayload)
	if err != nil {
		return wire.Frame{}, err
	}
	metrics.FramesReceived.WithLabelValues(frameTypeLabel(f.Type)).Inc()
	return f, nil
}

// FrameSpec is one frame in a WriteFrames transmission.
type FrameSpec struct {
	Type    byte
	Channel uint16
	Payload []byte
}

// WriteFrame serializes and writes one frame.
func (d *Driver) WriteFrame(typ byte, channel uint16, payload []byte) error {
	return d.WriteFrames(FrameSpec{Type: typ, Channel: channel, Payload: payload})
}

// WriteFrames writes every spec under a single write-lock hold, so a
// basic.publish's method+header+body frames land on the wire contiguously
// even if another goroutine is publishing on a different channel of the
// same connection concurrently.
func (d *Driver) WriteFrames(specs ...FrameSpec) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	for _, s := range specs {
		if err := wire.WriteFrame(rawWriter{d}, s.Type, s.Channel, s.Payload); err != nil {
			return err
		}
		metrics.FramesSent.WithLabelValues(frameTypeLabel(s.Type)).Inc()
	}
	return nil
}

// Close closes the underlying transport. Idempotent.
func (d *Driver) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	return d.conn.Close()
}

func (d *Driver) touchRead() {
	d.lastMu.Lock()
	d.lastRead = time.Now()
	d.lastMu.Unlock()
}

func (d *Driver) touchWrite() {
	d.lastMu.Lock()
	d.lastWrite = time.Now()
	d.lastMu.Unlock()
}

func (d *Driver) lastActivity() (read, write time.Time) {
	d.lastMu.Lock()
	defer d.lastMu.Unlock()
	return d.lastRead, d.lastWrite
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func frameTypeLabel(typ byte) string {
	switch typ {
	case wire.FrameMethod:
		return "method"
	case wire.FrameHeader:
		return "header"
	case wire.FrameBody:
		return "body"
	case wire.FrameHeartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}

// frameReader/rawWriter adapt Driver's deadline+metrics bookkeeping to
// the io.Reader/io.Writer shapes wire.ReadFrame/WriteFrame expect, without
// exposing raw net.Conn access outside this package.
type frameReader struct{ d *Driver }

func (fr frameReader) Read(p []byte) (int, error) {
	b, err := fr.d.ReadExact(len(p))
	if err != nil {
		return 0, err
	}
	copy(p, b)
	metrics.BytesReceived.Add(float64(len(b)))
	return len(b), nil
}

// rawWriter writes directly against an already-held write lock; only
// WriteFrames may construct one.
type rawWriter struct{ d *Driver }

func (rw rawWriter) Write(p []byte) (int, error) {
	if err := rw.d.writeLocked(p); err != nil {
		return 0, err
	}
	return len(p), nil
}
