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
	"net"
	"os"
	"os/signal"
	"time"

	"github.com/packetd/goamqp/internal/sigs"
)

// WaitResult is the outcome of Wait.
type WaitResult int

const (
	Readable WaitResult = iota
	Timeout
	Interrupted
	// IOError means the peek against the transport failed with something
	// other than a deadline timeout (EOF, connection reset, and so on).
	// The accompanying error is the real cause; callers should treat the
	// connection as dead rather than loop back into another Wait.
	IOError
)

// Wait blocks until the transport is readable, timeout elapses, or (when
// the driver was configured with DispatchSignals) a terminate/interrupt
// signal arrives. It never consumes the readable byte (bufio.Reader.Peek
// leaves it for the next ReadExact/ReadFrame), so Wait is safe to call
// repeatedly before actually reading a frame.
//
// When signal dispatch is enabled, it reuses internal/sigs' Terminate() to
// get a SIGINT/SIGTERM channel, then layers a per-call signal.Stop on top
// so the subscription doesn't outlive this one wait (Terminate alone is
// meant for a process-lifetime subscription; Wait needs "install, wait,
// restore" instead).
func (d *Driver) Wait(timeout time.Duration) (WaitResult, error) {
	if d.closed.Load() {
		return 0, ErrClosed
	}

	var sigCh chan os.Signal
	if d.dispatchSignals {
		sigCh = sigs.Terminate()
		defer signal.Stop(sigCh)
	}

	if err := d.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, err
	}

	type peekResult struct {
		err error
	}
	resultCh := make(chan peekResult, 1)
	go func() {
		_, err := d.reader.Peek(1)
		resultCh <- peekResult{err}
	}()

	select {
	case r := <-resultCh:
		if r.err == nil {
			return Readable, nil
		}
		// A deadline timeout is the expected, recurring case: the peer
		// simply hasn't sent anything yet. Anything else (io.EOF,
		// connection reset, ...) means the transport is actually gone and
		// must be surfaced, not folded into the same outcome as a timeout.
		if ne, ok := r.err.(net.Error); ok && ne.Timeout() {
			return Timeout, nil
		}
		return IOError, r.err

	case <-sigCh:
		return Interrupted, nil
	}
}
