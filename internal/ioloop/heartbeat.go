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
	"time"

	"github.com/pkg/errors"

	"github.com/packetd/goamqp/internal/wire"
	"github.com/packetd/goamqp/metrics"
)

// ErrHeartbeatMissed is returned by CheckHeartbeat when no frame has been
// read or written for longer than 2*heartbeat+1 seconds.
var ErrHeartbeatMissed = errors.New("ioloop: heartbeat missed")

// CheckHeartbeat is called before every Wait: it closes the connection and
// fails if the later of the last read and the last write is older than the
// missed-heartbeat threshold, and it emits a heartbeat frame if this side
// has been silent past half the negotiated interval.
func (d *Driver) CheckHeartbeat(heartbeat time.Duration) error {
	if heartbeat <= 0 {
		return nil
	}

	lastRead, lastWrite := d.lastActivity()
	if lastRead.IsZero() || lastWrite.IsZero() {
		return nil
	}

	now := time.Now()
	lastActivity := lastRead
	if lastWrite.After(lastActivity) {
		lastActivity = lastWrite
	}

	if now.Sub(lastActivity) > 2*heartbeat+time.Second {
		metrics.HeartbeatsMissed.Inc()
		_ = d.Close()
		return ErrHeartbeatMissed
	}

	if now.Sub(lastWrite) > heartbeat/2 {
		if err := d.WriteAll(wire.Heartbeat); err != nil {
			return err
		}
		metrics.HeartbeatsSent.Inc()
	}
	return nil
}
