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
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packetd/goamqp/internal/ioloop"
	"github.com/packetd/goamqp/internal/wire"
	"github.com/packetd/goamqp/logger"
)

// newLoopbackConnection dials a real TCP loopback so Channel exercises its
// actual ioloop.Driver rather than a hand-rolled transport stub. The
// returned server conn lets a test play the broker side directly.
func newLoopbackConnection(t *testing.T) (*Connection, net.Conn) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		accepted <- c
	}()

	addr := ln.Addr().(*net.TCPAddr)
	drv, err := ioloop.Connect("127.0.0.1", addr.Port, ioloop.Options{})
	require.NoError(t, err)

	server := <-accepted
	require.NotNil(t, server)

	conn := &Connection{
		driver:        drv,
		log:           logger.Nop{},
		channels:      make(map[uint16]*Channel),
		nextChannelID: 1,
		closed:        make(chan struct{}),
		frameMax:      131072,
	}
	conn.state.Store(int32(StateOpen))

	t.Cleanup(func() {
		_ = drv.Close()
		_ = server.Close()
	})
	return conn, server
}

func newOpenChannel(t *testing.T, conn *Connection, id uint16) *Channel {
	t.Helper()
	ch := newChannel(conn, id)
	conn.mu.Lock()
	conn.channels[id] = ch
	conn.mu.Unlock()
	ch.state.Store(int32(ChannelOpen))
	return ch
}

func TestChannelFlowPausesAndResumesPublish(t *testing.T) {
	conn, server := newLoopbackConnection(t)
	ch := newOpenChannel(t, conn, 1)

	// drain whatever the channel writes back (flow-ok acks) so the
	// client-side writes never block on a full socket buffer.
	go func() {
		for {
			if _, err := wire.ReadFrame(server, 1<<20); err != nil {
				return
			}
		}
	}()

	ch.handleFlow([]wire.Value{wire.Bool(false)})

	done := make(chan error, 1)
	go func() {
		_, err := ch.Publish("", "q", false, false, Publishing{Body: []byte("hi")})
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("Publish returned while flow was paused")
	case <-time.After(50 * time.Millisecond):
	}

	ch.handleFlow([]wire.Value{wire.Bool(true)})

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Publish did not unblock after flow resumed")
	}
}

func TestChannelAwaitFlowReturnsOnClose(t *testing.T) {
	conn, _ := newLoopbackConnection(t)
	ch := newOpenChannel(t, conn, 1)

	ch.handleFlow([]wire.Value{wire.Bool(false)})
	ch.fail(newError(KindProtocolViolation, "forced close for test"))

	err := ch.awaitFlow()
	var amqpErr *Error
	require.ErrorAs(t, err, &amqpErr)
	assert.Equal(t, KindProtocolViolation, amqpErr.Kind)
}

func TestChannelReceivingContentRejectsInterleavedMethod(t *testing.T) {
	conn, _ := newLoopbackConnection(t)
	ch := newOpenChannel(t, conn, 1)

	deliverPayload, err := wire.EncodeMethod(wire.ClassMethod{ClassID: wire.ClassBasic, MethodID: 60}, []wire.Value{
		wire.ShortString("ctag-1"), wire.Uint64(1), wire.Bool(false), wire.ShortString("ex"), wire.ShortString("rk"),
	})
	require.NoError(t, err)
	ch.handleMethodFrame(deliverPayload)
	assert.Equal(t, ChannelOpen, ch.State(), "beginning content must not itself close the channel")

	otherPayload, err := wire.EncodeMethod(wire.ClassMethod{ClassID: wire.ClassBasic, MethodID: 111}, nil) // recover-ok
	require.NoError(t, err)
	ch.handleMethodFrame(otherPayload)

	assert.Equal(t, ChannelClosed, ch.State())
	var amqpErr *Error
	require.ErrorAs(t, ch.closeErr, &amqpErr)
	assert.Equal(t, KindProtocolViolation, amqpErr.Kind)
}

func TestChannelBodyOvershootClosesChannelWithMalformedFrame(t *testing.T) {
	conn, _ := newLoopbackConnection(t)
	ch := newOpenChannel(t, conn, 1)

	deliverPayload, err := wire.EncodeMethod(wire.ClassMethod{ClassID: wire.ClassBasic, MethodID: 60}, []wire.Value{
		wire.ShortString("ctag-1"), wire.Uint64(1), wire.Bool(false), wire.ShortString("ex"), wire.ShortString("rk"),
	})
	require.NoError(t, err)
	ch.handleMethodFrame(deliverPayload)

	headerPayload, err := wire.EncodeContentHeader(wire.ClassBasic, 5, wire.Properties{})
	require.NoError(t, err)
	ch.handleHeaderFrame(headerPayload)
	require.Equal(t, ChannelOpen, ch.State())

	ch.handleBodyFrame([]byte("this body is way longer than 5 bytes"))

	assert.Equal(t, ChannelClosed, ch.State())
	var amqpErr *Error
	require.ErrorAs(t, ch.closeErr, &amqpErr)
	assert.Equal(t, KindMalformedFrame, amqpErr.Kind)
}

func TestChannelPublishDeliveryTagsStrictlyIncreasing(t *testing.T) {
	conn, server := newLoopbackConnection(t)
	ch := newOpenChannel(t, conn, 1)
	ch.confirmsOn = true

	go func() {
		for {
			if _, err := wire.ReadFrame(server, 1<<20); err != nil {
				return
			}
		}
	}()

	var seqs []uint64
	for i := 0; i < 5; i++ {
		seq, err := ch.Publish("", "q", false, false, Publishing{Body: []byte("x")})
		require.NoError(t, err)
		seqs = append(seqs, seq)
	}

	for i := 1; i < len(seqs); i++ {
		assert.Greater(t, seqs[i], seqs[i-1])
	}
}

func TestChannelClosesOnNotFound(t *testing.T) {
	conn, server := newLoopbackConnection(t)
	ch := newOpenChannel(t, conn, 1)

	callErr := make(chan error, 1)
	go func() {
		_, err := ch.call(wire.ClassMethod{ClassID: wire.ClassQueue, MethodID: 10}, []wire.Value{
			wire.Uint16(0), wire.ShortString("missing"), wire.Bool(true), wire.Bool(false),
			wire.Bool(false), wire.Bool(false), wire.Bool(false), wire.TableValue(nil),
		})
		callErr <- err
	}()

	declareFrame, err := wire.ReadFrame(server, 1<<20)
	require.NoError(t, err)
	cm, _, err := wire.DecodeMethod(declareFrame.Payload)
	require.NoError(t, err)
	assert.Equal(t, wire.ClassMethod{ClassID: wire.ClassQueue, MethodID: 10}, cm)

	closePayload, err := wire.EncodeMethod(wire.ClassMethod{ClassID: wire.ClassChannel, MethodID: 40}, []wire.Value{
		wire.Uint16(404), wire.ShortString("NOT_FOUND - no queue"), wire.Uint16(wire.ClassQueue), wire.Uint16(10),
	})
	require.NoError(t, err)
	require.NoError(t, wire.WriteFrame(server, wire.FrameMethod, 1, closePayload))

	f, err := conn.driver.ReadFrame(1 << 20)
	require.NoError(t, err)
	ch.handleFrame(f)

	ackFrame, err := wire.ReadFrame(server, 1<<20)
	require.NoError(t, err)
	ackCM, _, err := wire.DecodeMethod(ackFrame.Payload)
	require.NoError(t, err)
	assert.Equal(t, wire.ClassMethod{ClassID: wire.ClassChannel, MethodID: 41}, ackCM, "channel.close-ok must be emitted")

	err = <-callErr
	var amqpErr *Error
	require.ErrorAs(t, err, &amqpErr)
	assert.Equal(t, KindChannelClosed, amqpErr.Kind)
	assert.Equal(t, uint16(404), amqpErr.ReplyCode)

	assert.Equal(t, ChannelClosed, ch.State())
	assert.Equal(t, StateOpen, conn.State(), "connection must stay Open on a channel-level close")
}

func TestChannelAtMostOnePendingSyncCall(t *testing.T) {
	conn, server := newLoopbackConnection(t)
	ch := newOpenChannel(t, conn, 1)

	first := make(chan error, 1)
	go func() {
		_, err := ch.call(wire.ClassMethod{ClassID: wire.ClassChannel, MethodID: 10}, []wire.Value{wire.ShortString("")})
		first <- err
	}()

	// the second call must queue on callMu rather than race the first
	// call's pendingReply slot.
	startSecond := make(chan struct{})
	second := make(chan error, 1)
	go func() {
		close(startSecond)
		_, err := ch.call(wire.ClassMethod{ClassID: wire.ClassChannel, MethodID: 10}, []wire.Value{wire.ShortString("")})
		second <- err
	}()
	<-startSecond
	time.Sleep(20 * time.Millisecond)

	openFrame, err := wire.ReadFrame(server, 1<<20)
	require.NoError(t, err)
	_, _, err = wire.DecodeMethod(openFrame.Payload)
	require.NoError(t, err)
	okPayload, err := wire.EncodeMethod(wire.ClassMethod{ClassID: wire.ClassChannel, MethodID: 11}, []wire.Value{wire.LongString("")})
	require.NoError(t, err)
	require.NoError(t, wire.WriteFrame(server, wire.FrameMethod, 1, okPayload))
	f, err := conn.driver.ReadFrame(1 << 20)
	require.NoError(t, err)
	ch.handleFrame(f)
	require.NoError(t, <-first)

	openFrame2, err := wire.ReadFrame(server, 1<<20)
	require.NoError(t, err)
	_, _, err = wire.DecodeMethod(openFrame2.Payload)
	require.NoError(t, err)
	okPayload2, err := wire.EncodeMethod(wire.ClassMethod{ClassID: wire.ClassChannel, MethodID: 11}, []wire.Value{wire.LongString("")})
	require.NoError(t, err)
	require.NoError(t, wire.WriteFrame(server, wire.FrameMethod, 1, okPayload2))
	f2, err := conn.driver.ReadFrame(1 << 20)
	require.NoError(t, err)
	ch.handleFrame(f2)
	require.NoError(t, <-second)
}
