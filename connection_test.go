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
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packetd/goamqp/internal/wire"
	"github.com/packetd/goamqp/logger"
)

// brokerHandshake plays the broker side of the connection negotiation on
// conn: it expects the AMQP preamble, offers PLAIN/AMQPLAIN over en_US,
// asserts the client's start-ok against those terms, then tunes to
// (channelMax, frameMax, heartbeatSecs) and completes open/open-ok.
func brokerHandshake(t *testing.T, conn net.Conn, channelMax uint16, frameMax uint32, heartbeatSecs uint16) {
	t.Helper()

	preamble := make([]byte, 8)
	_, err := io.ReadFull(conn, preamble)
	require.NoError(t, err)
	assert.Equal(t, []byte("AMQP\x00\x00\x09\x01"), preamble)

	startPayload, err := wire.EncodeMethod(wire.ClassMethod{ClassID: wire.ClassConnection, MethodID: 10}, []wire.Value{
		wire.Uint8(0), wire.Uint8(9),
		wire.TableValue(nil),
		wire.LongString("PLAIN AMQPLAIN"),
		wire.LongString("en_US"),
	})
	require.NoError(t, err)
	require.NoError(t, wire.WriteFrame(conn, wire.FrameMethod, 0, startPayload))

	f, err := wire.ReadFrame(conn, 1<<20)
	require.NoError(t, err)
	cm, args, err := wire.DecodeMethod(f.Payload)
	require.NoError(t, err)
	require.Equal(t, wire.ClassMethod{ClassID: wire.ClassConnection, MethodID: 11}, cm)
	assert.Equal(t, "PLAIN", args[1].String())
	assert.Equal(t, "\x00guest\x00guest", args[2].String())
	assert.Equal(t, "en_US", args[3].String())

	tunePayload, err := wire.EncodeMethod(wire.ClassMethod{ClassID: wire.ClassConnection, MethodID: 30}, []wire.Value{
		wire.Uint16(channelMax), wire.Uint32(frameMax), wire.Uint16(heartbeatSecs),
	})
	require.NoError(t, err)
	require.NoError(t, wire.WriteFrame(conn, wire.FrameMethod, 0, tunePayload))

	f, err = wire.ReadFrame(conn, 1<<20)
	require.NoError(t, err)
	cm, args, err = wire.DecodeMethod(f.Payload)
	require.NoError(t, err)
	require.Equal(t, wire.ClassMethod{ClassID: wire.ClassConnection, MethodID: 31}, cm)
	assert.Equal(t, channelMax, args[0].Uint16())
	assert.Equal(t, frameMax, args[1].Uint32())
	assert.Equal(t, heartbeatSecs, args[2].Uint16())

	f, err = wire.ReadFrame(conn, 1<<20)
	require.NoError(t, err)
	cm, _, err = wire.DecodeMethod(f.Payload)
	require.NoError(t, err)
	require.Equal(t, wire.ClassMethod{ClassID: wire.ClassConnection, MethodID: 40}, cm)

	openOkPayload, err := wire.EncodeMethod(wire.ClassMethod{ClassID: wire.ClassConnection, MethodID: 41}, []wire.Value{wire.ShortString("")})
	require.NoError(t, err)
	require.NoError(t, wire.WriteFrame(conn, wire.FrameMethod, 0, openOkPayload))
}

func dialLoopback(t *testing.T, channelMax uint16, frameMax uint32, heartbeatSecs uint16) (*Connection, net.Conn) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	serverCh := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		serverCh <- c
	}()

	addr := ln.Addr().(*net.TCPAddr)
	cfg := DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = addr.Port
	cfg.Logger = logger.Nop{}
	cfg.User = "guest"
	cfg.Password = "guest"
	cfg.ChannelMax = 0
	cfg.FrameMax = 0
	cfg.Heartbeat = 0
	cfg.DispatchSignals = false

	dialResult := make(chan struct {
		conn *Connection
		err  error
	}, 1)
	go func() {
		c, err := Dial(cfg)
		dialResult <- struct {
			conn *Connection
			err  error
		}{c, err}
	}()

	server := <-serverCh
	brokerHandshake(t, server, channelMax, frameMax, heartbeatSecs)

	r := <-dialResult
	require.NoError(t, r.err)

	t.Cleanup(func() {
		_ = r.conn.driver.Close()
		_ = server.Close()
	})
	return r.conn, server
}

func TestDialHandshakeAndTuneNegotiation(t *testing.T) {
	conn, _ := dialLoopback(t, 2047, 131072, 60)

	assert.Equal(t, StateOpen, conn.State())
	assert.Equal(t, uint16(2047), conn.channelMax)
	assert.Equal(t, uint32(131072), conn.frameMax)
	assert.Equal(t, 60*time.Second, conn.heartbeat)
}

func TestPublishSplitsBodyAcrossFrames(t *testing.T) {
	conn, server := dialLoopback(t, 0, 4096, 0)

	openDone := make(chan struct {
		ch  *Channel
		err error
	}, 1)
	go func() {
		ch, err := conn.Channel()
		openDone <- struct {
			ch  *Channel
			err error
		}{ch, err}
	}()

	f, err := wire.ReadFrame(server, 1<<20)
	require.NoError(t, err)
	cm, _, err := wire.DecodeMethod(f.Payload)
	require.NoError(t, err)
	require.Equal(t, wire.ClassMethod{ClassID: wire.ClassChannel, MethodID: 10}, cm)

	openOkPayload, err := wire.EncodeMethod(wire.ClassMethod{ClassID: wire.ClassChannel, MethodID: 11}, []wire.Value{wire.LongString("")})
	require.NoError(t, err)
	require.NoError(t, wire.WriteFrame(server, wire.FrameMethod, 1, openOkPayload))

	r := <-openDone
	require.NoError(t, r.err)
	ch := r.ch

	body := make([]byte, 10000)
	for i := range body {
		body[i] = byte(i)
	}

	publishDone := make(chan error, 1)
	go func() {
		_, err := ch.Publish("", "q", false, false, Publishing{Body: body})
		publishDone <- err
	}()

	methodFrame, err := wire.ReadFrame(server, 1<<20)
	require.NoError(t, err)
	assert.Equal(t, byte(wire.FrameMethod), methodFrame.Type)

	headerFrame, err := wire.ReadFrame(server, 1<<20)
	require.NoError(t, err)
	assert.Equal(t, byte(wire.FrameHeader), headerFrame.Type)

	var bodyLens []int
	for total := 0; total < len(body); {
		bf, err := wire.ReadFrame(server, 1<<20)
		require.NoError(t, err)
		require.Equal(t, byte(wire.FrameBody), bf.Type)
		bodyLens = append(bodyLens, len(bf.Payload))
		total += len(bf.Payload)
	}

	assert.Equal(t, []int{4088, 4088, 1824}, bodyLens)
	require.NoError(t, <-publishDone)
}

func TestHeartbeatEmittedAfterWriteSilence(t *testing.T) {
	// A short heartbeat interval keeps this test fast; the emission rule
	// under test (silence > heartbeat/2) is scale-invariant.
	const heartbeatSecs = 1
	conn, server := dialLoopback(t, 0, 0, heartbeatSecs)
	_ = conn

	require.NoError(t, server.SetReadDeadline(time.Now().Add(3*time.Second)))
	buf := make([]byte, wire.FrameOverhead)
	_, err := io.ReadFull(server, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{wire.FrameHeartbeat, 0, 0, 0, 0, 0, 0, 0xCE}, buf)
}

func TestConnectionAuthFailureDuringHandshake(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	serverCh := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		serverCh <- c
	}()

	addr := ln.Addr().(*net.TCPAddr)
	cfg := DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = addr.Port
	cfg.Logger = logger.Nop{}
	cfg.DispatchSignals = false

	dialErr := make(chan error, 1)
	go func() {
		_, err := Dial(cfg)
		dialErr <- err
	}()

	server := <-serverCh
	preamble := make([]byte, 8)
	_, err = io.ReadFull(server, preamble)
	require.NoError(t, err)

	startPayload, err := wire.EncodeMethod(wire.ClassMethod{ClassID: wire.ClassConnection, MethodID: 10}, []wire.Value{
		wire.Uint8(0), wire.Uint8(9), wire.TableValue(nil), wire.LongString("PLAIN"), wire.LongString("en_US"),
	})
	require.NoError(t, err)
	require.NoError(t, wire.WriteFrame(server, wire.FrameMethod, 0, startPayload))

	f, err := wire.ReadFrame(server, 1<<20)
	require.NoError(t, err)
	_, _, err = wire.DecodeMethod(f.Payload)
	require.NoError(t, err)

	closePayload, err := wire.EncodeMethod(wire.ClassMethod{ClassID: wire.ClassConnection, MethodID: 50}, []wire.Value{
		wire.Uint16(403), wire.ShortString("ACCESS_REFUSED - bad credentials"), wire.Uint16(0), wire.Uint16(0),
	})
	require.NoError(t, err)
	require.NoError(t, wire.WriteFrame(server, wire.FrameMethod, 0, closePayload))

	err = <-dialErr
	var amqpErr *Error
	require.ErrorAs(t, err, &amqpErr)
	assert.Equal(t, KindAuthFailure, amqpErr.Kind)
}
