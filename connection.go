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

// Package amqp is an AMQP 0-9-1 client: Dial negotiates a Connection,
// Connection.Channel multiplexes Channels over it, and Channel carries
// the exchange/queue/consume/publish operations of the protocol.
package amqp

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/packetd/goamqp/common"
	"github.com/packetd/goamqp/internal/ioloop"
	"github.com/packetd/goamqp/internal/rescue"
	"github.com/packetd/goamqp/internal/wire"
	"github.com/packetd/goamqp/logger"
	"github.com/packetd/goamqp/metrics"
)

// ConnectionState is the connection's lifecycle state.
type ConnectionState int32

const (
	StateConnecting ConnectionState = iota
	StateOpen
	StateClosing
	StateClosed
)

// BlockedFunc is invoked with the broker's reason when it throttles this
// connection (connection.blocked). Lifting the throttle
// (connection.unblocked) is reported through the separate func() handlers
// registered with NotifyBlocked, not through BlockedFunc.
type BlockedFunc func(reason string)

// Connection is one negotiated AMQP connection: a single TCP transport,
// a reader goroutine that demultiplexes frames across channels, and the
// channel-0 connection-level FSM (start/tune/open, close, blocked).
type Connection struct {
	cfg    Config
	driver *ioloop.Driver
	log    logger.Sink

	state atomic.Int32

	frameMax   uint32
	channelMax uint16
	heartbeat  time.Duration

	mu            sync.Mutex
	channels      map[uint16]*Channel
	nextChannelID uint16

	blockedMu  sync.Mutex
	onBlocked  []BlockedFunc
	onUnblock  []func()

	closeOnce sync.Once
	closeErr  *Error
	closed    chan struct{}

	// connCall guards connReply, the reply slot Close installs while it
	// waits for connection.close-ok. The handshake reads its channel-0
	// replies directly and does not use it.
	connCall  sync.Mutex
	connReply chan connReply
}

type connReply struct {
	args []wire.Value
	err  error
}

// Dial connects to cfg.Host:cfg.Port, negotiates the AMQP handshake, and
// starts the connection's reader goroutine.
func Dial(cfg Config) (*Connection, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}

	drv, err := ioloop.Connect(cfg.Host, cfg.Port, ioloop.Options{
		ConnectTimeout:  cfg.ConnectTimeout,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		Keepalive:       cfg.Keepalive,
		DispatchSignals: cfg.DispatchSignals,
	})
	if err != nil {
		return nil, wrapError(KindConnectionClosed, err)
	}

	c := &Connection{
		cfg:           cfg,
		driver:        drv,
		log:           cfg.logger(),
		channels:      make(map[uint16]*Channel),
		nextChannelID: 1,
		closed:        make(chan struct{}),
	}
	c.state.Store(int32(StateConnecting))

	if err := c.handshake(); err != nil {
		_ = drv.Close()
		return nil, err
	}

	c.state.Store(int32(StateOpen))
	bi := common.GetBuildInfo()
	version := bi.Version
	if version == "" {
		version = common.Version
	}
	metrics.BuildInfo.WithLabelValues(version, bi.GitHash, bi.Time).Set(1)
	go c.readLoop()
	return c, nil
}

// DialConfig loads a Config from path and Dials it.
func DialConfig(path string) (*Connection, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return Dial(cfg)
}

func (c *Connection) dialect() wire.Dialect { return c.cfg.dialect() }

func (c *Connection) writeFrames(specs []ioloop.FrameSpec) error {
	return c.driver.WriteFrames(specs...)
}

// handshake drives the connection negotiation: preamble, start/start-ok
// (with an optional secure/secure-ok loop), tune/tune-ok, open/open-ok.
func (c *Connection) handshake() error {
	if err := c.driver.WriteAll([]byte("AMQP\x00\x00\x09\x01")); err != nil {
		return wrapError(KindConnectionClosed, err)
	}

	cm, args, err := c.readConnectionMethod()
	if err != nil {
		return err
	}
	if cm.MethodID != 10 {
		return newError(KindProtocolViolation, "expected connection.start, got %v", cm)
	}
	_ = args // server-properties/mechanisms/locales are not inspected; cfg.Mechanism is sent as configured

	props := clientPropertiesTable(c.cfg.Capabilities, c.dialect())
	response := "\x00" + c.cfg.User + "\x00" + c.cfg.Password // PLAIN
	switch c.cfg.Mechanism {
	case "EXTERNAL":
		response = ""
	case "AMQPLAIN":
		// LOGIN/PASSWORD field-table entries without the table's length prefix
		w := wire.NewWriter()
		_ = w.WriteShortStr("LOGIN")
		_ = w.WriteValue(wire.LongString(c.cfg.User))
		_ = w.WriteShortStr("PASSWORD")
		_ = w.WriteValue(wire.LongString(c.cfg.Password))
		response = string(w.Bytes())
		w.Release()
	}
	if err := c.sendConnectionMethod(11, []wire.Value{
		wire.TableValue(props),
		wire.ShortString(c.cfg.Mechanism),
		wire.LongString(response),
		wire.ShortString(c.cfg.Locale),
	}); err != nil {
		return err
	}

	for {
		cm, args, err = c.readConnectionMethod()
		if err != nil {
			return err
		}
		if cm.MethodID == 20 { // connection.secure
			_ = args
			if err := c.sendConnectionMethod(21, []wire.Value{wire.LongString(response)}); err != nil {
				return err
			}
			continue
		}
		break
	}
	if cm.MethodID == 50 { // connection.close instead of tune, e.g. 403 after a rejected start-ok
		replyCode, replyText, failClass, failMethod := parseCloseArgs(args)
		if replyCode == 403 {
			return newError(KindAuthFailure, "broker refused start-ok: %d %s", replyCode, replyText)
		}
		return connectionClosedError(replyCode, replyText, failClass, failMethod)
	}
	if cm.MethodID != 30 {
		return newError(KindProtocolViolation, "expected connection.tune, got %v", cm)
	}

	serverChannelMax := args[0].Uint16()
	serverFrameMax := args[1].Uint32()
	serverHeartbeat := args[2].Uint16()

	c.channelMax = negotiate16(serverChannelMax, c.cfg.ChannelMax)
	c.frameMax = negotiate32(serverFrameMax, c.cfg.FrameMax)
	if c.frameMax != 0 && c.frameMax < 4096 {
		c.frameMax = 4096
	}
	heartbeatSecs := negotiate16(serverHeartbeat, uint16(c.cfg.Heartbeat/time.Second))
	c.heartbeat = time.Duration(heartbeatSecs) * time.Second

	if err := c.sendConnectionMethod(31, []wire.Value{
		wire.Uint16(c.channelMax), wire.Uint32(c.frameMax), wire.Uint16(heartbeatSecs),
	}); err != nil {
		return err
	}

	if err := c.sendConnectionMethod(40, []wire.Value{
		wire.ShortString(c.cfg.VHost), wire.ShortString(""), wire.Bool(false),
	}); err != nil {
		return err
	}
	cm, args, err = c.readConnectionMethod()
	if err != nil {
		return err
	}
	if cm.MethodID != 41 {
		if cm.MethodID == 50 {
			replyCode, replyText, failClass, failMethod := parseCloseArgs(args)
			if replyCode == 403 {
				return newError(KindAuthFailure, "broker refused connection.open: %d %s", replyCode, replyText)
			}
			return connectionClosedError(replyCode, replyText, failClass, failMethod)
		}
		return newError(KindProtocolViolation, "expected connection.open-ok, got %v", cm)
	}
	return nil
}

// clientPropertiesTable converts clientProperties(overrides) into a wire.Table.
func clientPropertiesTable(overrides common.Options, dialect wire.Dialect) wire.Table {
	var t wire.Table
	for k, v := range clientProperties(overrides) {
		t = t.Set(k, wire.FromAny(v, dialect))
	}
	return t
}

func negotiate16(server, client uint16) uint16 {
	if client == 0 {
		return server
	}
	if server == 0 {
		return client
	}
	if client < server {
		return client
	}
	return server
}

func negotiate32(server, client uint32) uint32 {
	if client == 0 {
		return server
	}
	if server == 0 {
		return client
	}
	if client < server {
		return client
	}
	return server
}

// readConnectionMethod blocks for exactly one method frame on channel 0,
// used only during the handshake before the reader goroutine exists.
func (c *Connection) readConnectionMethod() (wire.ClassMethod, []wire.Value, error) {
	f, err := c.driver.ReadFrame(0)
	if err != nil {
		return wire.ClassMethod{}, nil, wrapError(KindConnectionClosed, err)
	}
	if f.Channel != 0 || f.Type != wire.FrameMethod {
		return wire.ClassMethod{}, nil, newError(KindProtocolViolation, "unexpected frame during handshake")
	}
	cm, args, err := wire.DecodeMethod(f.Payload)
	if err != nil {
		return wire.ClassMethod{}, nil, wrapError(KindMalformedFrame, err)
	}
	return cm, args, nil
}

func (c *Connection) sendConnectionMethod(methodID uint16, args []wire.Value) error {
	payload, err := wire.EncodeMethod(wire.ClassMethod{ClassID: wire.ClassConnection, MethodID: methodID}, args)
	if err != nil {
		return wrapError(KindEncodingError, err)
	}
	if err := c.driver.WriteFrame(wire.FrameMethod, 0, payload); err != nil {
		return wrapError(KindConnectionClosed, err)
	}
	return nil
}

// readLoop is the connection's single reader goroutine: it owns every
// call to driver.ReadFrame/Wait and fans decoded frames out to channel-0
// handling or the addressed Channel.
func (c *Connection) readLoop() {
	defer rescue.HandleCrash()
	defer c.driver.Close()

	pollInterval := c.heartbeat / 2
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}

	for {
		if c.heartbeat > 0 {
			if err := c.driver.CheckHeartbeat(c.heartbeat); err != nil {
				c.fail(wrapError(KindHeartbeatMissed, err))
				return
			}
		}

		res, err := c.driver.Wait(pollInterval)
		if err != nil {
			if res == ioloop.IOError {
				c.fail(wrapError(KindIOWait, err))
			} else {
				c.fail(wrapError(KindConnectionClosed, err))
			}
			return
		}
		switch res {
		case ioloop.Timeout, ioloop.Interrupted:
			continue
		}

		f, err := c.driver.ReadFrame(c.frameMax)
		if err != nil {
			c.fail(wrapError(KindConnectionClosed, err))
			return
		}
		c.dispatch(f)

		if c.State() == StateClosed {
			return
		}
	}
}

func (c *Connection) State() ConnectionState { return ConnectionState(c.state.Load()) }

func (c *Connection) dispatch(f wire.Frame) {
	if f.Type == wire.FrameHeartbeat {
		return
	}
	if f.Channel == 0 {
		c.handleConnectionFrame(f)
		return
	}

	ch, ok := c.getChannel(f.Channel)
	if !ok {
		c.log.Warnf("frame on unknown channel %d, closing connection", f.Channel)
		c.closeWithReplyCode(504, "channel not open", 0, 0)
		return
	}
	ch.handleFrame(f)
}

func (c *Connection) handleConnectionFrame(f wire.Frame) {
	if f.Type != wire.FrameMethod {
		c.closeWithReplyCode(505, "unexpected frame on channel 0", 0, 0)
		return
	}
	cm, args, err := wire.DecodeMethod(f.Payload)
	if err != nil {
		c.closeWithReplyCode(501, "frame error", 0, 0)
		return
	}

	switch cm.MethodID {
	case 50: // connection.close
		replyCode, replyText, failClass, failMethod := parseCloseArgs(args)
		_ = c.sendConnectionMethod(51, nil) // close-ok
		c.fail(connectionClosedError(replyCode, replyText, failClass, failMethod))
	case 51: // connection.close-ok, reply to our own close
		c.deliverConnReply(args, nil)
	case 60: // connection.blocked
		reason := ""
		if len(args) > 0 {
			reason = args[0].String()
		}
		c.blockedMu.Lock()
		handlers := append([]BlockedFunc{}, c.onBlocked...)
		c.blockedMu.Unlock()
		for _, h := range handlers {
			h(reason)
		}
	case 61: // connection.unblocked
		c.blockedMu.Lock()
		handlers := append([]func(){}, c.onUnblock...)
		c.blockedMu.Unlock()
		for _, h := range handlers {
			h()
		}
	default:
		// Any other method on channel 0 is out of context after the handshake.
		c.closeWithReplyCode(505, "unexpected method on channel 0", cm.ClassID, cm.MethodID)
	}
}

// deliverConnReply hands a channel-0 reply to whichever call is waiting
// on it (currently only Close's connection.close-ok). connCall guards
// c.connReply itself; the channel send happens outside the lock since it
// is buffered and never blocks.
func (c *Connection) deliverConnReply(args []wire.Value, err error) {
	c.connCall.Lock()
	ch := c.connReply
	c.connCall.Unlock()
	if ch != nil {
		ch <- connReply{args: args, err: err}
	}
}

func (c *Connection) getChannel(id uint16) (*Channel, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.channels[id]
	return ch, ok
}

func (c *Connection) forgetChannel(id uint16) {
	c.mu.Lock()
	delete(c.channels, id)
	c.mu.Unlock()
}

// Channel opens a new channel on this connection.
func (c *Connection) Channel() (*Channel, error) {
	if c.State() != StateOpen {
		return nil, c.closeError()
	}

	c.mu.Lock()
	id := c.nextChannelID
	c.nextChannelID++
	ch := newChannel(c, id)
	c.channels[id] = ch
	c.mu.Unlock()

	if err := ch.open(); err != nil {
		c.forgetChannel(id)
		return nil, err
	}
	return ch, nil
}

// NotifyBlocked registers onBlocked to be called on connection.blocked and
// onUnblocked to be called on connection.unblocked.
func (c *Connection) NotifyBlocked(onBlocked BlockedFunc, onUnblocked func()) {
	c.blockedMu.Lock()
	c.onBlocked = append(c.onBlocked, onBlocked)
	c.onUnblock = append(c.onUnblock, onUnblocked)
	c.blockedMu.Unlock()
}

func (c *Connection) closeError() error {
	if c.closeErr != nil {
		return c.closeErr
	}
	return ErrConnectionClosed
}

// fail tears the connection down on a transport or protocol failure,
// aggregating every still-open channel's resulting error with
// go-multierror since tearing down N channels at once is N things going
// wrong, not one.
func (c *Connection) fail(err *Error) {
	c.closeOnce.Do(func() {
		c.log.Errorf("connection failed: %s", err)
		c.closeErr = err
		c.state.Store(int32(StateClosed))

		c.mu.Lock()
		channels := make([]*Channel, 0, len(c.channels))
		for _, ch := range c.channels {
			channels = append(channels, ch)
		}
		c.mu.Unlock()

		var result error
		for _, ch := range channels {
			ch.transitionClosed(err)
			result = multierror.Append(result, errors.Wrapf(err, "channel %d", ch.id))
		}
		if result != nil {
			c.log.Debugf("connection close fan-out: %s", result)
		}

		close(c.closed)
		_ = c.driver.Close()
	})
}

// closeWithReplyCode initiates a connection.close for a protocol
// violation this side detected, such as a frame addressed to an unknown
// channel or an unexpected frame type on channel 0.
func (c *Connection) closeWithReplyCode(code uint16, text string, failClass, failMethod uint16) {
	_ = c.sendConnectionMethod(50, []wire.Value{
		wire.Uint16(code), wire.ShortString(text), wire.Uint16(failClass), wire.Uint16(failMethod),
	})
	c.fail(connectionClosedError(code, text, failClass, failMethod))
}

// Close performs a normal client-initiated close handshake: send
// connection.close, wait for connection.close-ok, then close the
// transport.
func (c *Connection) Close() error {
	if c.State() == StateClosed {
		return nil
	}

	c.connCall.Lock()
	c.connReply = make(chan connReply, 1)
	c.connCall.Unlock()

	err := c.sendConnectionMethod(50, []wire.Value{
		wire.Uint16(200), wire.ShortString("normal close"), wire.Uint16(0), wire.Uint16(0),
	})
	if err != nil {
		c.fail(wrapError(KindConnectionClosed, err))
		return err
	}

	select {
	case <-c.connReply:
	case <-c.closed:
	case <-time.After(c.cfg.WriteTimeout + c.cfg.ReadTimeout):
	}

	c.fail(connectionClosedError(200, "normal close", 0, 0))
	return nil
}

// NotifyClose returns a channel that is closed once this connection
// closes, for callers that want to react to an asynchronous
// broker-initiated close. No value is sent on it; the terminal error is
// not delivered through this channel.
func (c *Connection) NotifyClose() <-chan struct{} {
	return c.closed
}
