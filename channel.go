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
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/packetd/goamqp/internal/ioloop"
	"github.com/packetd/goamqp/internal/queue"
	"github.com/packetd/goamqp/internal/wire"
	"github.com/packetd/goamqp/logger"
	"github.com/packetd/goamqp/metrics"
)

// ChannelState is the channel's lifecycle state. ReceivingContent and
// Flow(paused) are tracked as orthogonal flags (content, flowPaused)
// rather than top-level states, since a channel can be mid-content-
// reception while still logically Open.
type ChannelState int32

const (
	ChannelOpening ChannelState = iota
	ChannelOpen
	ChannelClosing
	ChannelClosed
)

// Confirmation is delivered to a channel's confirm listener when the
// broker acks or nacks a publisher-confirmed delivery.
type Confirmation struct {
	DeliveryTag uint64
	Ack         bool
}

// syncCall is one outstanding synchronous method waiting for its reply.
// Only one call is ever "in flight" per channel because callMu is held
// for the call's entire round trip, so concurrent callers queue on the
// mutex itself rather than on an explicit waiter list.
type syncCall struct {
	expected wire.ClassMethod
	// altExpected additionally satisfies the call when set (non-zero):
	// basic.get's synchronous reply is either get-ok (content-bearing) or
	// get-empty, and both complete the same waiter.
	altExpected wire.ClassMethod
	done        chan struct{}
	args        []wire.Value
	err         error
}

func (sc *syncCall) matches(cm wire.ClassMethod) bool {
	return cm == sc.expected || (sc.altExpected != (wire.ClassMethod{}) && cm == sc.altExpected)
}

// Channel is one AMQP channel multiplexed over a Connection.
type Channel struct {
	id   uint16
	conn *Connection
	log  logger.Sink

	state atomic.Int32

	callMu sync.Mutex // held for an entire synchronous-method round trip

	mu           sync.Mutex
	pendingReply *syncCall
	content      *pendingContent
	flowPaused   bool
	flowGate     chan struct{} // closed while flow is active; replaced on each pause

	consumers *queue.Registry
	returns   queue.Queue
	getSlot   queue.Queue

	confirmsOn      bool
	publishSeq      uint64
	pendingConfirms []uint64
	confirmCh       chan Confirmation

	closeErr *Error
	closed   chan struct{}
	closeOne sync.Once
}

func newChannel(conn *Connection, id uint16) *Channel {
	ch := &Channel{
		id:        id,
		conn:      conn,
		log:       conn.log,
		consumers: queue.NewRegistry(),
		closed:    make(chan struct{}),
		flowGate:  make(chan struct{}),
	}
	close(ch.flowGate) // flow starts active
	ch.state.Store(int32(ChannelOpening))
	ch.returns = ch.consumers.Open("__returns__", 64)
	ch.getSlot = ch.consumers.Open("__get__", 1)
	return ch
}

func (ch *Channel) open() error {
	_, err := ch.call(wire.ClassMethod{ClassID: wire.ClassChannel, MethodID: 10}, []wire.Value{wire.ShortString("")})
	if err != nil {
		return err
	}
	ch.state.Store(int32(ChannelOpen))
	metrics.ChannelsOpen.Inc()
	return nil
}

// ID returns the channel's numeric id.
func (ch *Channel) ID() uint16 { return ch.id }

func (ch *Channel) State() ChannelState { return ChannelState(ch.state.Load()) }

// call sends a synchronous request and blocks until its matching reply, a
// channel.close, or the connection failing. Only one call is ever
// in flight: callMu is held across the whole round trip, so a second
// caller simply waits on the mutex instead of queuing on an explicit
// waiter list.
func (ch *Channel) call(cm wire.ClassMethod, args []wire.Value) ([]wire.Value, error) {
	expected, ok := wire.ExpectedReply(cm)
	if !ok {
		return nil, newError(KindProtocolViolation, "method %v has no synchronous reply", cm)
	}

	ch.callMu.Lock()
	defer ch.callMu.Unlock()

	if err := ch.checkOpenForCall(); err != nil {
		return nil, err
	}

	sc := &syncCall{expected: expected, done: make(chan struct{})}
	ch.mu.Lock()
	ch.pendingReply = sc
	ch.mu.Unlock()

	if err := ch.sendMethod(cm, args); err != nil {
		ch.mu.Lock()
		ch.pendingReply = nil
		ch.mu.Unlock()
		return nil, err
	}

	select {
	case <-sc.done:
		return sc.args, sc.err
	case <-ch.closed:
		return nil, ch.closeErrorLocked()
	}
}

func (ch *Channel) checkOpenForCall() error {
	if ch.State() == ChannelClosed {
		return ch.closeErrorLocked()
	}
	return nil
}

func (ch *Channel) closeErrorLocked() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closeErr != nil {
		return ch.closeErr
	}
	return ErrChannelClosed
}

func (ch *Channel) sendMethod(cm wire.ClassMethod, args []wire.Value) error {
	payload, err := wire.EncodeMethod(cm, args)
	if err != nil {
		return wrapError(KindEncodingError, err)
	}
	return ch.conn.driver.WriteFrame(wire.FrameMethod, ch.id, payload)
}

// handleFrame is invoked by the connection's single reader goroutine for
// every frame addressed to this channel. It never waits for a synchronous
// reply; it can block only while writing an automatic reply (close-ok,
// flow-ok) or while handing a Confirmation to the NotifyConfirm channel.
func (ch *Channel) handleFrame(f wire.Frame) {
	switch f.Type {
	case wire.FrameMethod:
		ch.handleMethodFrame(f.Payload)
	case wire.FrameHeader:
		ch.handleHeaderFrame(f.Payload)
	case wire.FrameBody:
		ch.handleBodyFrame(f.Payload)
	default:
		ch.fail(newError(KindProtocolViolation, "unexpected frame type %d on channel", f.Type))
	}
}

func (ch *Channel) handleMethodFrame(payload []byte) {
	cm, args, err := wire.DecodeMethod(payload)
	if err != nil {
		ch.fail(wrapError(KindUnknownMethod, err))
		return
	}

	ch.mu.Lock()
	inContent := ch.content != nil
	ch.mu.Unlock()
	if inContent {
		ch.fail(newError(KindProtocolViolation, "method frame %v arrived mid-content", cm))
		return
	}

	info := wire.Methods[cm]
	if info.CarriesContent {
		ch.beginContent(cm, args)
		return
	}

	switch {
	case cm.ClassID == wire.ClassChannel && cm.MethodID == 40: // channel.close
		ch.handleClose(args)
	case cm.ClassID == wire.ClassChannel && cm.MethodID == 20: // channel.flow
		ch.handleFlow(args)
	case cm.ClassID == wire.ClassBasic && cm.MethodID == 30: // basic.cancel (server-initiated)
		ch.handleCancel(args)
	case cm.ClassID == wire.ClassBasic && (cm.MethodID == 80 || cm.MethodID == 120): // ack/nack
		ch.handleConfirm(cm, args)
	default:
		ch.deliverReply(cm, args, nil)
	}
}

func (ch *Channel) deliverReply(cm wire.ClassMethod, args []wire.Value, err error) {
	ch.mu.Lock()
	sc := ch.pendingReply
	ch.mu.Unlock()

	if sc == nil || (err == nil && !sc.matches(cm)) {
		ch.fail(newError(KindProtocolViolation, "unexpected method %v with no pending call", cm))
		return
	}
	sc.args, sc.err = args, err
	close(sc.done)
}

func (ch *Channel) handleClose(args []wire.Value) {
	replyCode, replyText, failClass, failMethod := parseCloseArgs(args)
	cerr := channelClosedError(replyCode, replyText, failClass, failMethod)

	// Ack the close regardless of whether we were waiting on something
	// else: the broker ended the channel, nothing more will follow.
	_ = ch.sendMethod(wire.ClassMethod{ClassID: wire.ClassChannel, MethodID: 41}, nil)
	ch.transitionClosed(cerr)
}

// handleFlow applies the broker's channel.flow request and acks it with
// channel.flow-ok. Publish blocks on flowGate while flow is paused, so
// toggling flowPaused must go hand in hand with closing or replacing the
// gate, never one without the other.
func (ch *Channel) handleFlow(args []wire.Value) {
	active := len(args) > 0 && args[0].Bool()
	ch.mu.Lock()
	wasPaused := ch.flowPaused
	ch.flowPaused = !active
	if active && wasPaused {
		close(ch.flowGate)
	} else if !active && !wasPaused {
		ch.flowGate = make(chan struct{})
	}
	ch.mu.Unlock()
	_ = ch.sendMethod(wire.ClassMethod{ClassID: wire.ClassChannel, MethodID: 21}, []wire.Value{wire.Bool(active)})
}

// awaitFlow blocks while the broker has paused delivery on this channel
// (channel.flow with active=false), returning only once flow resumes or
// the channel closes.
func (ch *Channel) awaitFlow() error {
	for {
		ch.mu.Lock()
		paused := ch.flowPaused
		gate := ch.flowGate
		ch.mu.Unlock()
		if !paused {
			return nil
		}
		select {
		case <-gate:
		case <-ch.closed:
			return ch.closeErrorLocked()
		}
	}
}

func (ch *Channel) handleCancel(args []wire.Value) {
	if len(args) == 0 {
		return
	}
	tag := args[0].String()
	ch.consumers.Close(tag)
}

func (ch *Channel) handleConfirm(cm wire.ClassMethod, args []wire.Value) {
	if len(args) < 2 {
		return
	}
	tag := args[0].Uint64()
	multiple := args[1].Bool()
	ack := cm.MethodID == 80

	ch.mu.Lock()
	acked := ch.resolveConfirmsLocked(tag, multiple)
	ch.mu.Unlock()

	if ack {
		metrics.ConfirmsAcked.Add(float64(len(acked)))
	} else {
		metrics.ConfirmsNacked.Add(float64(len(acked)))
	}

	if ch.confirmCh != nil {
		for _, t := range acked {
			ch.confirmCh <- Confirmation{DeliveryTag: t, Ack: ack}
		}
	}
}

// resolveConfirmsLocked removes and returns every pending publish-seq
// covered by an ack/nack. multiple means every still-unconfirmed tag <=
// this one; otherwise only the exact tag is resolved.
func (ch *Channel) resolveConfirmsLocked(tag uint64, multiple bool) []uint64 {
	var acked []uint64
	if !multiple {
		for i, t := range ch.pendingConfirms {
			if t == tag {
				acked = append(acked, t)
				ch.pendingConfirms = append(ch.pendingConfirms[:i], ch.pendingConfirms[i+1:]...)
				break
			}
		}
		return acked
	}

	i := sort.Search(len(ch.pendingConfirms), func(i int) bool { return ch.pendingConfirms[i] > tag })
	acked = append(acked, ch.pendingConfirms[:i]...)
	ch.pendingConfirms = ch.pendingConfirms[i:]
	return acked
}

func parseCloseArgs(args []wire.Value) (replyCode uint16, replyText string, failClass, failMethod uint16) {
	if len(args) > 0 {
		replyCode = args[0].Uint16()
	}
	if len(args) > 1 {
		replyText = args[1].String()
	}
	if len(args) > 2 {
		failClass = args[2].Uint16()
	}
	if len(args) > 3 {
		failMethod = args[3].Uint16()
	}
	return
}

// beginContent enters ReceivingContent for a just-arrived basic.deliver,
// basic.return, or basic.get-ok: the method frame names what's coming,
// and the header/body frames that follow accumulate into it.
func (ch *Channel) beginContent(cm wire.ClassMethod, args []wire.Value) {
	ch.mu.Lock()
	ch.content = &pendingContent{method: cm, args: args}
	sc := ch.pendingReply
	matched := sc != nil && sc.matches(cm)
	if matched {
		// basic.get-ok is itself the synchronous reply to basic.get, even
		// though it is immediately followed by a header/body like an
		// async basic.deliver. Fulfill the waiter now so Get() can move
		// on to draining the assembled Delivery off getSlot.
		ch.pendingReply = nil
	}
	ch.mu.Unlock()
	if matched {
		sc.args = args
		close(sc.done)
	}
}

func (ch *Channel) handleHeaderFrame(payload []byte) {
	ch.mu.Lock()
	pc := ch.content
	ch.mu.Unlock()
	if pc == nil || pc.header != nil {
		ch.fail(newError(KindProtocolViolation, "unexpected header frame"))
		return
	}

	header, err := wire.DecodeContentHeader(payload)
	if err != nil {
		ch.fail(wrapError(KindMalformedFrame, err))
		return
	}

	ch.mu.Lock()
	pc.header = &header
	pc.remaining = header.BodySize
	done := pc.complete()
	ch.mu.Unlock()

	if done {
		ch.releaseContent(pc)
	}
}

func (ch *Channel) handleBodyFrame(payload []byte) {
	ch.mu.Lock()
	pc := ch.content
	if pc == nil || pc.header == nil {
		ch.mu.Unlock()
		ch.fail(newError(KindProtocolViolation, "unexpected body frame"))
		return
	}
	addErr := pc.addBody(payload)
	done := addErr == nil && pc.complete()
	ch.mu.Unlock()

	if addErr != nil {
		ch.fail(addErr.(*Error))
		return
	}
	if done {
		ch.releaseContent(pc)
	}
}

func (ch *Channel) releaseContent(pc *pendingContent) {
	ch.mu.Lock()
	ch.content = nil
	ch.mu.Unlock()

	d := &Delivery{
		Properties: pc.header.Properties,
		Body:       pc.body,
		channel:    ch,
	}

	switch pc.method.MethodID {
	case 60: // basic.deliver
		d.ConsumerTag = pc.args[0].String()
		d.DeliveryTag = pc.args[1].Uint64()
		d.Redelivered = pc.args[2].Bool()
		d.Exchange = pc.args[3].String()
		d.RoutingKey = pc.args[4].String()
		ch.consumers.Dispatch(d.ConsumerTag, d)
	case 50: // basic.return
		d.ReplyCode = pc.args[0].Uint16()
		d.ReplyText = pc.args[1].String()
		d.Exchange = pc.args[2].String()
		d.RoutingKey = pc.args[3].String()
		ch.returns.Push(d)
	case 71: // basic.get-ok
		d.DeliveryTag = pc.args[0].Uint64()
		d.Redelivered = pc.args[1].Bool()
		d.Exchange = pc.args[2].String()
		d.RoutingKey = pc.args[3].String()
		ch.getSlot.Push(d)
	}
}

func (ch *Channel) fail(err *Error) {
	ch.transitionClosed(err)
}

// transitionClosed fails every pending waiter and queue exactly once.
// closeOne guarantees this runs a single time even if the broker's
// channel.close and a connection-wide failure race to tear the channel
// down concurrently.
func (ch *Channel) transitionClosed(err *Error) {
	ch.closeOne.Do(func() {
		ch.log.Debugf("channel %d closed: %s", ch.id, err)

		ch.mu.Lock()
		ch.closeErr = err
		sc := ch.pendingReply
		ch.pendingReply = nil
		ch.mu.Unlock()

		wasOpen := ch.State() == ChannelOpen
		ch.state.Store(int32(ChannelClosed))
		if wasOpen {
			metrics.ChannelsOpen.Dec()
		}
		if sc != nil {
			sc.err = err
			close(sc.done)
		}
		close(ch.closed)
		ch.consumers.CloseAll()
		ch.conn.forgetChannel(ch.id)
	})
}

// Qos sets the prefetch count/size for this channel.
func (ch *Channel) Qos(prefetchCount uint16, prefetchSize uint32, global bool) error {
	_, err := ch.call(wire.ClassMethod{ClassID: wire.ClassBasic, MethodID: 10},
		[]wire.Value{wire.Uint32(prefetchSize), wire.Uint16(prefetchCount), wire.Bool(global)})
	return err
}

// ExchangeDeclare declares an exchange.
func (ch *Channel) ExchangeDeclare(name, kind string, passive, durable, autoDelete, internal, noWait bool, args wire.Table) error {
	_, err := ch.call(wire.ClassMethod{ClassID: wire.ClassExchange, MethodID: 10}, []wire.Value{
		wire.Uint16(0), wire.ShortString(name), wire.ShortString(kind), wire.Bool(passive),
		wire.Bool(durable), wire.Bool(autoDelete), wire.Bool(internal), wire.Bool(noWait), wire.TableValue(args),
	})
	return err
}

// QueueDeclare declares a queue and returns its name, message count, and
// consumer count.
func (ch *Channel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args wire.Table) (string, uint32, uint32, error) {
	reply, err := ch.call(wire.ClassMethod{ClassID: wire.ClassQueue, MethodID: 10}, []wire.Value{
		wire.Uint16(0), wire.ShortString(name), wire.Bool(false), wire.Bool(durable),
		wire.Bool(exclusive), wire.Bool(autoDelete), wire.Bool(noWait), wire.TableValue(args),
	})
	if err != nil {
		return "", 0, 0, err
	}
	return reply[0].String(), reply[1].Uint32(), reply[2].Uint32(), nil
}

// QueueBind binds a queue to an exchange.
func (ch *Channel) QueueBind(queueName, routingKey, exchange string, noWait bool, args wire.Table) error {
	_, err := ch.call(wire.ClassMethod{ClassID: wire.ClassQueue, MethodID: 20}, []wire.Value{
		wire.Uint16(0), wire.ShortString(queueName), wire.ShortString(exchange),
		wire.ShortString(routingKey), wire.Bool(noWait), wire.TableValue(args),
	})
	return err
}

// Confirm enables publisher confirms for this channel (confirm.select).
func (ch *Channel) Confirm(noWait bool) error {
	_, err := ch.call(wire.ClassMethod{ClassID: wire.ClassConfirm, MethodID: 10}, []wire.Value{wire.Bool(noWait)})
	if err != nil {
		return err
	}
	ch.mu.Lock()
	ch.confirmsOn = true
	ch.mu.Unlock()
	return nil
}

// NotifyConfirm registers ch to receive every future Confirmation.
func (ch *Channel) NotifyConfirm(c chan Confirmation) {
	ch.mu.Lock()
	ch.confirmCh = c
	ch.mu.Unlock()
}

// Unconfirmed returns the count of published-but-not-yet-acked deliveries.
func (ch *Channel) Unconfirmed() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return len(ch.pendingConfirms)
}

// Consume registers a new consumer and returns its delivery queue.
func (ch *Channel) Consume(queueName, consumerTag string, autoAck, exclusive, noLocal, noWait bool, args wire.Table) (string, queue.Queue, error) {
	if consumerTag == "" {
		consumerTag = "ctag-" + uuid.New().String()
	}
	reply, err := ch.call(wire.ClassMethod{ClassID: wire.ClassBasic, MethodID: 20}, []wire.Value{
		wire.Uint16(0), wire.ShortString(queueName), wire.ShortString(consumerTag),
		wire.Bool(noLocal), wire.Bool(autoAck), wire.Bool(exclusive), wire.Bool(noWait), wire.TableValue(args),
	})
	if err != nil {
		return "", nil, err
	}
	tag := reply[0].String()
	q := ch.consumers.Open(tag, 256)
	return tag, q, nil
}

// Cancel stops a consumer.
func (ch *Channel) Cancel(consumerTag string, noWait bool) error {
	_, err := ch.call(wire.ClassMethod{ClassID: wire.ClassBasic, MethodID: 30}, []wire.Value{wire.ShortString(consumerTag), wire.Bool(noWait)})
	ch.consumers.Close(consumerTag)
	return err
}

// Get performs a one-shot basic.get. ok is false when the queue is empty.
func (ch *Channel) Get(queueName string, noAck bool) (*Delivery, bool, error) {
	payload, err := wire.EncodeMethod(wire.ClassMethod{ClassID: wire.ClassBasic, MethodID: 70},
		[]wire.Value{wire.Uint16(0), wire.ShortString(queueName), wire.Bool(noAck)})
	if err != nil {
		return nil, false, wrapError(KindEncodingError, err)
	}

	ch.callMu.Lock()
	defer ch.callMu.Unlock()

	sc := &syncCall{
		expected:    wire.ClassMethod{ClassID: wire.ClassBasic, MethodID: 72}, // get-empty
		altExpected: wire.ClassMethod{ClassID: wire.ClassBasic, MethodID: 71}, // get-ok
		done:        make(chan struct{}),
	}
	ch.mu.Lock()
	ch.pendingReply = sc
	ch.mu.Unlock()

	if err := ch.conn.driver.WriteFrame(wire.FrameMethod, ch.id, payload); err != nil {
		ch.mu.Lock()
		ch.pendingReply = nil
		ch.mu.Unlock()
		return nil, false, err
	}

	select {
	case <-sc.done:
	case <-ch.closed:
		return nil, false, ch.closeErrorLocked()
	}
	if sc.err != nil {
		return nil, false, sc.err
	}
	if len(sc.args) < 5 { // basic.get-empty carries only its reserved field
		return nil, false, nil
	}

	// get-ok completes the waiter before its header and body frames are
	// read: wait until releaseContent pushes the assembled Delivery, or
	// until the channel closes (CloseAll closes getSlot).
	data, ok := ch.getSlot.PopTimeout(time.Duration(math.MaxInt64))
	if !ok {
		return nil, false, ch.closeErrorLocked()
	}
	return data.(*Delivery), true, nil
}

// Publish emits a basic.publish method frame, its content header, and its
// body frames as one contiguous write. It blocks while the broker has the
// channel's flow paused (channel.flow with active=false).
func (ch *Channel) Publish(exchange, routingKey string, mandatory, immediate bool, msg Publishing) (uint64, error) {
	if err := ch.awaitFlow(); err != nil {
		return 0, err
	}

	methodPayload, err := wire.EncodeMethod(wire.ClassMethod{ClassID: wire.ClassBasic, MethodID: 40}, []wire.Value{
		wire.Uint16(0), wire.ShortString(exchange), wire.ShortString(routingKey),
		wire.Bool(mandatory), wire.Bool(immediate),
	})
	if err != nil {
		return 0, wrapError(KindEncodingError, err)
	}

	headerPayload, err := wire.EncodeContentHeader(wire.ClassBasic, uint64(len(msg.Body)), msg.toWireProperties(ch.conn.dialect()))
	if err != nil {
		return 0, wrapError(KindEncodingError, err)
	}

	specs := []ioloop.FrameSpec{
		{Type: wire.FrameMethod, Channel: ch.id, Payload: methodPayload},
		{Type: wire.FrameHeader, Channel: ch.id, Payload: headerPayload},
	}
	maxBody := int(ch.conn.frameMax) - wire.FrameOverhead
	if maxBody <= 0 {
		maxBody = len(msg.Body)
		if maxBody == 0 {
			maxBody = 1
		}
	}
	for off := 0; off < len(msg.Body); off += maxBody {
		end := off + maxBody
		if end > len(msg.Body) {
			end = len(msg.Body)
		}
		specs = append(specs, ioloop.FrameSpec{Type: wire.FrameBody, Channel: ch.id, Payload: msg.Body[off:end]})
	}

	var seq uint64
	ch.mu.Lock()
	if ch.confirmsOn {
		ch.publishSeq++
		seq = ch.publishSeq
		ch.pendingConfirms = append(ch.pendingConfirms, seq)
	}
	ch.mu.Unlock()

	if err := ch.conn.writeFrames(specs); err != nil {
		return seq, err
	}
	return seq, nil
}

// Ack acknowledges deliveryTag.
func (ch *Channel) Ack(deliveryTag uint64, multiple bool) error {
	return ch.sendMethod(wire.ClassMethod{ClassID: wire.ClassBasic, MethodID: 80},
		[]wire.Value{wire.Uint64(deliveryTag), wire.Bool(multiple)})
}

// Nack negatively acknowledges deliveryTag.
func (ch *Channel) Nack(deliveryTag uint64, multiple, requeue bool) error {
	return ch.sendMethod(wire.ClassMethod{ClassID: wire.ClassBasic, MethodID: 120},
		[]wire.Value{wire.Uint64(deliveryTag), wire.Bool(multiple), wire.Bool(requeue)})
}

// Reject rejects a single deliveryTag.
func (ch *Channel) Reject(deliveryTag uint64, requeue bool) error {
	return ch.sendMethod(wire.ClassMethod{ClassID: wire.ClassBasic, MethodID: 90},
		[]wire.Value{wire.Uint64(deliveryTag), wire.Bool(requeue)})
}

// Flow requests the broker pause (active=false) or resume (active=true)
// delivery to this channel, and waits for channel.flow-ok.
func (ch *Channel) Flow(active bool) error {
	_, err := ch.call(wire.ClassMethod{ClassID: wire.ClassChannel, MethodID: 20}, []wire.Value{wire.Bool(active)})
	return err
}

// Close closes the channel with reply-code 200 (normal close).
func (ch *Channel) Close() error {
	if ch.State() == ChannelClosed {
		return nil
	}
	_, err := ch.call(wire.ClassMethod{ClassID: wire.ClassChannel, MethodID: 40},
		[]wire.Value{wire.Uint16(200), wire.ShortString("normal close"), wire.Uint16(0), wire.Uint16(0)})
	if err != nil {
		if e, ok := err.(*Error); ok && e.Kind == KindChannelClosed {
			return nil // broker already closed it for us
		}
		return err
	}
	ch.transitionClosed(channelClosedError(200, "normal close", 0, 0))
	return nil
}

