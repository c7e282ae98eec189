// Package mux implements the Multiplexer: it fans one encrypted
// bidirectional stream out to up to 16 logical channels, preserving
// per-channel FIFO ordering. Channel 0 is reserved for unchannelled
// traffic.
//
// The registry is exclusively owned by the Multiplexer; subscribers hold
// only a Handle (their channel id and their own send/recv queues) and never
// reach back into the Multiplexer's internals, mirroring the
// cyclic-sharing resolution documented in spec.md §9 ("Cyclic sharing").
package mux

import (
	"errors"
	"reflect"
	"sort"
	"sync"

	channels "gopkg.in/eapache/channels.v1"

	"github.com/xndrbh/mage/streaming"
	"github.com/xndrbh/mage/wire"
)

// ErrChannelClosed is returned by a subscriber handle observed after the
// owning Multiplexer has been closed.
var ErrChannelClosed = errors.New("mux: channel closed")

const numChannels = 16

// queue is a single subscriber's inbox: an unbounded FIFO of payloads,
// backed by gopkg.in/eapache/channels.v1's InfiniteChannel — a direct
// teacher dependency (its `In()`/`Out()` shape is exactly the
// producer/consumer queue a subscriber handle needs; see DESIGN.md).
type queue struct {
	ch channels.Channel

	mu     sync.Mutex
	closed bool
}

func newQueue() *queue {
	return &queue{ch: channels.NewInfiniteChannel()}
}

func (q *queue) push(payload []byte) {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return
	}
	q.ch.In() <- payload
}

func (q *queue) pop() ([]byte, bool) {
	v, ok := <-q.ch.Out()
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}

func (q *queue) tryPop() ([]byte, bool) {
	select {
	case v, ok := <-q.ch.Out():
		if !ok {
			return nil, false
		}
		return v.([]byte), true
	default:
		return nil, false
	}
}

// outChan exposes the queue's raw output channel so PumpOutgoing can block
// on several subscribers' queues at once via reflect.Select, rather than
// polling them with tryPop. A receive on this channel synchronizes directly
// with InfiniteChannel's own forwarding goroutine, so unlike tryPop it
// cannot transiently miss a payload that was just pushed.
func (q *queue) outChan() <-chan interface{} {
	return q.ch.Out()
}

func (q *queue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *queue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	q.ch.Close()
}

// Handle is a subscriber's endpoint on one channel: Send enqueues a payload
// to be written out by PumpOutgoing, Recv dequeues a payload routed in by
// PumpIncoming.
type Handle struct {
	channel uint8
	send    *queue // payloads awaiting PumpOutgoing
	recv    *queue // payloads delivered by PumpIncoming
}

// Channel returns which channel id this handle subscribes to.
func (h *Handle) Channel() uint8 { return h.channel }

// Send enqueues payload to be chunked and written the next time
// PumpOutgoing runs. It returns ErrChannelClosed if the Multiplexer has
// been closed.
func (h *Handle) Send(payload []byte) error {
	if h.send.isClosed() {
		return ErrChannelClosed
	}
	h.send.push(payload)
	return nil
}

// Recv blocks until a payload routed to this channel is available.
func (h *Handle) Recv() ([]byte, error) {
	p, ok := h.recv.pop()
	if !ok {
		return nil, ErrChannelClosed
	}
	return p, nil
}

// Multiplexer owns the channel registry and the Stream-out/Stream-in pair
// that back it.
type Multiplexer struct {
	out *streaming.Out
	in  *streaming.In
	cfg *wire.Config

	mu       sync.Mutex
	channels [numChannels][]*Handle
	closed   bool
	closedCh chan struct{}

	// reorderWindow is how many Packets PumpIncoming buffers from the
	// incoming stream before delivery, sorted by sequence when the
	// session's PacketConfig enables sequencing. A window of one
	// MaxSize-worth of ciphertext is sufficient for the byte-ordered
	// transports mage targets (spec.md §9, "reordering window").
	reorderWindow int
}

// New constructs a Multiplexer bound to the given Stream-out/Stream-in
// pair. reorderWindow bounds how many incoming Packets PumpIncoming will
// buffer before sorting and delivering them; 1 disables reordering.
func New(cfg *wire.Config, out *streaming.Out, in *streaming.In, reorderWindow int) *Multiplexer {
	if reorderWindow < 1 {
		reorderWindow = 1
	}
	return &Multiplexer{
		out:           out,
		in:            in,
		cfg:           cfg,
		reorderWindow: reorderWindow,
		closedCh:      make(chan struct{}),
	}
}

// OpenChannel allocates a new subscriber entry under channel id and returns
// its handle. id must be 0..15.
func (m *Multiplexer) OpenChannel(id uint8) (*Handle, error) {
	if id >= numChannels {
		return nil, wire.ErrChannelOverflow
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	h := &Handle{channel: id, send: newQueue(), recv: newQueue()}
	m.channels[id] = append(m.channels[id], h)
	return h, nil
}

// Channel returns the current subscriber list for id, for introspection;
// it is not part of the minimal operation set in spec.md §4.5 but is a
// natural companion to OpenChannel (see stream_channeled.rs's per-channel
// subscriber Vec).
func (m *Multiplexer) Channel(id uint8) ([]*Handle, bool) {
	if id >= numChannels {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	hs := m.channels[id]
	return hs, len(hs) > 0
}

// PumpOutgoing drains every subscriber's pending payloads and chunks each
// as one call to Stream-out.Chunk, fanning in writes from multiple
// subscribers on the same channel at record granularity. When every queue
// is empty it blocks — via reflect.Select across the subscriber queues'
// own output channels — until one has a payload ready or the Multiplexer
// is closed, rather than spinning.
func (m *Multiplexer) PumpOutgoing() error {
	for {
		m.mu.Lock()
		handles := make([]*Handle, 0, numChannels)
		for ch := 0; ch < numChannels; ch++ {
			handles = append(handles, m.channels[ch]...)
		}
		m.mu.Unlock()

		sent := false
		for _, h := range handles {
			for {
				payload, ok := h.send.tryPop()
				if !ok {
					break
				}
				sent = true
				if err := m.out.Chunk(0, h.channel, payload); err != nil {
					return err
				}
			}
		}
		if sent {
			return nil
		}

		item, ok, err := m.waitForOutgoing(handles)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := m.out.Chunk(0, item.channel, item.payload); err != nil {
			return err
		}
		return nil
	}
}

// outgoingItem is a payload lifted directly off a subscriber queue's output
// channel by waitForOutgoing's reflect.Select.
type outgoingItem struct {
	channel uint8
	payload []byte
}

// waitForOutgoing blocks until one of handles' queues has a payload ready
// or the Multiplexer is closed. With no handles yet open there is nothing
// to select on, so it simply waits for Close.
func (m *Multiplexer) waitForOutgoing(handles []*Handle) (outgoingItem, bool, error) {
	if len(handles) == 0 {
		<-m.closedCh
		return outgoingItem{}, false, ErrChannelClosed
	}

	cases := make([]reflect.SelectCase, 0, len(handles)+1)
	cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(m.closedCh)})
	for _, h := range handles {
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(h.send.outChan())})
	}

	chosen, recv, recvOK := reflect.Select(cases)
	if chosen == 0 {
		return outgoingItem{}, false, ErrChannelClosed
	}
	if !recvOK {
		// This handle's queue was closed with nothing left in it; loop
		// back in PumpOutgoing and re-evaluate rather than treating it as
		// fatal, since other handles may still be live.
		return outgoingItem{}, false, nil
	}
	h := handles[chosen-1]
	return outgoingItem{channel: h.channel, payload: recv.Interface().([]byte)}, true, nil
}

// PumpIncoming dechunks records from Stream-in and routes each Packet's
// data to every subscriber queue of that Packet's channel (broadcast fan-
// out). When the PacketConfig enables sequencing, up to reorderWindow
// Packets are buffered and sorted by sequence before delivery.
func (m *Multiplexer) PumpIncoming() error {
	window := make([]wire.Packet, 0, m.reorderWindow)
	for len(window) < m.reorderWindow {
		p, err := m.in.Dechunk()
		if err != nil {
			return err
		}
		window = append(window, p)
	}

	if m.cfg.HasSeq {
		sort.Stable(wire.BySequence(window))
	}

	for _, p := range window {
		m.deliver(p)
	}
	return nil
}

func (m *Multiplexer) deliver(p wire.Packet) {
	m.mu.Lock()
	subs := m.channels[p.Channel]
	m.mu.Unlock()
	for _, h := range subs {
		h.recv.push(p.Data)
	}
}

// Close marks the Multiplexer closed and closes every subscriber queue:
// Send returns ErrChannelClosed from then on, Recv first returns any
// payloads already delivered to that handle and then ErrChannelClosed, and
// a PumpOutgoing blocked waiting for outgoing work unblocks with the same
// error. It does not close the transport; Session.Close does that.
func (m *Multiplexer) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.closedCh)
	for ch := 0; ch < numChannels; ch++ {
		for _, h := range m.channels[ch] {
			h.send.close()
			h.recv.close()
		}
	}
}
