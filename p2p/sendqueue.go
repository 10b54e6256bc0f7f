package p2p

import (
	"net"
	"sync"

	"github.com/XDagger/xdagj-p2p-go/message"
)

// outgoingFrame is one queued write.
type outgoingFrame struct {
	code Code
	body []byte
}

// Code is a re-export of message.Code so callers of this package don't
// need a second import for the common case of queuing a frame.
type Code = message.Code

// SendQueue is the per-channel bounded FIFO with a priority lane for
// control frames: DISCONNECT and handshake-adjacent frames bypass the
// normal backlog entirely. A single consumer goroutine drains both
// lanes and writes frames to the connection; Send from any number of
// producer goroutines is safe.
type SendQueue struct {
	conn  net.Conn
	stats *Stats // nil disables send-side accounting

	mu       sync.Mutex
	cond     *sync.Cond
	normal   []outgoingFrame
	priority []outgoingFrame
	capacity int
	closed   bool

	wg sync.WaitGroup
}

// NewSendQueue creates a queue bound to conn and starts its drain loop.
// Every successfully written frame is accounted against stats (header
// overhead plus body), so the channel's send counters track the wire.
func NewSendQueue(conn net.Conn, capacity int, stats *Stats) *SendQueue {
	if capacity <= 0 {
		capacity = 256
	}
	q := &SendQueue{conn: conn, capacity: capacity, stats: stats}
	q.cond = sync.NewCond(&q.mu)
	q.wg.Add(1)
	go q.drain()
	return q
}

// Send enqueues a normal-priority frame. It returns ErrQueueFull if the
// queue is at capacity or ErrQueueClosed
// if the channel is shutting down.
func (q *SendQueue) Send(code Code, body []byte) error {
	return q.enqueue(&q.normal, code, body, true)
}

// SendPriority enqueues a control frame (DISCONNECT, handshake-adjacent)
// that bypasses the normal lane's capacity check entirely, so a full
// queue can never prevent a peer from being told why it is being cut
// off.
func (q *SendQueue) SendPriority(code Code, body []byte) error {
	return q.enqueue(&q.priority, code, body, false)
}

func (q *SendQueue) enqueue(lane *[]outgoingFrame, code Code, body []byte, enforceCapacity bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	if enforceCapacity && len(q.normal) >= q.capacity {
		return ErrQueueFull
	}
	*lane = append(*lane, outgoingFrame{code: code, body: body})
	q.cond.Signal()
	return nil
}

// Len reports the current normal-lane backlog (diagnostic use).
func (q *SendQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.normal)
}

func (q *SendQueue) drain() {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		for len(q.priority) == 0 && len(q.normal) == 0 && !q.closed {
			q.cond.Wait()
		}
		if q.closed && len(q.priority) == 0 && len(q.normal) == 0 {
			q.mu.Unlock()
			return
		}
		var f outgoingFrame
		if len(q.priority) > 0 {
			f, q.priority = q.priority[0], q.priority[1:]
		} else {
			f, q.normal = q.normal[0], q.normal[1:]
		}
		q.mu.Unlock()

		frame := &message.Frame{Version: message.Version, CompressFlag: message.CompressNone, PacketType: f.code, Body: f.body}
		if err := message.WriteFrame(q.conn, frame); err == nil {
			if q.stats != nil {
				q.stats.addSent(message.HeaderLength + len(f.body))
			}
		} else {
			// A write failure means the connection is already dead;
			// the channel's owner will observe it on the read side and
			// call Close. Nothing further to drain productively.
			q.mu.Lock()
			q.closed = true
			q.mu.Unlock()
			return
		}
	}
}

// Close stops the drain loop after flushing whatever is already queued
// in both lanes (priority first), and is safe to call more than once. It
// blocks until the drain goroutine exits, so a write stuck on a
// connection nobody reads holds it up until that connection is closed.
func (q *SendQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
	q.wg.Wait()
}
