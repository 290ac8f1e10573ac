package dispatch

import (
	"bufio"
	"context"
	"net"
	"sync"
	"time"
)

// transport owns the length-delimited JSON-over-TCP listener and routes
// inbound frames to the owning Dispatcher, per §4.5's messaging model.
type transport struct {
	d *Dispatcher

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}

	dialTimeout time.Duration
}

func newTransport(d *Dispatcher) *transport {
	return &transport{d: d, conns: make(map[net.Conn]struct{}), dialTimeout: 5 * time.Second}
}

func (t *transport) listen(address string) error {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.listener = ln
	t.mu.Unlock()

	go t.acceptLoop(ln)
	return nil
}

func (t *transport) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		t.mu.Lock()
		t.conns[conn] = struct{}{}
		t.mu.Unlock()
		go t.handleConn(conn)
	}
}

func (t *transport) handleConn(conn net.Conn) {
	defer func() {
		t.mu.Lock()
		delete(t.conns, conn)
		t.mu.Unlock()
		conn.Close()
	}()

	r := bufio.NewReader(conn)
	for {
		msg, err := readFrame(r)
		if err != nil {
			return
		}
		t.dispatch(msg)
	}
}

// dispatch routes one inbound frame by type. Duplicate ids (re-delivery
// of an at-least-once send) are dropped after the first handling.
func (t *transport) dispatch(msg Message) {
	if t.d.markDuplicate(msg.ID) {
		return
	}
	switch msg.Type {
	case MsgHeartbeat:
		t.d.Heartbeat(msg.Sender)
	case MsgJoinRequest:
		var node ClusterNode
		if unmarshalPayload(msg, &node) == nil {
			_ = t.d.JoinNode(node)
		}
	case MsgMasterElection:
		t.d.electMaster()
	default:
		// TaskAssignment/TaskStatusUpdate/TaskResult/NodeInfo/DataTransfer/
		// Query/Command/Error are consumed by higher-level callers (the
		// job engine and daemon control plane) via Dispatcher.Inbox,
		// not handled here.
		t.d.deliverToInbox(msg)
	}
}

// send dials address (reusing no connection pool — cluster messaging is
// low-frequency relative to job/container traffic) and writes one frame.
func (t *transport) send(address string, msg Message) error {
	if address == "" {
		return nil
	}
	conn, err := net.DialTimeout("tcp", address, t.dialTimeout)
	if err != nil {
		return err
	}
	defer conn.Close()
	return writeFrame(conn, msg)
}

// sendCtx is send with caller-supplied cancellation in place of the fixed
// dial timeout.
func (t *transport) sendCtx(ctx context.Context, address string, msg Message) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return err
	}
	defer conn.Close()
	return writeFrame(conn, msg)
}

func (t *transport) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener != nil {
		t.listener.Close()
	}
	for conn := range t.conns {
		conn.Close()
	}
}
