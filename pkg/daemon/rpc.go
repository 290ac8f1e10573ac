package daemon

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/nexusshell/corectl/pkg/log"
	"github.com/rs/zerolog"
)

// rpcMaxFrameSize bounds a single call/response body the same way
// pkg/dispatch bounds its cluster frames: a corrupt length prefix must not
// drive an unbounded allocation.
const rpcMaxFrameSize = 16 << 20

// rpcCall is one request read off the binary framed listener described in
// §4.8: a method name plus a JSON params blob, answered with a JSON result
// or an error string.
type rpcCall struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type rpcReply struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// rpcHandler answers one rpcCall, returning the JSON-encodable result or an
// error whose message is surfaced to the caller.
type rpcHandler func(ctx context.Context, params json.RawMessage) (any, error)

// rpcServer is the daemon's binary framed RPC listener — the low-level
// sibling to httpServer's REST façade over the same Daemon. It keeps its
// own method table, separate from the HTTP router.
type rpcServer struct {
	d       *Daemon
	logger  zerolog.Logger
	methods map[string]rpcHandler

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
}

func newRPCServer(d *Daemon) *rpcServer {
	s := &rpcServer{
		d:       d,
		logger:  log.WithComponent("rpc"),
		methods: make(map[string]rpcHandler),
		conns:   make(map[net.Conn]struct{}),
	}
	s.registerMethods()
	return s
}

func (s *rpcServer) listen(addr string) error {
	var ln net.Listener
	var err error
	if s.d.tlsConfig != nil {
		ln, err = tls.Listen("tcp", addr, s.d.tlsConfig)
	} else {
		ln, err = net.Listen("tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("rpc listen %s: %w", addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info().Str("addr", addr).Bool("tls", s.d.tlsConfig != nil).Msg("rpc listener started")
	for {
		conn, err := ln.Accept()
		if err != nil {
			return nil
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()
		go s.handleConn(conn)
	}
}

func (s *rpcServer) handleConn(conn net.Conn) {
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	r := bufio.NewReader(conn)
	for {
		call, err := readCallFrame(r)
		if err != nil {
			return
		}
		reply := s.invoke(call)
		if err := writeReplyFrame(conn, reply); err != nil {
			return
		}
	}
}

func (s *rpcServer) invoke(call rpcCall) rpcReply {
	handler, ok := s.methods[call.Method]
	if !ok {
		return rpcReply{ID: call.ID, Error: fmt.Sprintf("unknown method %q", call.Method)}
	}
	result, err := handler(context.Background(), call.Params)
	if err != nil {
		return rpcReply{ID: call.ID, Error: err.Error()}
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return rpcReply{ID: call.ID, Error: err.Error()}
	}
	return rpcReply{ID: call.ID, Result: raw}
}

func (s *rpcServer) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
}

// registerMethods binds the RPC surface: daemon.stats, daemon.ping,
// container.list, job.list and the pipeline methods added by
// registerPipelineMethods. This is a subset of the operations the HTTP
// façade exposes; the rest are reachable over HTTP only.
func (s *rpcServer) registerMethods() {
	s.methods["daemon.stats"] = func(ctx context.Context, _ json.RawMessage) (any, error) {
		return s.d.Stats(), nil
	}
	s.methods["daemon.ping"] = func(ctx context.Context, _ json.RawMessage) (any, error) {
		return map[string]string{"status": "ok"}, nil
	}
	s.methods["container.list"] = func(ctx context.Context, _ json.RawMessage) (any, error) {
		return s.d.containers.List(true, nil), nil
	}
	s.methods["job.list"] = func(ctx context.Context, _ json.RawMessage) (any, error) {
		return s.d.jobs.CountJobsByState(), nil
	}
	registerPipelineMethods(s)
}

func writeCallFrame(w io.Writer, call rpcCall) error {
	body, err := json.Marshal(call)
	if err != nil {
		return fmt.Errorf("encode rpc call: %w", err)
	}
	return writeLengthPrefixed(w, body)
}

func readCallFrame(r *bufio.Reader) (rpcCall, error) {
	body, err := readLengthPrefixed(r)
	if err != nil {
		return rpcCall{}, err
	}
	var call rpcCall
	if err := json.Unmarshal(body, &call); err != nil {
		return rpcCall{}, fmt.Errorf("decode rpc call: %w", err)
	}
	return call, nil
}

func writeReplyFrame(w io.Writer, reply rpcReply) error {
	body, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("encode rpc reply: %w", err)
	}
	return writeLengthPrefixed(w, body)
}

func readReplyFrame(r *bufio.Reader) (rpcReply, error) {
	body, err := readLengthPrefixed(r)
	if err != nil {
		return rpcReply{}, err
	}
	var reply rpcReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return rpcReply{}, fmt.Errorf("decode rpc reply: %w", err)
	}
	return reply, nil
}

func writeLengthPrefixed(w io.Writer, body []byte) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(body)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

func readLengthPrefixed(r *bufio.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n == 0 || n > rpcMaxFrameSize {
		return nil, fmt.Errorf("frame length %d out of bounds", n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}
