package apiclient

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
)

// rpcMaxFrameSize mirrors pkg/daemon's own bound on a single frame.
const rpcMaxFrameSize = 16 << 20

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

// RPCClient calls the daemon's binary framed RPC listener directly,
// bypassing the HTTP façade for callers that want the lower-level surface
// (§4.8's "two parallel façades").
type RPCClient struct {
	addr string
}

func NewRPCClient(addr string) *RPCClient {
	return &RPCClient{addr: addr}
}

// Call dials addr fresh for each request — cluster/RPC traffic from a CLI
// invocation is low-frequency, so a connection pool would add complexity
// with no measurable benefit.
func (c *RPCClient) Call(method string, params any) (json.RawMessage, error) {
	conn, err := net.DialTimeout("tcp", c.addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("dial daemon rpc at %s: %w", c.addr, err)
	}
	defer conn.Close()

	var raw json.RawMessage
	if params != nil {
		raw, err = json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("encode rpc params: %w", err)
		}
	}

	call := rpcCall{ID: uuid.NewString(), Method: method, Params: raw}
	if err := writeFrame(conn, call); err != nil {
		return nil, err
	}

	reply, err := readReply(bufio.NewReader(conn))
	if err != nil {
		return nil, err
	}
	if reply.Error != "" {
		return nil, fmt.Errorf("rpc %s: %s", method, reply.Error)
	}
	return reply.Result, nil
}

func writeFrame(w io.Writer, call rpcCall) error {
	body, err := json.Marshal(call)
	if err != nil {
		return fmt.Errorf("encode rpc call: %w", err)
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(body)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

func readReply(r *bufio.Reader) (rpcReply, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return rpcReply{}, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n == 0 || n > rpcMaxFrameSize {
		return rpcReply{}, fmt.Errorf("frame length %d out of bounds", n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return rpcReply{}, err
	}
	var reply rpcReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return rpcReply{}, fmt.Errorf("decode rpc reply: %w", err)
	}
	return reply, nil
}
