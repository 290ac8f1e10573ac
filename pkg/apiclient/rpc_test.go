package apiclient

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRPCClientCallRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)

		var hdr [4]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return
		}
		n := binary.BigEndian.Uint32(hdr[:])
		body := make([]byte, n)
		if _, err := io.ReadFull(r, body); err != nil {
			return
		}
		var call rpcCall
		_ = json.Unmarshal(body, &call)

		reply := rpcReply{ID: call.ID, Result: json.RawMessage(`{"ok":true}`)}
		replyBody, _ := json.Marshal(reply)
		var rhdr [4]byte
		binary.BigEndian.PutUint32(rhdr[:], uint32(len(replyBody)))
		conn.Write(rhdr[:])
		conn.Write(replyBody)
	}()

	rc := NewRPCClient(ln.Addr().String())
	result, err := rc.Call("daemon.ping", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(result))
}
