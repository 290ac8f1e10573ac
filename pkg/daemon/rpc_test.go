package daemon

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	call := rpcCall{ID: "1", Method: "daemon.ping"}
	require.NoError(t, writeCallFrame(&buf, call))

	got, err := readCallFrame(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, call.ID, got.ID)
	assert.Equal(t, call.Method, got.Method)
}

func TestReplyFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	reply := rpcReply{ID: "1", Result: []byte(`{"ok":true}`)}
	require.NoError(t, writeReplyFrame(&buf, reply))

	got, err := readReplyFrame(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, reply.ID, got.ID)
	assert.JSONEq(t, `{"ok":true}`, string(got.Result))
}

func TestReadLengthPrefixedRejectsOversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	var hdr [4]byte
	hdr[0] = 0xFF
	hdr[1] = 0xFF
	hdr[2] = 0xFF
	hdr[3] = 0xFF
	buf.Write(hdr[:])

	_, err := readLengthPrefixed(bufio.NewReader(&buf))
	assert.Error(t, err)
}

func TestInvokeUnknownMethod(t *testing.T) {
	s := &rpcServer{methods: map[string]rpcHandler{}}
	reply := s.invoke(rpcCall{ID: "1", Method: "nope"})
	assert.Equal(t, "1", reply.ID)
	assert.Contains(t, reply.Error, "unknown method")
}
