package dispatch

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// MessageType is the kind of payload a Message carries, per §4.5's
// enumerated message kinds.
type MessageType string

const (
	MsgHeartbeat        MessageType = "Heartbeat"
	MsgTaskAssignment   MessageType = "TaskAssignment"
	MsgTaskStatusUpdate MessageType = "TaskStatusUpdate"
	MsgTaskResult       MessageType = "TaskResult"
	MsgNodeInfo         MessageType = "NodeInfo"
	MsgJoinRequest      MessageType = "JoinRequest"
	MsgJoinResponse     MessageType = "JoinResponse"
	MsgMasterElection   MessageType = "MasterElection"
	MsgDataTransfer     MessageType = "DataTransfer"
	MsgQuery            MessageType = "Query"
	MsgCommand          MessageType = "Command"
	MsgError            MessageType = "Error"
)

// Message is a single distributed-dispatcher wire message: length-delimited
// JSON frames over TCP, each self-identifying for at-least-once delivery
// with idempotent, id-deduplicated handling (§4.5).
type Message struct {
	ID        string            `json:"id"`
	Sender    string            `json:"sender"`
	Recipient string            `json:"recipient"`
	Type      MessageType       `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   json.RawMessage   `json:"payload,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NewMessage builds a Message with a fresh id and the current time.
func NewMessage(sender, recipient string, t MessageType, payload any) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal payload: %w", err)
	}
	return Message{
		ID:        uuid.NewString(),
		Sender:    sender,
		Recipient: recipient,
		Type:      t,
		Timestamp: time.Now(),
		Payload:   raw,
	}, nil
}

const maxFrameSize = 16 << 20 // 16MiB guards a corrupt length prefix from an unbounded allocation

// writeFrame writes msg as a 4-byte big-endian length prefix followed by
// its JSON encoding.
func writeFrame(w io.Writer, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(body)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// readFrame reads one length-delimited JSON message from r.
func readFrame(r *bufio.Reader) (Message, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Message{}, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n == 0 || n > maxFrameSize {
		return Message{}, fmt.Errorf("frame length %d out of bounds", n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return Message{}, err
	}
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	return msg, nil
}
