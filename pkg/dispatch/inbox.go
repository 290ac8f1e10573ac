package dispatch

import "encoding/json"

// unmarshalPayload decodes msg's payload into v.
func unmarshalPayload(msg Message, v any) error {
	if len(msg.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(msg.Payload, v)
}

// deliverToInbox hands an application-level message (TaskAssignment,
// TaskStatusUpdate, TaskResult, NodeInfo, DataTransfer, Query, Command,
// Error) to whatever is reading Inbox. A full inbox drops the oldest
// message rather than blocking the connection's read loop.
func (d *Dispatcher) deliverToInbox(msg Message) {
	select {
	case d.inbox() <- msg:
	default:
		select {
		case <-d.inbox():
		default:
		}
		select {
		case d.inbox() <- msg:
		default:
		}
	}
}

func (d *Dispatcher) inbox() chan Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.inboxCh == nil {
		d.inboxCh = make(chan Message, 256)
	}
	return d.inboxCh
}

// Inbox returns the channel of application-level messages routed to this
// node (everything except Heartbeat/JoinRequest/MasterElection, which the
// Dispatcher itself consumes). Callers such as the job engine or daemon
// control plane read from it to receive TaskAssignment/TaskResult/etc.
func (d *Dispatcher) Inbox() <-chan Message {
	return d.inbox()
}

// Send addresses and delivers an application-level message to recipient.
func (d *Dispatcher) Send(recipient string, t MessageType, payload any) error {
	d.mu.RLock()
	node, ok := d.nodes[recipient]
	d.mu.RUnlock()
	if !ok {
		return nil
	}
	msg, err := NewMessage(d.localID, recipient, t, payload)
	if err != nil {
		return err
	}
	return d.transport.send(node.Address, msg)
}
