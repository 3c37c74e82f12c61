package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Message is the flat wire record exchanged with the server. Command selects
// which of the other fields are meaningful. Replies echo the Sequence of the
// message they answer.
type Message struct {
	Command   Command         `json:"cmd"`
	Sequence  int64           `json:"seq,omitempty"`
	Namespace string          `json:"nsp,omitempty"`
	Topic     string          `json:"topic,omitempty"`
	Name      string          `json:"name,omitempty"`
	Path      string          `json:"path,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Text      string          `json:"message,omitempty"`
}

// UnmarshalData decodes the message payload into v.
func (m *Message) UnmarshalData(v any) error {
	if len(m.Data) == 0 {
		return errors.New("message has no data")
	}
	return json.Unmarshal(m.Data, v)
}

// feedKey is the registry and routing key for a (namespace, topic) pair.
func feedKey(namespace, topic string) string {
	return namespace + topic
}

// OpenData is the payload of the server's open command.
type OpenData struct {
	PingInterval int    `json:"pingInterval"`
	PingTimeout  int    `json:"pingTimeout"`
	Extra        string `json:"extra"`
}

// encodeData marshals a caller payload. A nil payload stays absent on the wire.
func encodeData(v any) (json.RawMessage, error) {
	switch d := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return d, nil
	case []byte:
		if json.Valid(d) {
			return json.RawMessage(d), nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal data: %w", err)
	}
	return b, nil
}

func marshalMessage(msg *Message) ([]byte, error) {
	return json.Marshal(msg)
}

// parseMessage decodes one inbound frame.
func parseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}
	return &msg, nil
}

func newConnectMessage(credential any) (*Message, error) {
	data, err := encodeData(credential)
	if err != nil {
		return nil, err
	}
	return &Message{Command: CmdConnect, Data: data}, nil
}

func newPongMessage() *Message {
	return &Message{Command: CmdPong}
}

func newSubscribeMessage(namespace, topic string) *Message {
	return &Message{Command: CmdSubscribe, Namespace: namespace, Topic: topic}
}

func newUnsubscribeMessage(namespace, topic string) *Message {
	return &Message{Command: CmdUnsubscribe, Namespace: namespace, Topic: topic}
}

func newRequestMessage(seq int64, namespace, path string, data json.RawMessage) *Message {
	return &Message{
		Command:   CmdRequest,
		Sequence:  seq,
		Namespace: namespace,
		Path:      path,
		Data:      data,
	}
}

func newEventMessage(seq int64, name, namespace string, data json.RawMessage) *Message {
	return &Message{
		Command:   CmdEvent,
		Sequence:  seq,
		Name:      name,
		Namespace: namespace,
		Data:      data,
	}
}

func newEventAckMessage(seq int64, name, namespace string) *Message {
	return &Message{
		Command:   CmdEventAck,
		Sequence:  seq,
		Name:      name,
		Namespace: namespace,
	}
}
