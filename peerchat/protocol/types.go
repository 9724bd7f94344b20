package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUnknownMessage = errors.New("protocol: unknown message type")
	ErrMissingField   = errors.New("protocol: missing message field")
)

type MessageType uint8

const (
	MessageTypeHandshake MessageType = 1
	MessageTypeChat      MessageType = 2
	MessageTypeAck       MessageType = 3
	MessageTypePing      MessageType = 4
)

func (t MessageType) String() string {
	switch t {
	case MessageTypeHandshake:
		return "Handshake"
	case MessageTypeChat:
		return "Chat"
	case MessageTypeAck:
		return "Ack"
	case MessageTypePing:
		return "Ping"
	default:
		return "UNKNOWN"
	}
}

// Message is one of Handshake, Chat, Ack or Ping.
type Message interface {
	Type() MessageType
}

// Handshake carries a base64 X25519 public key.
type Handshake struct {
	PubKey string `json:"pubkey"`
}

// Chat carries one encrypted message. Payload and Nonce are base64.
type Chat struct {
	SenderID  string `json:"sender_id"`
	Timestamp uint64 `json:"timestamp"`
	Payload   string `json:"payload"`
	Nonce     string `json:"nonce"`
}

// Ack is reserved; peers currently ignore it.
type Ack struct {
	ID string `json:"id"`
}

// Ping is a liveness probe without a body.
type Ping struct{}

func (Handshake) Type() MessageType { return MessageTypeHandshake }
func (Chat) Type() MessageType      { return MessageTypeChat }
func (Ack) Type() MessageType       { return MessageTypeAck }
func (Ping) Type() MessageType      { return MessageTypePing }

// Encode serializes m as externally tagged JSON: struct variants become
// {"Name":{...}} and Ping becomes the bare string "Ping".
func Encode(m Message) ([]byte, error) {
	switch v := m.(type) {
	case Handshake, Chat, Ack:
		return json.Marshal(map[string]Message{m.Type().String(): v})
	case *Handshake:
		return Encode(*v)
	case *Chat:
		return Encode(*v)
	case *Ack:
		return Encode(*v)
	case Ping, *Ping:
		return json.Marshal(MessageTypePing.String())
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownMessage, m)
	}
}

type handshakeFields struct {
	PubKey *string `json:"pubkey"`
}

type chatFields struct {
	SenderID  *string `json:"sender_id"`
	Timestamp *uint64 `json:"timestamp"`
	Payload   *string `json:"payload"`
	Nonce     *string `json:"nonce"`
}

type ackFields struct {
	ID *string `json:"id"`
}

// Decode parses one encoded message. Missing fields, unknown variants and
// envelopes holding more than one variant are rejected.
func Decode(b []byte) (Message, error) {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var name string
		if err := json.Unmarshal(b, &name); err != nil {
			return nil, err
		}
		if name != MessageTypePing.String() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, name)
		}
		return Ping{}, nil
	}

	var env map[string]json.RawMessage
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, err
	}
	if len(env) != 1 {
		return nil, fmt.Errorf("%w: envelope has %d variants", ErrUnknownMessage, len(env))
	}

	for name, body := range env {
		switch name {
		case MessageTypeHandshake.String():
			var f handshakeFields
			if err := json.Unmarshal(body, &f); err != nil {
				return nil, err
			}
			if f.PubKey == nil {
				return nil, fmt.Errorf("%w: pubkey", ErrMissingField)
			}
			return Handshake{PubKey: *f.PubKey}, nil
		case MessageTypeChat.String():
			var f chatFields
			if err := json.Unmarshal(body, &f); err != nil {
				return nil, err
			}
			switch {
			case f.SenderID == nil:
				return nil, fmt.Errorf("%w: sender_id", ErrMissingField)
			case f.Timestamp == nil:
				return nil, fmt.Errorf("%w: timestamp", ErrMissingField)
			case f.Payload == nil:
				return nil, fmt.Errorf("%w: payload", ErrMissingField)
			case f.Nonce == nil:
				return nil, fmt.Errorf("%w: nonce", ErrMissingField)
			}
			return Chat{SenderID: *f.SenderID, Timestamp: *f.Timestamp, Payload: *f.Payload, Nonce: *f.Nonce}, nil
		case MessageTypeAck.String():
			var f ackFields
			if err := json.Unmarshal(body, &f); err != nil {
				return nil, err
			}
			if f.ID == nil {
				return nil, fmt.Errorf("%w: id", ErrMissingField)
			}
			return Ack{ID: *f.ID}, nil
		case MessageTypePing.String():
			// {"Ping":null} is the tagged spelling of the unit variant.
			if string(bytes.TrimSpace(body)) != "null" {
				return nil, fmt.Errorf("%w: Ping has a body", ErrUnknownMessage)
			}
			return Ping{}, nil
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, name)
		}
	}
	return nil, ErrUnknownMessage
}
