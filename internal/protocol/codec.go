package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
)

// envelope is the wire shape of every frame.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DecodeError describes a frame that failed shape validation.
type DecodeError struct {
	Type   string
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("invalid frame: %s", e.Reason)
	}
	return fmt.Sprintf("invalid %q frame: %s", e.Type, e.Reason)
}

// UnknownTypeError reports an unrecognized message type.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown message type: %s", e.Type)
}

// Decode parses a client→server frame and validates its payload shape.
func Decode(data []byte) (ClientMessage, error) {
	var env envelope
	if err := sonic.Unmarshal(data, &env); err != nil {
		return nil, &DecodeError{Reason: "not valid JSON"}
	}
	if env.Type == "" {
		return nil, &DecodeError{Reason: "missing type field"}
	}

	switch env.Type {
	case TypeInit:
		// Both init fields are optional; an absent payload is an empty init.
		var p InitPayload
		if len(env.Payload) > 0 {
			if err := decodePayload(env, &p); err != nil {
				return nil, err
			}
		}
		return p, nil
	case TypeContext:
		var p ContextPayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		if p.Data == nil {
			return nil, &DecodeError{Type: env.Type, Reason: "data object is required"}
		}
		return p, nil
	case TypeMessage:
		var p MessagePayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TypePing:
		return PingPayload{}, nil
	case TypeAbort:
		var p AbortPayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TypeNewConversation:
		return NewConversationPayload{}, nil
	case TypeReset:
		return ResetPayload{}, nil
	case TypeFile:
		var p FilePayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		if p.Content == "" {
			return nil, &DecodeError{Type: env.Type, Reason: "content is required"}
		}
		return p, nil
	case TypeMetadata:
		var p MetadataPayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		if p.Data == nil {
			return nil, &DecodeError{Type: env.Type, Reason: "data is required"}
		}
		return p, nil
	case TypeInstructions:
		var p InstructionsPayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		if p.Content == "" {
			return nil, &DecodeError{Type: env.Type, Reason: "content is required"}
		}
		return p, nil
	default:
		return nil, &UnknownTypeError{Type: env.Type}
	}
}

func decodePayload(env envelope, dst any) error {
	if len(env.Payload) == 0 {
		return &DecodeError{Type: env.Type, Reason: "missing payload"}
	}
	if err := sonic.Unmarshal(env.Payload, dst); err != nil {
		return &DecodeError{Type: env.Type, Reason: "malformed payload"}
	}
	return nil
}

// Encode serializes a server→client message into a wire frame.
func Encode(msg ServerMessage) ([]byte, error) {
	body, err := sonic.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msg.MessageType(), err)
	}
	return sonic.Marshal(envelope{
		Type:    msg.MessageType(),
		Payload: body,
	})
}

// EncodeClient serializes a client→server message into a wire frame.
// Used by the SDK side of the protocol.
func EncodeClient(msg ClientMessage) ([]byte, error) {
	body, err := sonic.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msg.MessageType(), err)
	}
	return sonic.Marshal(envelope{
		Type:    msg.MessageType(),
		Payload: body,
	})
}

// DecodeServer parses a server→client frame. Used by the SDK side.
func DecodeServer(data []byte) (ServerMessage, error) {
	var env envelope
	if err := sonic.Unmarshal(data, &env); err != nil {
		return nil, &DecodeError{Reason: "not valid JSON"}
	}

	switch env.Type {
	case TypeConnected:
		var m ConnectedMessage
		if err := decodeServerPayload(env, &m); err != nil {
			return nil, err
		}
		return m, nil
	case TypeReady:
		var m ReadyMessage
		if len(env.Payload) > 0 {
			if err := decodeServerPayload(env, &m); err != nil {
				return nil, err
			}
		}
		return m, nil
	case TypeStatus:
		var m StatusMessage
		if err := decodeServerPayload(env, &m); err != nil {
			return nil, err
		}
		return m, nil
	case TypeStream:
		var m StreamMessage
		if err := decodeServerPayload(env, &m); err != nil {
			return nil, err
		}
		return m, nil
	case TypeComplete:
		var m CompleteMessage
		if err := decodeServerPayload(env, &m); err != nil {
			return nil, err
		}
		return m, nil
	case TypeError:
		var m ErrorMessage
		if err := decodeServerPayload(env, &m); err != nil {
			return nil, err
		}
		return m, nil
	case TypePong:
		return PongMessage{}, nil
	default:
		return nil, &UnknownTypeError{Type: env.Type}
	}
}

func decodeServerPayload(env envelope, dst any) error {
	if len(env.Payload) == 0 {
		return &DecodeError{Type: env.Type, Reason: "missing payload"}
	}
	if err := sonic.Unmarshal(env.Payload, dst); err != nil {
		return &DecodeError{Type: env.Type, Reason: "malformed payload"}
	}
	return nil
}
