package broadcast

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"

	"github.com/mcdev12/deckoverlay/go/internal/models"
)

// ContentTypeJSON is the only content type the decoder accepts
const ContentTypeJSON = "application/json"

// ErrUnsupportedContentType is returned for payloads that are not JSON
var ErrUnsupportedContentType = errors.New("unsupported content type")

// DecodeError reports a payload that could not be interpreted
type DecodeError struct {
	Type MessageType
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("decode broadcast message: %v", e.Err)
	}
	return fmt.Sprintf("decode %s message: %v", e.Type, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// envelope is the wire shape shared by every message type
type envelope struct {
	Type    string                `json:"type"`
	Version string                `json:"version"`
	Data    json.RawMessage       `json:"data"`
	Config  models.Configuration `json:"config"`
}

// Decode interprets a raw broadcast payload. Decoding is pure: the same input
// always yields the same message.
func Decode(payload []byte, contentType string) (Message, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != ContentTypeJSON {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedContentType, contentType)
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, &DecodeError{Err: err}
	}

	switch MessageType(env.Type) {
	case MessageTypeBoardState:
		data := env.Data
		if env.Version == LegacyCardMapVersion {
			data, err = normalizeLegacyDeckCards(data)
			if err != nil {
				return nil, &DecodeError{Type: MessageTypeBoardState, Err: err}
			}
		}

		var state models.BoardStateData
		if err := json.Unmarshal(data, &state); err != nil {
			return nil, &DecodeError{Type: MessageTypeBoardState, Err: err}
		}
		return &BoardStateMessage{Version: env.Version, Data: state, Config: env.Config}, nil

	case MessageTypeGameStart:
		return &GameStartMessage{Config: env.Config}, nil

	case MessageTypeGameEnd:
		return &GameEndMessage{Config: env.Config}, nil

	default:
		return &UnknownMessage{RawType: env.Type, Config: env.Config}, nil
	}
}
