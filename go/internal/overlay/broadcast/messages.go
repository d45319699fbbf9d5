package broadcast

import "github.com/mcdev12/deckoverlay/go/internal/models"

// MessageType is the discriminant of a broadcast message
type MessageType string

const (
	MessageTypeBoardState MessageType = "board_state"
	MessageTypeGameStart  MessageType = "game_start"
	MessageTypeGameEnd    MessageType = "game_end"
)

// Message is a decoded broadcast message. The set of implementations is closed:
// *BoardStateMessage, *GameStartMessage, *GameEndMessage and *UnknownMessage.
type Message interface {
	Type() MessageType
	// Configuration returns the overlay settings carried by the message, or nil.
	Configuration() models.Configuration
	isMessage()
}

// BoardStateMessage carries a complete board snapshot
type BoardStateMessage struct {
	Version string
	Data    models.BoardStateData
	Config  models.Configuration
}

// GameStartMessage marks the beginning of a game
type GameStartMessage struct {
	Config models.Configuration
}

// GameEndMessage marks the end of a game
type GameEndMessage struct {
	Config models.Configuration
}

// UnknownMessage is a well-formed message with an unrecognized type
type UnknownMessage struct {
	RawType string
	Config  models.Configuration
}

func (m *BoardStateMessage) Type() MessageType { return MessageTypeBoardState }
func (m *GameStartMessage) Type() MessageType  { return MessageTypeGameStart }
func (m *GameEndMessage) Type() MessageType    { return MessageTypeGameEnd }
func (m *UnknownMessage) Type() MessageType    { return MessageType(m.RawType) }

func (m *BoardStateMessage) Configuration() models.Configuration { return m.Config }
func (m *GameStartMessage) Configuration() models.Configuration  { return m.Config }
func (m *GameEndMessage) Configuration() models.Configuration    { return m.Config }
func (m *UnknownMessage) Configuration() models.Configuration    { return m.Config }

func (*BoardStateMessage) isMessage() {}
func (*GameStartMessage) isMessage()  {}
func (*GameEndMessage) isMessage()    {}
func (*UnknownMessage) isMessage()    {}
