package models

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// CardID is a card's database id (dbfId).
type CardID int

// FormatType is the game format a deck is played in.
type FormatType int

const (
	FormatTypeUnknown  FormatType = 0
	FormatTypeWild     FormatType = 1
	FormatTypeStandard FormatType = 2
	FormatTypeClassic  FormatType = 3
)

// String returns the wire enum name of the format.
func (f FormatType) String() string {
	switch f {
	case FormatTypeWild:
		return "FT_WILD"
	case FormatTypeStandard:
		return "FT_STANDARD"
	case FormatTypeClassic:
		return "FT_CLASSIC"
	default:
		return "FT_UNKNOWN"
	}
}

// BoardStateData is the full game state mirrored by the overlay.
// It is replaced wholesale on every update and must be treated as read-only.
type BoardStateData struct {
	Player   PlayerState `json:"player"`
	Opponent PlayerState `json:"opponent"`
}

// PlayerState holds one side of the board.
type PlayerState struct {
	Board     []CardID `json:"board"`
	Hand      []CardID `json:"hand,omitempty"` // owner only
	Hero      *CardID  `json:"hero"`
	HeroPower *CardID  `json:"hero_power"`
	Weapon    *CardID  `json:"weapon"`
	Secrets   []CardID `json:"secrets"`
	Quest     *Quest   `json:"quest"`
	Deck      *Deck    `json:"deck"`
	Fatigue   int      `json:"fatigue"`
}

// Quest is the active quest of a player.
type Quest struct {
	DbfID CardID `json:"dbfId"`
}

// Deck is the deck a player is piloting.
type Deck struct {
	Name   string          `json:"name,omitempty"`
	Format FormatType      `json:"format"`
	Hero   CardID          `json:"hero"`
	Cards  []DeckCardEntry `json:"cards"`
	Size   int             `json:"size"`
}

// DeckCardEntry tracks how many copies of a card remain in the deck.
// On the wire it is the triplet [cardId, current, initial].
type DeckCardEntry struct {
	CardID  CardID
	Current int
	Initial int
}

// MarshalJSON encodes the entry as a triplet.
func (e DeckCardEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]int{int(e.CardID), e.Current, e.Initial})
}

// UnmarshalJSON decodes a triplet, rejecting negative counts.
func (e *DeckCardEntry) UnmarshalJSON(data []byte) error {
	var raw []int
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("deck card entry: %w", err)
	}
	if len(raw) != 3 {
		return fmt.Errorf("deck card entry: expected 3 values, got %d", len(raw))
	}
	if raw[1] < 0 || raw[2] < 0 {
		return fmt.Errorf("deck card entry %d: negative count", raw[0])
	}

	e.CardID = CardID(raw[0])
	e.Current = raw[1]
	e.Initial = raw[2]
	return nil
}

// Configuration is the broadcaster's overlay settings. The intake core passes it
// through untouched, unknown keys and value types included. A nil Configuration
// means the message carried none.
type Configuration map[string]any

// Well-known configuration keys
const (
	ConfigDeckPosition         = "deck_position"
	ConfigHidden               = "hidden" // feature bitmask
	ConfigGameOffsetHorizontal = "game_offset_horizontal"
)

// Text returns the value at key rendered as text, or "" when it is absent or
// not a scalar.
func (c Configuration) Text(key string) string {
	switch v := c[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}
