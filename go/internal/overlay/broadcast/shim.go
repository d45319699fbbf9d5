package broadcast

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"

	"github.com/mcdev12/deckoverlay/go/internal/models"
)

// LegacyCardMapVersion is the payload version whose player deck may encode
// cards as {"<cardId>": [current, initial]} instead of triplets.
const LegacyCardMapVersion = "1.0"

// normalizeLegacyDeckCards rewrites data.player.deck.cards from the legacy map
// shape into the triplet list, ordered by ascending card id. Payloads already in
// list shape, or without a player deck, are returned unchanged.
func normalizeLegacyDeckCards(data json.RawMessage) (json.RawMessage, error) {
	if isNull(data) {
		return data, nil
	}

	var state map[string]json.RawMessage
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	if isNull(state["player"]) {
		return data, nil
	}

	var player map[string]json.RawMessage
	if err := json.Unmarshal(state["player"], &player); err != nil {
		return nil, fmt.Errorf("player: %w", err)
	}
	if isNull(player["deck"]) {
		return data, nil
	}

	var deck map[string]json.RawMessage
	if err := json.Unmarshal(player["deck"], &deck); err != nil {
		return nil, fmt.Errorf("player deck: %w", err)
	}
	cards := bytes.TrimSpace(deck["cards"])
	if len(cards) == 0 || cards[0] != '{' {
		return data, nil
	}

	entries, err := legacyCardEntries(cards)
	if err != nil {
		return nil, fmt.Errorf("player deck cards: %w", err)
	}

	if deck["cards"], err = json.Marshal(entries); err != nil {
		return nil, err
	}
	if player["deck"], err = json.Marshal(deck); err != nil {
		return nil, err
	}
	if state["player"], err = json.Marshal(player); err != nil {
		return nil, err
	}
	return json.Marshal(state)
}

func legacyCardEntries(cards json.RawMessage) ([]models.DeckCardEntry, error) {
	var legacy map[string][]int
	if err := json.Unmarshal(cards, &legacy); err != nil {
		return nil, err
	}

	entries := make([]models.DeckCardEntry, 0, len(legacy))
	for key, counts := range legacy {
		id, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("card id %q: %w", key, err)
		}
		if len(counts) != 2 {
			return nil, fmt.Errorf("card %d: expected [current, initial], got %d values", id, len(counts))
		}
		entries = append(entries, models.DeckCardEntry{
			CardID:  models.CardID(id),
			Current: counts[0],
			Initial: counts[1],
		})
	}

	slices.SortFunc(entries, func(a, b models.DeckCardEntry) int {
		return int(a.CardID) - int(b.CardID)
	})
	return entries, nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
