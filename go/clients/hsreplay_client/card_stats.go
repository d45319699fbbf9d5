package hsreplay_client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/mcdev12/deckoverlay/go/internal/models"
)

// ErrMissingSeries is returned when a response has no series.data.ALL field
var ErrMissingSeries = errors.New("response has no series.data.ALL")

type CardStatsResponse struct {
	Series struct {
		Data struct {
			All json.RawMessage `json:"ALL"`
		} `json:"data"`
	} `json:"series"`
}

// CardStatistics fetches the over-time statistics of a card in one game type
// bucket and returns the series.data.ALL payload.
func (c *HSReplayClient) CardStatistics(ctx context.Context, cardID models.CardID, bucket string) (json.RawMessage, error) {
	query := url.Values{}
	query.Set(CardIDParam, strconv.Itoa(int(cardID)))
	query.Set(GameTypeParam, bucket)

	body, err := c.GetJSON(ctx, SingleCardStatsEndpoint+"?"+query.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to get card statistics: %w", err)
	}

	var response CardStatsResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	all := response.Series.Data.All
	if len(all) == 0 || string(all) == "null" {
		return nil, ErrMissingSeries
	}

	return all, nil
}
