package hsreplay_client

import (
	"time"

	"github.com/mcdev12/deckoverlay/go/clients"
)

type HSReplayClient struct {
	*clients.BaseClient
}

// NewHSReplayClient creates an analytics client. An empty baseURL uses BaseURL.
func NewHSReplayClient(baseURL string, timeout time.Duration) *HSReplayClient {
	if baseURL == "" {
		baseURL = BaseURL
	}

	client := &HSReplayClient{
		BaseClient: clients.NewBaseClient(baseURL),
	}

	client.SetHeader(AcceptHeader, "application/json")
	client.SetHeader(UserAgentHeader, UserAgent)
	if timeout > 0 {
		client.SetTimeout(timeout)
	}

	return client
}
