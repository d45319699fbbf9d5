package hsreplay_client

const (
	// Base URL
	BaseURL = "https://hsreplay.net"

	// API Endpoints
	SingleCardStatsEndpoint = "/analytics/query/single_card_stats_over_time/"

	// Query parameters
	CardIDParam   = "card_id"
	GameTypeParam = "GameType"

	// Headers
	AcceptHeader    = "Accept"
	UserAgentHeader = "User-Agent"
	UserAgent       = "deckoverlay"
)
