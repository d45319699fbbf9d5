package hsreplay_client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mcdev12/deckoverlay/go/clients"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *HSReplayClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewHSReplayClient(server.URL, 0)
}

func TestCardStatisticsReturnsAllSeries(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != SingleCardStatsEndpoint {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get(CardIDParam); got != "1234" {
			t.Errorf("expected card_id 1234, got %s", got)
		}
		if got := r.URL.Query().Get(GameTypeParam); got != "RANKED_STANDARD" {
			t.Errorf("expected GameType RANKED_STANDARD, got %s", got)
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Write([]byte(`{"series":{"data":{"ALL":[{"x":1}]}}}`))
	})

	payload, err := client.CardStatistics(context.Background(), 1234, "RANKED_STANDARD")
	if err != nil {
		t.Fatalf("CardStatistics: %v", err)
	}
	if string(payload) != `[{"x":1}]` {
		t.Errorf("unexpected payload %s", payload)
	}
}

func TestCardStatisticsRejectsNonSuccess(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})

	_, err := client.CardStatistics(context.Background(), 1, "RANKED_WILD")
	var statusErr *clients.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", statusErr.StatusCode)
	}
}

func TestCardStatisticsRejectsWrongContentType(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html></html>`))
	})

	_, err := client.CardStatistics(context.Background(), 1, "RANKED_WILD")
	if !errors.Is(err, clients.ErrUnexpectedContentType) {
		t.Fatalf("expected ErrUnexpectedContentType, got %v", err)
	}
}

func TestCardStatisticsMissingSeries(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"series":{"data":{}}}`))
	})

	_, err := client.CardStatistics(context.Background(), 1, "RANKED_WILD")
	if !errors.Is(err, ErrMissingSeries) {
		t.Fatalf("expected ErrMissingSeries, got %v", err)
	}
}
