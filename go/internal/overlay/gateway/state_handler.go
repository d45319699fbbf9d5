package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"connectrpc.com/connect"
	"github.com/mcdev12/deckoverlay/go/internal/models"
	"github.com/mcdev12/deckoverlay/go/internal/overlay/board"
	"github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// OverlayServiceName is the Connect service exposing the board snapshot
	OverlayServiceName = "deckoverlay.v1.OverlayService"
	// GetSnapshotProcedure is the full procedure path of GetSnapshot
	GetSnapshotProcedure = "/" + OverlayServiceName + "/GetSnapshot"
)

// StateProvider exposes the current overlay state
type StateProvider interface {
	Snapshot() board.State
}

// StatisticsProvider resolves card statistics
type StatisticsProvider interface {
	FetchStatistics(ctx context.Context, cardID models.CardID, format models.FormatType) (json.RawMessage, error)
}

// StateHandler serves the read-only overlay snapshot and card statistics
type StateHandler struct {
	state StateProvider
	stats StatisticsProvider
}

// NewStateHandler creates a new state handler
func NewStateHandler(state StateProvider, stats StatisticsProvider) *StateHandler {
	return &StateHandler{
		state: state,
		stats: stats,
	}
}

// RegisterStateRoutes registers the REST and Connect routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/overlay/state", h.HandleGetState)
	mux.HandleFunc("GET /api/cards/{id}/stats", h.HandleGetCardStats)
	mux.Handle(GetSnapshotProcedure, connect.NewUnaryHandler(GetSnapshotProcedure, h.GetSnapshot))
}

// HandleGetState returns the current snapshot as JSON
func (h *StateHandler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.state.Snapshot())
}

// HandleGetCardStats returns the cached statistics for a card.
// The format query parameter is the numeric format type; it defaults to unknown.
func (h *StateHandler) HandleGetCardStats(w http.ResponseWriter, r *http.Request) {
	cardID, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || cardID <= 0 {
		http.Error(w, "invalid card id", http.StatusBadRequest)
		return
	}

	format := models.FormatTypeUnknown
	if raw := r.URL.Query().Get("format"); raw != "" {
		f, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "invalid format", http.StatusBadRequest)
			return
		}
		format = models.FormatType(f)
	}

	payload, err := h.stats.FetchStatistics(r.Context(), models.CardID(cardID), format)
	if err != nil {
		log.Error().
			Err(err).
			Int("card_id", cardID).
			Str("format", format.String()).
			Msg("failed to fetch card statistics")
		http.Error(w, "statistics unavailable", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(payload)
}

// GetSnapshot is the Connect unary handler for the board snapshot
func (h *StateHandler) GetSnapshot(ctx context.Context, req *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error) {
	snapshot, err := snapshotStruct(h.state.Snapshot())
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(snapshot), nil
}

func snapshotStruct(state board.State) (*structpb.Struct, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("convert snapshot: %w", err)
	}
	return s, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
