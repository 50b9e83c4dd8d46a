package api

import (
	"context"
	"net/http"
)

// StatsProvider defines the interface for getting service statistics.
type StatsProvider interface {
	GetStats(ctx context.Context) map[string]interface{}
}

// StatsHandler handles stats requests.
type StatsHandler struct {
	statsProvider StatsProvider
	realtime      Realtime
}

// NewStatsHandler creates a new stats handler. realtime may be nil.
func NewStatsHandler(statsProvider StatsProvider, realtime Realtime) *StatsHandler {
	return &StatsHandler{statsProvider: statsProvider, realtime: realtime}
}

// HandleStats handles GET /stats requests.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats := h.statsProvider.GetStats(r.Context())
	if h.realtime != nil {
		hs := h.realtime.Stats()
		stats["hubConnections"] = hs.Connections
		stats["hubRooms"] = hs.Rooms
		stats["hubOnlineUsers"] = hs.OnlineUsers
	}
	writeJSON(w, http.StatusOK, stats)
}
