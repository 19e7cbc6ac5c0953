package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/davidgodzsak/timelimitd/internal/storage"
	"github.com/rs/zerolog"
)

// defaultBlockListLimit caps block log queries that set no explicit limit.
const defaultBlockListLimit = 100

// BlockHandler serves the block event log.
type BlockHandler struct {
	blocks storage.BlockStore
	logger zerolog.Logger
}

// NewBlockHandler creates a new block log handler.
func NewBlockHandler(blocks storage.BlockStore, logger zerolog.Logger) *BlockHandler {
	return &BlockHandler{
		blocks: blocks,
		logger: logger.With().Str("handler", "blocks").Logger(),
	}
}

// List returns block events, newest first. Query parameters narrow the
// result: siteId and limitType match exactly, since and until (RFC 3339)
// bound the timestamp inclusively, limit and offset paginate.
func (h *BlockHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := storage.BlockEventFilter{
		SiteID: q.Get("siteId"),
		Limit:  defaultBlockListLimit,
	}

	if raw := q.Get("limitType"); raw != "" {
		switch lt := storage.LimitType(raw); lt {
		case storage.LimitTime, storage.LimitOpens, storage.LimitBoth:
			filter.LimitType = lt
		default:
			writeError(w, http.StatusBadRequest, "limitType must be time, opens or both")
			return
		}
	}

	if raw := q.Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be an RFC 3339 timestamp")
			return
		}
		filter.StartTime = &t
	}

	if raw := q.Get("until"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "until must be an RFC 3339 timestamp")
			return
		}
		filter.EndTime = &t
	}

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = n
	}

	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		filter.Offset = n
	}

	events, err := h.blocks.Query(r.Context(), filter)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to query block events")
		writeError(w, http.StatusInternalServerError, "Failed to retrieve block events")
		return
	}
	if events == nil {
		events = []storage.BlockEvent{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}
