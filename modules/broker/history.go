package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	domain "github.com/example/chat-broker/domain/chat"
	"github.com/example/chat-broker/modules/directory"
	"golang.org/x/sync/singleflight"
)

// MaxChunkSize is the largest history page a client may request.
const MaxChunkSize = 1000

// HistoryRequest is the chat-history request frame.
type HistoryRequest struct {
	Timestamp *int64  `json:"timestamp"`
	ChunkSize *int    `json:"chunk_size"`
	Direction *string `json:"direction"`
}

// historyQuery is a validated HistoryRequest.
type historyQuery struct {
	reference time.Time
	chunkSize int
	direction domain.Direction
}

// History answers paginated history requests.
type History struct {
	directory Directory
	cache     PageCache
	group     singleflight.Group
	logger    *slog.Logger
}

// NewHistory creates a History engine. A nil cache disables caching.
func NewHistory(dir Directory, cache PageCache, logger *slog.Logger) *History {
	if cache == nil {
		cache = noopCache{}
	}
	return &History{
		directory: dir,
		cache:     cache,
		logger:    logger,
	}
}

// Page returns one page of roomID's history for a request frame.
// Invalid requests return an *InvalidRequestError.
func (h *History) Page(ctx context.Context, roomID string, payload []byte) ([]domain.HistoryEntry, error) {
	q, err := parseHistoryRequest(payload)
	if err != nil {
		return nil, err
	}

	gen, err := h.cache.Generation(ctx, roomID)
	if err != nil {
		h.logger.Warn("history cache generation read failed", "room", roomID, "error", err)
		return h.load(ctx, roomID, q)
	}

	key := pageKey(roomID, gen, q.direction, q.reference, q.chunkSize)
	val, err, _ := h.group.Do(key, func() (any, error) {
		page, found, err := h.cache.Get(ctx, key)
		if err != nil {
			h.logger.Warn("history cache read failed", "key", key, "error", err)
		}
		if found {
			return page, nil
		}

		page, err = h.load(ctx, roomID, q)
		if err != nil {
			return nil, err
		}
		if err := h.cache.Set(ctx, key, page); err != nil {
			h.logger.Warn("history cache write failed", "key", key, "error", err)
		}
		return page, nil
	})
	if err != nil {
		return nil, err
	}
	return val.([]domain.HistoryEntry), nil
}

func (h *History) load(ctx context.Context, roomID string, q historyQuery) ([]domain.HistoryEntry, error) {
	resp, err := h.directory.QueryMessages(ctx, directory.QueryMessagesRequest{
		RoomID:    roomID,
		Reference: q.reference,
		ChunkSize: q.chunkSize,
		Direction: q.direction,
	})
	if err != nil {
		return nil, err
	}
	if resp.Messages == nil {
		return []domain.HistoryEntry{}, nil
	}
	return resp.Messages, nil
}

// Invalidate retires every cached page of roomID. Loads already in flight
// store their pages under the previous generation.
func (h *History) Invalidate(ctx context.Context, roomID string) error {
	return h.cache.InvalidateRoom(ctx, roomID)
}

func parseHistoryRequest(payload []byte) (historyQuery, error) {
	var req HistoryRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return historyQuery{}, invalid("malformed history request")
	}
	if req.Timestamp == nil {
		return historyQuery{}, invalid("timestamp is required")
	}
	if req.ChunkSize == nil || *req.ChunkSize <= 0 {
		return historyQuery{}, invalid("chunk_size must be a positive integer")
	}
	if *req.ChunkSize > MaxChunkSize {
		return historyQuery{}, invalid(fmt.Sprintf("chunk_size must be at most %d", MaxChunkSize))
	}

	direction := domain.DirectionOlder
	if req.Direction != nil {
		direction = domain.Direction(*req.Direction)
		if !direction.Valid() {
			return historyQuery{}, invalid(fmt.Sprintf("unknown direction %q", *req.Direction))
		}
	}

	// The reference keeps whole seconds only.
	return historyQuery{
		reference: time.Unix(*req.Timestamp/1000, 0).UTC(),
		chunkSize: *req.ChunkSize,
		direction: direction,
	}, nil
}
