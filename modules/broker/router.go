package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	domain "github.com/example/chat-broker/domain/chat"
	"github.com/example/chat-broker/modules/directory"
)

const genericServerError = "Internal Server Error"

// Router delivers inbound frames to the sender's group.
type Router struct {
	registry  *Registry
	directory Directory
	now       func() time.Time
	logger    *slog.Logger

	// onFailure receives members whose delivery failed.
	onFailure func(ctx context.Context, c *Conn)

	// onPersisted runs after a message of roomID is stored and before it
	// is delivered.
	onPersisted func(ctx context.Context, roomID string) error
}

// NewRouter creates a Router over registry.
func NewRouter(registry *Registry, dir Directory, logger *slog.Logger) *Router {
	return &Router{
		registry:  registry,
		directory: dir,
		now:       time.Now,
		logger:    logger,
	}
}

// Route handles one frame received from sender on a broadcast endpoint.
// Validation and persistence failures are answered in-band; the returned
// error is only set when replying to the sender failed.
func (r *Router) Route(ctx context.Context, sender *Conn, payload []byte) error {
	ep := sender.Endpoint
	if !ep.Stamp {
		r.Deliver(ctx, sender.Key(), payload)
		return nil
	}

	now := r.now()
	out, content, discard, err := stamp(ep, payload, now)
	if err != nil {
		var invalidErr *InvalidRequestError
		if errors.As(err, &invalidErr) {
			return sender.Reply(errorFrame(ErrorCodeValidation, invalidErr.Reason))
		}
		r.logger.Error("failed to stamp message", "endpoint", ep.Name, "conn", sender.ID, "error", err)
		return sender.Reply(errorFrame(ErrorCodeServer, genericServerError))
	}
	if discard {
		return nil
	}

	if ep.Persist {
		roomID, _ := sender.Key().RoomID()
		_, err := r.directory.PersistMessage(ctx, directory.PersistMessageRequest{
			AuthorID:  sender.Identity.UserID,
			RoomID:    roomID,
			Content:   content,
			Timestamp: now,
		})
		if err != nil {
			r.logger.Error("failed to persist message",
				"room", roomID, "user_id", sender.Identity.UserID, "error", err)
			return sender.Reply(errorFrame(ErrorCodeServer, genericServerError))
		}
		if r.onPersisted != nil {
			if err := r.onPersisted(ctx, roomID); err != nil {
				r.logger.Warn("failed to invalidate history", "room", roomID, "error", err)
			}
		}
	}

	r.Deliver(ctx, sender.Key(), out)
	return nil
}

// Deliver queues data for every member of the group at call time.
// A failed member does not stop delivery to the others.
func (r *Router) Deliver(ctx context.Context, key GroupKey, data []byte) {
	members := r.registry.MembersOf(key)
	if len(members) == 0 {
		return
	}

	var failed []*Conn
	for _, m := range members {
		err := m.Send(data)
		if err == nil || errors.Is(err, ErrConnClosed) {
			continue
		}
		r.logger.Warn("delivery failed", "group", key.Scope, "conn", m.ID, "error", err)
		failed = append(failed, m)
	}

	if r.onFailure == nil {
		return
	}
	for _, m := range failed {
		r.onFailure(ctx, m)
	}
}

// stamp validates a JSON object payload and adds the server timestamp.
// It returns the rewritten payload, the content field and whether the
// payload must be dropped.
func stamp(ep Endpoint, payload []byte, now time.Time) ([]byte, string, bool, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil || fields == nil {
		return nil, "", false, invalid("message must be a JSON object")
	}

	var content string
	raw, hasContent := fields["content"]
	if hasContent {
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || raw[0] != '"' {
			return nil, "", false, invalid("content must be a string")
		}
		if err := json.Unmarshal(raw, &content); err != nil {
			return nil, "", false, invalid("content must be a string")
		}
		if content == "" && ep.DiscardEmpty {
			return nil, "", true, nil
		}
		if utf8.RuneCountInString(content) > domain.ContentLength {
			return nil, "", false, invalid(fmt.Sprintf("content must be at most %d characters", domain.ContentLength))
		}
	} else if ep.Persist {
		return nil, "", false, invalid("content is required")
	}

	ts, err := json.Marshal(domain.FormatTimestamp(now))
	if err != nil {
		return nil, "", false, err
	}
	return appendField(payload, "timestamp", ts, len(fields) == 0), content, false, nil
}

// appendField adds "name":value before the closing brace of a JSON object,
// keeping the client's fields byte for byte. A duplicate name sent by the
// client is overridden by the appended one for standard decoders.
func appendField(object []byte, name string, value json.RawMessage, empty bool) []byte {
	object = bytes.TrimSpace(object)
	body := bytes.TrimSpace(object[:len(object)-1])

	out := make([]byte, 0, len(object)+len(name)+len(value)+4)
	out = append(out, body...)
	if !empty {
		out = append(out, ',')
	}
	out = append(out, '"')
	out = append(out, name...)
	out = append(out, '"', ':')
	out = append(out, value...)
	return append(out, '}')
}
