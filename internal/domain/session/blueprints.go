package session

import (
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/deepdev237/LivePrint/internal/domain/protocol"
	"github.com/deepdev237/LivePrint/internal/infrastructure/logging"
)

type trackedBlueprint struct {
	notice   protocol.BlueprintNotice
	openedAt float64
	users    map[string]struct{}
}

// Blueprint is a blueprint that at least one participant has open.
type Blueprint struct {
	ID       uuid.UUID `json:"id"`
	Path     string    `json:"path"`
	Name     string    `json:"name"`
	OpenedAt float64   `json:"opened_at"`
	Users    []string  `json:"users"`
}

// MatchesFilters reports whether path passes the blueprint filters. No
// filters admit everything.
func (h *Hub) MatchesFilters(path string) bool {
	h.mu.RLock()
	filters := h.filters
	h.mu.RUnlock()

	if len(filters) == 0 {
		return true
	}
	for _, pattern := range filters {
		if ok, _ := doublestar.Match(pattern, path); ok {
			return true
		}
	}
	return false
}

func (h *Hub) handleBlueprint(from string, msg protocol.Message) error {
	notice, err := protocol.DecodeBlueprintNotice(msg.Payload)
	if err != nil {
		h.reject(from, "decode")
		return err
	}
	if err := protocol.ValidateBlueprintNotice(notice); err != nil {
		h.reject(from, "validation")
		return err
	}
	if !h.MatchesFilters(notice.Path) {
		h.countDrop("filtered")
		h.log.Debug("blueprint outside filters", zap.String("path", notice.Path))
		return ErrFiltered
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	tracked, ok := h.blueprints[notice.BlueprintID]
	switch msg.Type {
	case protocol.MessageBlueprintOpened:
		if !ok {
			tracked = &trackedBlueprint{notice: notice, openedAt: h.now(), users: make(map[string]struct{})}
			h.blueprints[notice.BlueprintID] = tracked
		}
		tracked.users[from] = struct{}{}
		h.log.Info("blueprint opened", logging.User(from), zap.String("path", notice.Path))
	case protocol.MessageBlueprintClosed:
		if ok {
			delete(tracked.users, from)
			if len(tracked.users) == 0 {
				delete(h.blueprints, notice.BlueprintID)
			}
		}
		h.log.Info("blueprint closed", logging.User(from), zap.String("path", notice.Path))
	}
	return nil
}

// Blueprints lists the blueprints currently open, ordered by path.
func (h *Hub) Blueprints() []Blueprint {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Blueprint, 0, len(h.blueprints))
	for bpID, tracked := range h.blueprints {
		users := make([]string, 0, len(tracked.users))
		for u := range tracked.users {
			users = append(users, u)
		}
		sort.Strings(users)
		out = append(out, Blueprint{
			ID:       bpID,
			Path:     tracked.notice.Path,
			Name:     tracked.notice.Name,
			OpenedAt: tracked.openedAt,
			Users:    users,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
