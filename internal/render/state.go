package render

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"linkfix/internal/cache"
)

// Component actions. A custom id is the action, a state id and optional
// extra parts joined by ":".
const (
	ActionCount     = "count"
	ActionSummarize = "summarize"
	ActionTrailers  = "trailers"
	ActionScreens   = "screens"
	ActionPage      = "page"
	ActionDiscover  = "discover"
	ActionPickMovie = "pick"
	ActionSimilar   = "similar"
	ActionAccount   = "account"
)

const idSep = ":"

// ErrStateExpired is returned when a component's state is gone.
var ErrStateExpired = errors.New("interaction state expired")

// CustomID joins an action, a state id and extra parts.
func CustomID(action, id string, extra ...string) string {
	return strings.Join(append([]string{action, id}, extra...), idSep)
}

// ParseCustomID splits a custom id built by CustomID.
func ParseCustomID(s string) (action, id string, extra []string) {
	parts := strings.Split(s, idSep)
	action = parts[0]
	if len(parts) > 1 {
		id = parts[1]
	}
	if len(parts) > 2 {
		extra = parts[2:]
	}
	return action, id, extra
}

// States keeps component state between a reply and the clicks on it.
type States interface {
	Put(ctx context.Context, v any) (string, error)
}

// StateStore keeps state in the cache under random ids.
type StateStore struct {
	store cache.Store
}

// NewStateStore creates a StateStore backed by store.
func NewStateStore(store cache.Store) *StateStore {
	return &StateStore{store: store}
}

// Put stores v and returns its id.
func (s *StateStore) Put(ctx context.Context, v any) (string, error) {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := cache.SetJSON(ctx, s.store, "state:"+id, v, cache.TTLStatic); err != nil {
		return "", err
	}
	return id, nil
}

// Get decodes the state stored under id into out.
func (s *StateStore) Get(ctx context.Context, id string, out any) error {
	ok, err := cache.GetJSON(ctx, s.store, "state:"+id, out)
	if err != nil {
		return err
	}
	if !ok {
		return ErrStateExpired
	}
	return nil
}

// PagerState lists the pages of a trailer or screenshot pager.
type PagerState struct {
	Items []string `json:"items"`
	// Screenshots render as masked links instead of bare URLs.
	Screenshots bool `json:"screenshots,omitempty"`
}

// SummaryState is what a Summarize button needs.
type SummaryState struct {
	Link        string `json:"link"`
	Description string `json:"description"`
}

// MovieState identifies a movie for Discover More.
type MovieState struct {
	IMDbID string `json:"imdb_id"`
}

// SongState identifies a song for similar song lookups.
type SongState struct {
	Artist string `json:"artist"`
	Title  string `json:"title"`
}
