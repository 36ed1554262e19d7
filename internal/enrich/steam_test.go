package enrich

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func steamServer(t *testing.T) *Steam {
	t.Helper()
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/appdetails":
			assert.Equal(t, "US", r.URL.Query().Get("cc"))
			switch r.URL.Query().Get("appids") {
			case "620":
				_, _ = io.WriteString(w, `{"620": {"success": true, "data": {
					"type": "game",
					"name": "Portal 2",
					"short_description": "A puzzle game.",
					"price_overview": {"initial": 999, "final": 199, "discount_percent": 80},
					"release_date": {"date": "18 Apr, 2011"},
					"developers": ["Valve"],
					"platforms": {"windows": true, "mac": false, "linux": true},
					"categories": [{"description": "Single-player"}, {"description": "Co-op"}],
					"capsule_image": "https://cdn.example/capsule.jpg",
					"screenshots": [{"path_full": "https://cdn.example/1.jpg"}, {"path_full": "https://cdn.example/2.jpg"}],
					"ratings": {"esrb": {"rating": "e10"}}
				}}}`)
			case "10":
				_, _ = io.WriteString(w, `{"10": {"success": true, "data": {
					"type": "game",
					"name": "Adult Game",
					"is_free": true,
					"ratings": {"pegi": {"rating": "18"}},
					"ext_user_account_notice": "Ubisoft Connect (Supports Linking to Steam Account)"
				}}}`)
			case "30":
				_, _ = io.WriteString(w, `{"30": {"success": true, "data": {"type": "dlc", "name": "Soundtrack"}}}`)
			default:
				_, _ = io.WriteString(w, `{"0": {"success": false}}`)
			}
		case "/ISteamApps/GetAppList/v2/":
			_, _ = io.WriteString(w, `{"applist": {"apps": [
				{"appid": 400, "name": "Portal"},
				{"appid": 620, "name": "Portal 2"},
				{"appid": 317400, "name": "Portal Stories: Mel"},
				{"appid": 1, "name": ""}
			]}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	return NewSteam(srv.URL, srv.URL, time.Second, nil, testLogger())
}

func TestSteam_Details(t *testing.T) {
	s := steamServer(t)

	rec, err := s.Details(context.Background(), "620")
	require.NoError(t, err)
	assert.Equal(t, KindGame, rec.Kind)
	assert.Equal(t, "Portal 2", rec.Title)
	assert.Equal(t, "A puzzle game.", rec.Description)
	assert.Equal(t, "https://store.steampowered.com/app/620", rec.URL)

	g := rec.Game
	require.NotNil(t, g)
	assert.Equal(t, "~~$9.99~~ $1.99 (-80%)", g.Price)
	assert.Equal(t, "18 Apr, 2011", g.ReleaseDate)
	assert.Equal(t, "Valve", g.Developer)
	assert.Equal(t, []string{"Windows", "Linux"}, g.Platforms)
	assert.Equal(t, []string{"Single-player", "Co-op"}, g.Tags)
	assert.Len(t, g.Screenshots, 2)
	assert.False(t, g.Adult)
	assert.Empty(t, g.AccountNotice)
}

func TestSteam_DetailsDefaults(t *testing.T) {
	s := steamServer(t)

	rec, err := s.Details(context.Background(), "10")
	require.NoError(t, err)
	g := rec.Game
	assert.Equal(t, "Free", g.Price)
	assert.Equal(t, "No release date", g.ReleaseDate)
	assert.Equal(t, "Unknown", g.Developer)
	assert.True(t, g.Adult, "ratings without an ESRB entry")
	assert.Equal(t, "Requires Ubisoft Connect Account", g.AccountNotice)
	assert.False(t, rec.NSFW, "games are never gated as a whole")
}

func TestSteam_NotAGame(t *testing.T) {
	s := steamServer(t)
	for _, id := range []string{"30", "99"} {
		_, err := s.Details(context.Background(), id)
		assert.ErrorIs(t, err, ErrNotFound, id)
	}
}

func TestSteam_Search(t *testing.T) {
	s := steamServer(t)

	tests := []struct {
		query string
		want  string
	}{
		{"Portal 2", "620"},
		{"portal", "400"},
		{"  PORTAL   stories ", "317400"},
		{"ortal 2", "620"},
		{"Mel!", "317400"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			id, err := s.Search(context.Background(), tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
		})
	}

	_, err := s.Search(context.Background(), "half-life")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAccountLabel(t *testing.T) {
	tests := []struct {
		notice string
		want   string
	}{
		{"EA Account (Supports Linking to Steam Account)", "Requires EA Account"},
		{"Ubisoft Connect (Supports Linking to Steam Account)", "Requires Ubisoft Connect Account"},
		{"Rockstar Games Social Club", "Requires Rockstar Games Social Club"},
		{"2K Account (Supports Linking to Steam Account) ", "Requires 2K Account"},
	}
	for _, tt := range tests {
		t.Run(tt.notice, func(t *testing.T) {
			assert.Equal(t, tt.want, AccountLabel(tt.notice))
		})
	}
}
