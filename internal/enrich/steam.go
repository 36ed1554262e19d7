package enrich

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"linkfix/internal/cache"
)

// SteamAccent is the embed colour for store pages.
const SteamAccent = 0x1B2838

// Steam reads store pages and searches the app list.
type Steam struct {
	client   *resty.Client
	storeURL string
	apiURL   string
	cache    cache.Store
	log      logrus.FieldLogger
}

type steamApp struct {
	Type             string `json:"type"`
	Name             string `json:"name"`
	ShortDescription string `json:"short_description"`
	IsFree           bool   `json:"is_free"`
	PriceOverview    *struct {
		Initial         int64 `json:"initial"`
		Final           int64 `json:"final"`
		DiscountPercent int64 `json:"discount_percent"`
	} `json:"price_overview"`
	ReleaseDate struct {
		Date string `json:"date"`
	} `json:"release_date"`
	Developers []string        `json:"developers"`
	Platforms  map[string]bool `json:"platforms"`
	Categories []struct {
		Description string `json:"description"`
	} `json:"categories"`
	CapsuleImage string `json:"capsule_image"`
	Screenshots  []struct {
		PathFull string `json:"path_full"`
	} `json:"screenshots"`
	Ratings *struct {
		ESRB *struct {
			Rating string `json:"rating"`
		} `json:"esrb"`
	} `json:"ratings"`
	AccountNotice string `json:"ext_user_account_notice"`
}

type steamListApp struct {
	AppID int64  `json:"appid"`
	Name  string `json:"name"`
}

// NewSteam creates the provider.
func NewSteam(storeURL, apiURL string, timeout time.Duration, store cache.Store, logger logrus.FieldLogger) *Steam {
	if store == nil {
		store = cache.Nop{}
	}
	return &Steam{
		client:   newClient(timeout),
		storeURL: trimBase(storeURL),
		apiURL:   trimBase(apiURL),
		cache:    store,
		log:      logger.WithField("component", "steam"),
	}
}

func (s *Steam) GetName() string { return "steam" }

func (s *Steam) IsEnabled() bool { return true }

// Details returns a game record. Apps that are not games are not found.
func (s *Steam) Details(ctx context.Context, appID string) (*Record, error) {
	app, err := cache.Fetch(ctx, s.cache, cache.Key("enrich.Steam.Details", appID), cache.TTLStatic,
		func(ctx context.Context) (*steamApp, error) {
			var out map[string]struct {
				Success bool      `json:"success"`
				Data    *steamApp `json:"data"`
			}
			u := s.storeURL + "/api/appdetails?appids=" + appID + "&cc=US&l=english"
			if err := getJSON(ctx, s.client, u, &out); err != nil {
				return nil, err
			}
			entry, ok := out[appID]
			if !ok || !entry.Success || entry.Data == nil || entry.Data.Type != "game" {
				return nil, ErrNotFound
			}
			return entry.Data, nil
		})
	if err != nil {
		return nil, err
	}
	return app.record(appID), nil
}

func (a *steamApp) record(appID string) *Record {
	g := &Game{
		AppID:       appID,
		Price:       a.price(),
		ReleaseDate: a.ReleaseDate.Date,
		Developer:   "Unknown",
		Capsule:     a.CapsuleImage,
		Adult:       a.Ratings != nil && (a.Ratings.ESRB == nil || strings.EqualFold(a.Ratings.ESRB.Rating, "ao")),
	}
	if g.ReleaseDate == "" {
		g.ReleaseDate = "No release date"
	}
	if len(a.Developers) > 0 && a.Developers[0] != "" {
		g.Developer = a.Developers[0]
	}
	for _, p := range []string{"windows", "mac", "linux"} {
		if a.Platforms[p] {
			g.Platforms = append(g.Platforms, strings.ToUpper(p[:1])+p[1:])
		}
	}
	for _, c := range a.Categories {
		g.Tags = append(g.Tags, c.Description)
	}
	for _, sc := range a.Screenshots {
		if sc.PathFull != "" {
			g.Screenshots = append(g.Screenshots, sc.PathFull)
		}
	}
	if a.AccountNotice != "" {
		g.AccountNotice = AccountLabel(a.AccountNotice)
	}
	return &Record{
		Kind:        KindGame,
		URL:         "https://store.steampowered.com/app/" + appID,
		Title:       a.Name,
		Description: a.ShortDescription,
		Accent:      SteamAccent,
		Game:        g,
	}
}

func (a *steamApp) price() string {
	p := a.PriceOverview
	if a.IsFree || p == nil {
		return "Free"
	}
	final := fmt.Sprintf("$%.2f", float64(p.Final)/100)
	if p.DiscountPercent > 0 {
		return fmt.Sprintf("~~$%.2f~~ %s (-%d%%)", float64(p.Initial)/100, final, p.DiscountPercent)
	}
	return final
}

var parenGroup = regexp.MustCompile(`\s*\([^)]*\)`)

// AccountLabel turns a third-party account notice into a button label,
// for example "Requires EA Account".
func AccountLabel(notice string) string {
	notice = strings.TrimSpace(notice)
	core := strings.ToLower(parenGroup.ReplaceAllString(notice, ""))
	label := parenGroup.ReplaceAllStringFunc(notice, func(m string) string {
		if strings.HasSuffix(core, "account") {
			return m
		}
		return " Account" + m
	})
	return "Requires " + strings.ReplaceAll(label, " (Supports Linking to Steam Account)", "")
}

var searchJunk = regexp.MustCompile(`[^\w\s-]`)

func normalizeName(s string) string {
	return strings.Join(strings.Fields(searchJunk.ReplaceAllString(strings.ToLower(s), "")), " ")
}

func (s *Steam) appList(ctx context.Context) ([]steamListApp, error) {
	return cache.Fetch(ctx, s.cache, cache.Key("enrich.Steam.appList"), cache.TTLStatic,
		func(ctx context.Context) ([]steamListApp, error) {
			var out struct {
				AppList struct {
					Apps []steamListApp `json:"apps"`
				} `json:"applist"`
			}
			if err := getJSON(ctx, s.client, s.apiURL+"/ISteamApps/GetAppList/v2/", &out); err != nil {
				return nil, err
			}
			if len(out.AppList.Apps) == 0 {
				return nil, ErrNotFound
			}
			return out.AppList.Apps, nil
		})
}

// Search returns the app id that best matches query. An exact name wins;
// otherwise the shortest name containing the query.
func (s *Steam) Search(ctx context.Context, query string) (string, error) {
	apps, err := s.appList(ctx)
	if err != nil {
		return "", err
	}
	q := normalizeName(query)
	if q == "" {
		return "", ErrNotFound
	}

	var best int64
	bestRatio := 0.0
	for _, a := range apps {
		if a.Name == "" {
			continue
		}
		name := normalizeName(a.Name)
		if name == q {
			return formatInt(a.AppID), nil
		}
		if strings.Contains(name, q) {
			if r := float64(len(q)) / float64(len(name)); r > bestRatio {
				bestRatio, best = r, a.AppID
			}
		}
	}
	if best == 0 {
		return "", ErrNotFound
	}
	return formatInt(best), nil
}
