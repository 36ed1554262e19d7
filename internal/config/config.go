package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// PlatformConfig is the default behaviour for one platform key. Guilds and
// users override Enabled through the settings store.
type PlatformConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	URL           string `mapstructure:"url"`
	BuildEmbeds   bool   `mapstructure:"build_embeds"`
	BlockTracking bool   `mapstructure:"block_tracking"`
}

// Endpoints are the upstream base URLs. They are configurable so tests can
// point providers at local servers.
type Endpoints struct {
	QuickVids    string `mapstructure:"quickvids"`
	WhoShared    string `mapstructure:"who_shared"`
	InstagramAPI string `mapstructure:"instagram_api"`
	Cinemeta     string `mapstructure:"cinemeta"`
	CinemetaLive string `mapstructure:"cinemeta_live"`
	TMDB         string `mapstructure:"tmdb"`
	Radarr       string `mapstructure:"radarr"`
	SongLink     string `mapstructure:"songlink"`
	LastFM       string `mapstructure:"lastfm"`
	SteamStore   string `mapstructure:"steam_store"`
	SteamAPI     string `mapstructure:"steam_api"`
	OpenAI       string `mapstructure:"openai"`
}

// Config holds all configuration for the bot.
// Values are read by viper from config.yaml or environment variables.
type Config struct {
	BotToken        string `mapstructure:"bot_token"`
	OwnerID         string `mapstructure:"owner_id"`
	DatabasePath    string `mapstructure:"database_path"`
	CachePath       string `mapstructure:"cache_path"`
	LogLevel        string `mapstructure:"log_level"`
	LogJSON         bool   `mapstructure:"log_json"`
	HealthAddr      string `mapstructure:"health_addr"`
	HealthchecksURL string `mapstructure:"healthchecks_url"`

	HTTPTimeout   time.Duration `mapstructure:"http_timeout"`
	SuppressDelay time.Duration `mapstructure:"suppress_delay"`
	WarningWindow time.Duration `mapstructure:"warning_window"`

	QuickVidsToken       string `mapstructure:"quickvids_token"`
	TMDBToken            string `mapstructure:"tmdb_token"`
	LastFMToken          string `mapstructure:"lastfm_token"`
	OpenAIToken          string `mapstructure:"openai_token"`
	InstagramAPIUser     string `mapstructure:"instagram_api_user"`
	InstagramAPIPassword string `mapstructure:"instagram_api_password"`
	InstagramSessionID   string `mapstructure:"instagram_session_id"`

	Endpoints Endpoints                 `mapstructure:"endpoints"`
	Platforms map[string]PlatformConfig `mapstructure:"platforms"`
	Tracking  map[string]PlatformConfig `mapstructure:"tracking"`
}

// Platform returns the defaults for key, or a disabled zero value when the
// key is unknown.
func (c Config) Platform(key string) PlatformConfig {
	return c.Platforms[key]
}

var platformDefaults = map[string]PlatformConfig{
	"tiktok":    {Enabled: true, URL: "tnktok.com"},
	"instagram": {Enabled: true, URL: "ddinstagram.com", BlockTracking: true},
	"reddit":    {Enabled: true, URL: "rxddit.com", BuildEmbeds: true},
	"twitter":   {Enabled: true, URL: "fxtwitter.com"},
	"bluesky":   {Enabled: true, URL: "fxbsky.app"},
	"imdb":      {Enabled: true},
	"songs":     {Enabled: true},
	"steam":     {Enabled: true},
}

var trackingDefaults = []string{"tiktok", "instagram"}

// New prepares a viper instance that searches paths for config.yaml and
// falls back to environment variables for every known key.
func New(paths ...string) *viper.Viper {
	v := viper.New()
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("bot_token", "")
	v.SetDefault("owner_id", "")
	v.SetDefault("database_path", "linkfix_data.db")
	v.SetDefault("cache_path", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
	v.SetDefault("health_addr", ":8080")
	v.SetDefault("healthchecks_url", "")
	v.SetDefault("http_timeout", 5*time.Second)
	v.SetDefault("suppress_delay", 750*time.Millisecond)
	v.SetDefault("warning_window", 20*time.Second)

	for _, k := range []string{"quickvids_token", "tmdb_token", "lastfm_token", "openai_token",
		"instagram_api_user", "instagram_api_password", "instagram_session_id"} {
		v.SetDefault(k, "")
	}
	// IG_API_* and INSTAGRAM_SESSION_ID are the historical variable names.
	_ = v.BindEnv("instagram_api_user", "INSTAGRAM_API_USER", "IG_API_USERNAME")
	_ = v.BindEnv("instagram_api_password", "INSTAGRAM_API_PASSWORD", "IG_API_PASSWORD")

	v.SetDefault("endpoints.quickvids", "https://api.quickvids.win")
	v.SetDefault("endpoints.who_shared", "https://who-shared.vercel.app")
	v.SetDefault("endpoints.instagram_api", "https://ketoinstaapi.stkc.win")
	v.SetDefault("endpoints.cinemeta", "https://v3-cinemeta.strem.io")
	v.SetDefault("endpoints.cinemeta_live", "https://cinemeta-live.strem.io")
	v.SetDefault("endpoints.tmdb", "https://api.themoviedb.org")
	v.SetDefault("endpoints.radarr", "https://api.radarr.video")
	v.SetDefault("endpoints.songlink", "https://api.song.link")
	v.SetDefault("endpoints.lastfm", "https://ws.audioscrobbler.com")
	v.SetDefault("endpoints.steam_store", "https://store.steampowered.com")
	v.SetDefault("endpoints.steam_api", "https://api.steampowered.com")
	v.SetDefault("endpoints.openai", "https://api.openai.com")

	for key, p := range platformDefaults {
		v.SetDefault("platforms."+key+".enabled", p.Enabled)
		v.SetDefault("platforms."+key+".url", p.URL)
		v.SetDefault("platforms."+key+".build_embeds", p.BuildEmbeds)
		v.SetDefault("platforms."+key+".block_tracking", p.BlockTracking)
	}
	for _, key := range trackingDefaults {
		v.SetDefault("tracking."+key+".enabled", true)
	}
	return v
}

// Load reads the config file (if any) and decodes all keys.
func Load(v *viper.Viper) (Config, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return decode(v)
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if cfg.BotToken == "" {
		return Config{}, fmt.Errorf("BOT_TOKEN is not set")
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 5 * time.Second
	}
	return cfg, nil
}

// Watch re-decodes the config whenever the file changes and hands the new
// value to onChange. Decode failures keep the previous config.
func Watch(v *viper.Viper, logger logrus.FieldLogger, onChange func(Config)) {
	log := logger.WithField("component", "config")
	v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := decode(v)
		if err != nil {
			log.WithError(err).Warn("Ignoring invalid config reload")
			return
		}
		log.WithField("file", e.Name).Info("Config reloaded")
		onChange(cfg)
	})
	v.WatchConfig()
}
