package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"linkfix/internal/bot"
	"linkfix/internal/cache"
	"linkfix/internal/config"
	"linkfix/internal/enrich"
	"linkfix/internal/fixer"
	"linkfix/internal/health"
	"linkfix/internal/imaging"
	"linkfix/internal/recovery"
	"linkfix/internal/registry"
	"linkfix/internal/render"
	"linkfix/internal/resolver"
	"linkfix/internal/scheduler"
	"linkfix/internal/settings"
)

// Messages kept in the state cache so edits and deletes can be recovered.
const stateMessages = 500

func configureLogger(log *logrus.Logger, cfg config.Config) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithError(err).Warnf("Unknown log level %q, using info", cfg.LogLevel)
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	if cfg.LogJSON {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

func defaults(cfg config.Config) settings.Defaults {
	d := settings.Defaults{Enabled: map[string]bool{}, Tracking: map[string]bool{}}
	for k, p := range cfg.Platforms {
		d.Enabled[k] = p.Enabled
	}
	for k, p := range cfg.Tracking {
		d.Tracking[k] = p.Enabled
	}
	return d
}

func main() {
	log := logrus.New()

	// Load .env
	_ = godotenv.Load()
	v := config.New(".", "./config")
	cfg, err := config.Load(v)
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	configureLogger(log, cfg)
	if cfg.OwnerID == "" {
		log.Warn("OWNER_ID is not set; owner-only command will be disabled")
	}

	store, err := settings.Open(cfg.DatabasePath, defaults(cfg), log)
	if err != nil {
		log.WithError(err).Fatal("DB init error")
	}
	defer store.Close()

	kv, err := cache.NewBadgerStore(cfg.CachePath, log)
	if err != nil {
		log.WithError(err).Fatal("Cache init error")
	}
	defer kv.Close()

	timeout := cfg.HTTPTimeout
	ep := cfg.Endpoints

	quickvids := enrich.NewQuickVids(ep.QuickVids, cfg.QuickVidsToken, timeout, kv, log)
	og := enrich.NewOpenGraph(timeout)
	instagram := enrich.NewInstagram(ep.InstagramAPI, cfg.InstagramAPIUser, cfg.InstagramAPIPassword, cfg.InstagramSessionID, timeout, kv, log)
	composer := imaging.NewComposer(timeout, log)
	reddit := enrich.NewReddit(timeout, composer, kv, log)
	cinemeta := enrich.NewCinemeta(ep.Cinemeta, ep.CinemetaLive, timeout, kv, log)
	tmdb := enrich.NewTMDB(ep.TMDB, cfg.TMDBToken, timeout, kv)
	trakt := enrich.NewTrakt(timeout, kv)
	radarr := enrich.NewRadarr(ep.Radarr, timeout, kv, log)
	songlink := enrich.NewSongLink(ep.SongLink, timeout, kv)
	lastfm := enrich.NewLastFM(ep.LastFM, cfg.LastFMToken, timeout, kv, log)
	steam := enrich.NewSteam(ep.SteamStore, ep.SteamAPI, timeout, kv, log)
	summarizer := enrich.NewSummarizer(ep.OpenAI, cfg.OpenAIToken, timeout, kv, log)

	res := resolver.New(timeout, kv, log)
	movies := fixer.NewMovies(fixer.MovieSources{TMDBClient: tmdb, TraktClient: trakt}, cinemeta)
	handlers := map[registry.Platform]fixer.Handler{
		registry.TikTok:    fixer.NewTikTok(res, resolver.NewWhoShared(ep.WhoShared, timeout, kv, log), quickvids, og, summarizer.IsEnabled()),
		registry.Instagram: fixer.NewInstagram(res, instagram),
		registry.Reddit:    fixer.NewReddit(res, reddit),
		registry.Twitter:   fixer.NewRewrite("x.com", "twitter.com"),
		registry.Bluesky:   fixer.NewRewrite("bsky.app"),
		registry.IMDb:      movies,
		registry.TMDB:      movies,
		registry.Trakt:     movies,
		registry.Songs:     fixer.NewSongs(songlink),
		registry.Steam:     fixer.NewSteam(fixer.LookupFunc(steam.Details)),
	}

	states := render.NewStateStore(kv)
	builder := render.NewBuilder(imaging.NewPalette(timeout, kv, log), states, lastfm.IsEnabled(), log)
	counter := settings.NewCounter(store, log)

	dg, err := discordgo.New("Bot " + cfg.BotToken)
	if err != nil {
		log.WithError(err).Fatal("Error creating Discord session")
	}
	dg.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent | discordgo.IntentsGuilds
	dg.State.MaxMessageCount = stateMessages

	orchestrator := fixer.New(fixer.Options{
		Registry: registry.Default(),
		Handlers: handlers,
		Renderer: builder,
		Settings: store,
		Counter:  counter,
		Sender:   bot.NewSender(dg, log),
		Config:   cfg,
		Logger:   log,
	})

	b := bot.New(bot.Deps{
		Config:     cfg,
		Fixer:      orchestrator,
		Builder:    builder,
		States:     states,
		Settings:   store,
		Recovery:   recovery.New(""),
		Cinemeta:   cinemeta,
		TMDB:       tmdb,
		Radarr:     radarr,
		SongLink:   songlink,
		LastFM:     lastfm,
		Steam:      steam,
		Summarizer: summarizer,
		Logger:     log,
	})
	b.Register(dg)

	config.Watch(v, log, func(c config.Config) {
		configureLogger(log, c)
		store.SetDefaults(defaults(c))
		orchestrator.SetConfig(c)
		b.SetConfig(c)
	})

	jobs := scheduler.NewService(log)
	if err := jobs.Add(scheduler.EveryMinute, "status", func() { b.RotateStatus(dg) }); err != nil {
		log.WithError(err).Fatal("Failed to schedule status rotation")
	}
	if err := jobs.Add(scheduler.EveryTenMinutes, "cache-gc", kv.RunGC); err != nil {
		log.WithError(err).Fatal("Failed to schedule cache GC")
	}
	pinger := health.NewPinger(cfg.HealthchecksURL, timeout, log)
	if pinger.Enabled() {
		if err := jobs.Add(scheduler.EveryFiveMinutes, "healthcheck", pinger.Run); err != nil {
			log.WithError(err).Fatal("Failed to schedule healthcheck ping")
		}
	}

	var srv *health.Server
	if cfg.HealthAddr != "" {
		srv = health.NewServer(cfg.HealthAddr, health.NewRouter(store.Counts, log), log)
		srv.Start()
	}

	// Open websocket
	if err := dg.Open(); err != nil {
		log.WithError(err).Fatal("Cannot open the session")
	}
	jobs.Start()

	// Wait for CTRL-C or SIGTERM
	log.Info("Bot is now running. Press CTRL-C to exit.")
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	log.Info("Shutting down.")
	jobs.Stop()
	if err := dg.Close(); err != nil {
		log.WithError(err).Warn("Error closing Discord session")
	}
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.WithError(err).Warn("HTTP server shutdown failed")
		}
	}
	counter.Wait()
}
