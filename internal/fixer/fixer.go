// Package fixer runs the per-message link fixing pipeline: match, check
// enablement, resolve, enrich, reply and suppress the original preview.
package fixer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/sirupsen/logrus"

	"linkfix/internal/config"
	"linkfix/internal/enrich"
	"linkfix/internal/registry"
	"linkfix/internal/render"
	"linkfix/internal/resolver"
)

var (
	// ErrNoMatch is returned by FixLink when no pattern recognises the link.
	ErrNoMatch = errors.New("link not recognised")
	// ErrDisabled is returned by FixLink when the platform is turned off.
	ErrDisabled = errors.New("platform disabled")
)

// GatedLifetime is how long a gated notice stays before it is deleted.
const GatedLifetime = 30 * time.Second

// State is a pipeline stage. A message ends in the last state it reached.
type State string

const (
	Received          State = "received"
	Matched           State = "matched"
	EnablementChecked State = "enablement_checked"
	Resolved          State = "resolved"
	Enriched          State = "enriched"
	Responded         State = "responded"
	Suppressed        State = "suppressed"
	Ignored           State = "ignored"
)

// Message is an inbound chat message.
type Message struct {
	ID        string
	ChannelID string
	GuildID   string
	AuthorID  string
	Content   string
	// NSFWAllowed is set in adult channels and direct messages.
	NSFWAllowed bool
}

// Outcome reports how far a message got.
type Outcome struct {
	State    State
	Platform string
	ReplyID  string
}

// Command is an explicit fix request.
type Command struct {
	GuildID     string
	UserID      string
	Link        string
	Spoiler     bool
	NSFWAllowed bool
	// Platform restricts matching to one platform when set.
	Platform registry.Platform
}

// Sender performs the outbound chat actions. Implementations swallow
// permission errors themselves or return them; the pipeline only logs.
type Sender interface {
	Reply(ctx context.Context, channelID, messageID string, p *render.Payload) (string, error)
	Suppress(ctx context.Context, channelID, messageID string) error
	EditContent(ctx context.Context, channelID, messageID, content string) error
	Delete(ctx context.Context, channelID, messageID string) error
}

// Settings answers guild and user toggles.
type Settings interface {
	Enabled(ctx context.Context, guildID, platform string) bool
	TrackingWarnings(ctx context.Context, userID, platform string) bool
}

// Counter records successful fixes.
type Counter interface {
	Increment(platform string)
}

// Renderer turns records into payloads.
type Renderer interface {
	Build(ctx context.Context, rec *enrich.Record, opts render.Options) *render.Payload
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Options configure an Orchestrator. Sleep and Counter are optional.
type Options struct {
	Registry *registry.Registry
	Handlers map[registry.Platform]Handler
	Renderer Renderer
	Settings Settings
	Counter  Counter
	Sender   Sender
	Sleep    Sleeper
	Config   config.Config
	Logger   logrus.FieldLogger
}

// Orchestrator handles messages. It is safe for concurrent use; each
// message runs on the caller's goroutine.
type Orchestrator struct {
	registry *registry.Registry
	handlers map[registry.Platform]Handler
	renderer Renderer
	settings Settings
	counter  Counter
	sender   Sender
	sleep    Sleeper
	log      logrus.FieldLogger
	seen     *seenSet

	mu  sync.RWMutex
	cfg config.Config
}

// New creates an Orchestrator.
func New(o Options) *Orchestrator {
	if o.Sleep == nil {
		o.Sleep = sleep
	}
	if o.Registry == nil {
		o.Registry = registry.Default()
	}
	return &Orchestrator{
		registry: o.Registry,
		handlers: o.Handlers,
		renderer: o.Renderer,
		settings: o.Settings,
		counter:  o.Counter,
		sender:   o.Sender,
		sleep:    o.Sleep,
		log:      o.Logger.WithField("component", "fixer"),
		seen:     newSeenSet(4096),
		cfg:      o.Config,
	}
}

// SetConfig swaps the configuration used by later messages.
func (o *Orchestrator) SetConfig(cfg config.Config) {
	o.mu.Lock()
	o.cfg = cfg
	o.mu.Unlock()
}

func (o *Orchestrator) config() config.Config {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.cfg
}

func (o *Orchestrator) count(platform string) {
	if o.counter != nil {
		o.counter.Increment(platform)
	}
}

// HandleMessage runs the passive pipeline on msg. Every failure ends the
// pipeline quietly; the outcome is for logging and tests.
func (o *Orchestrator) HandleMessage(ctx context.Context, msg Message) Outcome {
	out := Outcome{State: Received}
	log := o.log.WithFields(logrus.Fields{
		"guild":   msg.GuildID,
		"channel": msg.ChannelID,
		"message": msg.ID,
	})
	ignore := func(reason string) Outcome {
		log.WithFields(logrus.Fields{"state": out.State, "platform": out.Platform}).Debugf("Ignored: %s", reason)
		out.State = Ignored
		return out
	}

	if !o.seen.add(msg.ID) {
		return ignore("already processed")
	}

	m, ok := o.registry.Match(msg.Content)
	if !ok {
		return ignore("no link")
	}
	h, ok := o.handlers[m.Platform]
	if !ok {
		return ignore("no handler")
	}
	key := m.Platform.ConfigKey()
	out.State, out.Platform = Matched, key

	if !o.settings.Enabled(ctx, msg.GuildID, key) {
		return ignore("disabled")
	}
	out.State = EnablementChecked

	if wrapped(msg.Content, m.RawURL) {
		return ignore("preview suppressed by sender")
	}
	spoiler := strings.Contains(msg.Content, "||"+m.RawURL) && strings.Count(msg.Content, "||") >= 2

	cfg := o.config()
	req := Request{
		Match:   m,
		Config:  cfg.Platform(key),
		Spoiler: spoiler,
		Warn:    o.settings.TrackingWarnings(ctx, msg.AuthorID, key),
	}

	link, err := o.resolve(ctx, h, req)
	if err != nil {
		return ignore(err.Error())
	}
	out.State = Resolved

	rec := o.enrich(ctx, h, req, link, log)
	out.State = Enriched
	if !replies(h, rec) {
		return ignore("nothing worth replying with")
	}

	opts := render.Options{Spoiler: spoiler, NSFWAllowed: msg.NSFWAllowed}
	if link.TrackingDetected {
		opts.Warning = link.TrackingReason
	}
	p := o.build(ctx, h, req, link, rec, opts, log)
	if p.Empty() {
		return ignore("empty payload")
	}

	replyID, err := o.sender.Reply(ctx, msg.ChannelID, msg.ID, p)
	if err != nil {
		log.WithError(err).Debug("Reply failed")
		return out
	}
	out.State, out.ReplyID = Responded, replyID

	if p.Gated {
		if err := o.sleep(ctx, GatedLifetime); err == nil {
			if err := o.sender.Delete(ctx, msg.ChannelID, replyID); err != nil {
				log.WithError(err).Debug("Deleting gated notice failed")
			}
		}
		return out
	}
	o.count(key)

	if suppresses(h, rec) {
		if err := o.sleep(ctx, cfg.SuppressDelay); err != nil {
			return out
		}
		if err := o.sender.Suppress(ctx, msg.ChannelID, msg.ID); err != nil {
			log.WithError(err).Debug("Suppress failed")
		} else {
			out.State = Suppressed
		}
	}

	if p.Warning != "" {
		if err := o.sleep(ctx, cfg.WarningWindow); err != nil {
			return out
		}
		warned := *p
		warned.Warning = ""
		if err := o.sender.EditContent(ctx, msg.ChannelID, replyID, warned.Text()); err != nil {
			log.WithError(err).Debug("Removing tracking warning failed")
		}
	}

	log.WithFields(logrus.Fields{"state": out.State, "platform": key}).Debug("Link fixed")
	return out
}

// FixLink runs the pipeline for an explicit command. It never warns about
// tracking and never suppresses anything. The returned payload is counted
// as sent.
func (o *Orchestrator) FixLink(ctx context.Context, c Command) (*render.Payload, error) {
	var (
		m  registry.LinkMatch
		ok bool
	)
	if c.Platform != "" {
		m, ok = o.registry.MatchPlatform(c.Platform, c.Link)
	} else {
		m, ok = o.registry.MatchLink(c.Link)
	}
	if !ok {
		return nil, ErrNoMatch
	}
	h, ok := o.handlers[m.Platform]
	if !ok {
		return nil, ErrNoMatch
	}
	key := m.Platform.ConfigKey()
	if !o.settings.Enabled(ctx, c.GuildID, key) {
		return nil, ErrDisabled
	}

	log := o.log.WithFields(logrus.Fields{"guild": c.GuildID, "platform": key})
	req := Request{Match: m, Config: o.config().Platform(key), Spoiler: c.Spoiler}
	link, err := o.resolve(ctx, h, req)
	if err != nil {
		return nil, err
	}
	rec := o.enrich(ctx, h, req, link, log)
	p := o.build(ctx, h, req, link, rec, render.Options{Spoiler: c.Spoiler, NSFWAllowed: c.NSFWAllowed}, log)
	if p.Empty() {
		return nil, fmt.Errorf("fix %s: %w", key, enrich.ErrNotFound)
	}
	if !p.Gated {
		o.count(key)
	}
	return p, nil
}

// resolve falls back to the raw link on any error except ErrUnavailable.
func (o *Orchestrator) resolve(ctx context.Context, h Handler, req Request) (resolver.ResolvedLink, error) {
	link, err := h.Resolve(ctx, req)
	if errors.Is(err, resolver.ErrUnavailable) {
		return resolver.ResolvedLink{}, err
	}
	if err != nil || link.CanonicalURL == "" {
		link.CanonicalURL = req.Match.RawURL
	}
	return link, nil
}

// enrich never fails. Errors and panics degrade to the minimal record.
func (o *Orchestrator) enrich(ctx context.Context, h Handler, req Request, link resolver.ResolvedLink, log logrus.FieldLogger) (rec *enrich.Record) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Warn("Recovered from panic during enrichment")
			rec = h.Minimal(req, link)
		}
		rec.Platform = req.Match.Platform.ConfigKey()
	}()

	rec, err := h.Enrich(ctx, req, link)
	if err != nil || rec == nil {
		if err != nil && !errors.Is(err, enrich.ErrNotFound) {
			log.WithError(err).Debug("Enrichment failed")
		}
		rec = h.Minimal(req, link)
	}
	return rec
}

func (o *Orchestrator) build(ctx context.Context, h Handler, req Request, link resolver.ResolvedLink, rec *enrich.Record, opts render.Options, log logrus.FieldLogger) (p *render.Payload) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Warn("Recovered from panic while building reply")
			fallback := h.Minimal(req, link)
			fallback.Platform = rec.Platform
			fallback.NSFW = rec.NSFW
			p = o.renderer.Build(ctx, fallback, opts)
		}
	}()
	return o.renderer.Build(ctx, rec, opts)
}

// seenSet remembers the most recent message IDs.
type seenSet struct {
	mu    sync.Mutex
	ids   map[string]struct{}
	order []string
	max   int
}

// wrapped reports whether raw sits inside <...> in content. The closing
// bracket may follow a path or query the pattern did not capture.
func wrapped(content, raw string) bool {
	idx := strings.Index(content, raw)
	if idx <= 0 || content[idx-1] != '<' {
		return false
	}
	for _, r := range content[idx+len(raw):] {
		switch {
		case r == '>':
			return true
		case unicode.IsSpace(r):
			return false
		}
	}
	return false
}

func newSeenSet(max int) *seenSet {
	return &seenSet{ids: make(map[string]struct{}, max), max: max}
}

// add reports false if id was already present.
func (s *seenSet) add(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return false
	}
	if len(s.order) >= s.max {
		delete(s.ids, s.order[0])
		s.order = s.order[1:]
	}
	s.ids[id] = struct{}{}
	s.order = append(s.order, id)
	return true
}
