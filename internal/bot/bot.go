// Package bot connects the link fixer to a Discord gateway session.
package bot

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"linkfix/internal/config"
	"linkfix/internal/enrich"
	"linkfix/internal/fixer"
	"linkfix/internal/recovery"
	"linkfix/internal/render"
	"linkfix/internal/settings"
)

// Version is shown in embed footers.
const Version = "2.0.0"

// Colour of the bot's own embeds.
const embedColor = 0x7289DA

var statuses = []string{
	"for TikTok links", "for Instagram links", "for Reddit links", "for Twitter links",
	"for Bluesky links", "for IMDb links", "for Spotify links", "for Steam links",
}

// Deps are the collaborators of a Bot.
type Deps struct {
	Config     config.Config
	Fixer      *fixer.Orchestrator
	Builder    *render.Builder
	States     *render.StateStore
	Settings   *settings.Store
	Recovery   *recovery.Log
	Cinemeta   *enrich.Cinemeta
	TMDB       *enrich.TMDB
	Radarr     *enrich.Radarr
	SongLink   *enrich.SongLink
	LastFM     *enrich.LastFM
	Steam      *enrich.Steam
	Summarizer *enrich.Summarizer
	Logger     logrus.FieldLogger
}

// Bot handles gateway events.
type Bot struct {
	d    Deps
	log  logrus.FieldLogger
	http *resty.Client

	mu  sync.RWMutex
	cfg config.Config

	status atomic.Int64
}

// New creates a Bot.
func New(d Deps) *Bot {
	return &Bot{
		d:    d,
		log:  d.Logger.WithField("component", "bot"),
		http: resty.New().SetTimeout(d.Config.HTTPTimeout),
		cfg:  d.Config,
	}
}

// SetConfig swaps the configuration after a reload.
func (b *Bot) SetConfig(cfg config.Config) {
	b.mu.Lock()
	b.cfg = cfg
	b.mu.Unlock()
}

func (b *Bot) config() config.Config {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cfg
}

// Register adds the event handlers to s.
func (b *Bot) Register(s *discordgo.Session) {
	s.AddHandler(b.onReady)
	s.AddHandler(b.onGuildCreate)
	s.AddHandler(b.onMessageCreate)
	s.AddHandler(b.onMessageUpdate)
	s.AddHandler(b.onMessageDelete)
	s.AddHandler(b.onInteractionCreate)
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.log.Infof("We have logged in as %s", r.User.Username)
	b.d.Recovery.SetBotID(r.User.ID)

	synced := 0
	for _, g := range r.Guilds {
		if b.syncCommands(s, g.ID) {
			synced++
		}
	}
	b.log.Infof("Synchronized commands across %d guild(s)", synced)
	b.RotateStatus(s)
}

// Guilds joined after startup get their commands too.
func (b *Bot) onGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	if g.Guild == nil || g.Guild.ID == "" || g.Unavailable {
		return
	}
	if !g.JoinedAt.IsZero() && time.Since(g.JoinedAt) < time.Minute {
		b.syncCommands(s, g.Guild.ID)
	}
}

func (b *Bot) syncCommands(s *discordgo.Session, guildID string) bool {
	if _, err := s.ApplicationCommandBulkOverwrite(s.State.User.ID, guildID, Commands()); err != nil {
		b.log.WithError(err).WithField("guild", guildID).Warn("Failed to sync commands")
		return false
	}
	return true
}

// RotateStatus moves the presence to the next status line.
func (b *Bot) RotateStatus(s *discordgo.Session) {
	idx := int(b.status.Add(1)-1) % len(statuses)
	err := s.UpdateStatusComplex(discordgo.UpdateStatusData{
		Activities: []*discordgo.Activity{{Name: statuses[idx], Type: discordgo.ActivityTypeWatching}},
	})
	if err != nil {
		b.log.WithError(err).Debug("Failed to update status")
	}
}

// nsfwAllowed reports whether adult content may be shown in a channel.
// Direct messages allow it. Threads inherit their parent's flag.
func nsfwAllowed(s *discordgo.Session, guildID, channelID string) bool {
	if guildID == "" {
		return true
	}
	ch := channel(s, channelID)
	if ch == nil {
		return false
	}
	if ch.IsThread() && ch.ParentID != "" {
		if parent := channel(s, ch.ParentID); parent != nil {
			return parent.NSFW
		}
	}
	return ch.NSFW
}

func channel(s *discordgo.Session, id string) *discordgo.Channel {
	if s.State != nil {
		if ch, err := s.State.Channel(id); err == nil {
			return ch
		}
	}
	ch, err := s.Channel(id)
	if err != nil {
		return nil
	}
	return ch
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.Author.ID == s.State.User.ID {
		return
	}
	msg := fixer.Message{
		ID:          m.ID,
		ChannelID:   m.ChannelID,
		GuildID:     m.GuildID,
		AuthorID:    m.Author.ID,
		Content:     m.Content,
		NSFWAllowed: nsfwAllowed(s, m.GuildID, m.ChannelID),
	}
	b.d.Fixer.HandleMessage(context.Background(), msg)
}

func (b *Bot) onMessageUpdate(s *discordgo.Session, m *discordgo.MessageUpdate) {
	if m.BeforeUpdate == nil || m.Message == nil || m.Author == nil || m.Author.Bot {
		return
	}
	b.d.Recovery.RecordEdit(toRecovery(m.BeforeUpdate), toRecovery(m.Message))
}

func (b *Bot) onMessageDelete(s *discordgo.Session, m *discordgo.MessageDelete) {
	if m.BeforeDelete == nil || m.BeforeDelete.Author == nil {
		return
	}
	b.d.Recovery.RecordDelete(toRecovery(m.BeforeDelete))
}

func toRecovery(m *discordgo.Message) recovery.Message {
	out := recovery.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		Content:   m.Content,
		Embeds:    m.Embeds,
		CreatedAt: m.Timestamp,
	}
	if m.Author != nil {
		out.AuthorID = m.Author.ID
		out.AuthorName = m.Author.GlobalName
		if out.AuthorName == "" {
			out.AuthorName = m.Author.Username
		}
		out.AvatarURL = m.Author.AvatarURL("")
	}
	for _, a := range m.Attachments {
		out.Attachments = append(out.Attachments, recovery.Attachment{Name: a.Filename, URL: a.URL})
	}
	return out
}

// footer stamps the bot's name and version on an embed.
func footer(embed *discordgo.MessageEmbed, s *discordgo.Session) {
	if s.State != nil && s.State.User != nil {
		embed.Footer = &discordgo.MessageEmbedFooter{
			Text:    fmt.Sprintf("%s | v%s", s.State.User.Username, Version),
			IconURL: s.State.User.AvatarURL(""),
		}
	}
}
