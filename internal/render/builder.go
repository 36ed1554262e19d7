package render

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"

	"linkfix/internal/enrich"
)

// Field ceilings.
const (
	MaxTitle  = 256
	MaxBody   = 2000
	MaxQuoted = 1020
)

// Embed colours.
const (
	DefaultColor = 0x505050
	ColorRed     = 0xED4245
	ColorGray    = 0x979C9F
)

// GatedText replaces adult content outside adult channels.
const GatedText = "To use this feature you must be in a NSFW channel."

// Colorer picks an accent colour from an image.
type Colorer interface {
	DominantColor(ctx context.Context, u string) int
}

// Options describe where the reply goes.
type Options struct {
	Spoiler     bool
	NSFWAllowed bool
	// Warning is a tracking warning shown until the reply is edited.
	Warning string
}

// Builder builds reply payloads. colors and states may be nil, in which
// case accents fall back to defaults and interactive controls are left out.
type Builder struct {
	colors  Colorer
	states  States
	similar bool
	log     logrus.FieldLogger
}

// NewBuilder creates a Builder. similar enables the similar songs control.
func NewBuilder(colors Colorer, states States, similar bool, logger logrus.FieldLogger) *Builder {
	return &Builder{
		colors:  colors,
		states:  states,
		similar: similar,
		log:     logger.WithField("component", "render"),
	}
}

// Gated is the notice sent in place of adult content.
func Gated() *Payload {
	return &Payload{
		Embeds: []*discordgo.MessageEmbed{{Description: GatedText, Color: ColorRed}},
		Gated:  true,
	}
}

// Build renders rec.
func (b *Builder) Build(ctx context.Context, rec *enrich.Record, opts Options) *Payload {
	if rec.NSFW && !opts.NSFWAllowed {
		return Gated()
	}

	var p *Payload
	switch {
	case rec.Minimal:
		p = &Payload{Content: spoiler(rec.URL, opts.Spoiler)}
	case rec.Kind == enrich.KindMovie && rec.Movie != nil:
		p = b.movie(ctx, rec)
	case rec.Kind == enrich.KindSong && rec.Song != nil:
		p = b.song(ctx, rec)
	case rec.Kind == enrich.KindGame && rec.Game != nil:
		p = b.game(ctx, rec, opts)
	case rec.Kind == enrich.KindPost && rec.Post != nil:
		if opts.Spoiler {
			p = &Payload{Content: spoiler(rec.URL, true)}
		} else {
			p = b.post(ctx, rec)
		}
	default:
		p = b.social(ctx, rec, opts)
	}
	p.Warning = opts.Warning
	return p
}

func spoiler(s string, on bool) string {
	if on && s != "" {
		return "||" + s + "||"
	}
	return s
}

func (b *Builder) color(ctx context.Context, rec *enrich.Record) int {
	if rec.AccentSourceURL != "" && b.colors != nil {
		return b.colors.DominantColor(ctx, rec.AccentSourceURL)
	}
	if rec.Accent != 0 {
		return rec.Accent
	}
	return DefaultColor
}

func (b *Builder) stateID(ctx context.Context, action string, v any) string {
	if b.states == nil {
		return ""
	}
	id, err := b.states.Put(ctx, v)
	if err != nil {
		b.log.WithError(err).WithField("action", action).Warn("Failed to save component state")
		return ""
	}
	return CustomID(action, id)
}

func counter(name, emoji string, n int64, style discordgo.ButtonStyle) discordgo.Button {
	return discordgo.Button{
		CustomID: CustomID(ActionCount, name),
		Label:    FormatNumber(n),
		Emoji:    &discordgo.ComponentEmoji{Name: emoji},
		Style:    style,
		Disabled: true,
	}
}

func link(label, emoji, u string) discordgo.Button {
	btn := discordgo.Button{Label: label, Style: discordgo.LinkButton, URL: u}
	if emoji != "" {
		btn.Emoji = &discordgo.ComponentEmoji{Name: emoji}
	}
	return btn
}

func (b *Builder) social(ctx context.Context, rec *enrich.Record, opts Options) *Payload {
	p := &Payload{}
	if rec.Media != nil {
		name := rec.Media.Name
		if opts.Spoiler {
			name = "SPOILER_" + name
		}
		p.Files = []Attachment{{Name: name, ContentType: rec.Media.ContentType, Data: rec.Media.Data}}
	} else {
		p.Content = spoiler(rec.URL, opts.Spoiler)
	}

	c := rec.Counts
	if c.Likes != nil {
		p.Buttons = append(p.Buttons, counter("likes", "🤍", *c.Likes, discordgo.DangerButton))
	}
	if c.Comments != nil {
		p.Buttons = append(p.Buttons, counter("comments", "💬", *c.Comments, discordgo.PrimaryButton))
	}
	if c.Views != nil {
		emoji := "👀"
		if rec.Platform == "instagram" {
			emoji = "▶️"
		}
		p.Buttons = append(p.Buttons, counter("views", emoji, *c.Views, discordgo.PrimaryButton))
	}
	if rec.Summarizable && c.Any() {
		id := b.stateID(ctx, ActionSummarize, SummaryState{Link: rec.SourceURL, Description: rec.Description})
		if id != "" {
			p.Buttons = append(p.Buttons, discordgo.Button{
				CustomID: id,
				Label:    "Summarize",
				Emoji:    &discordgo.ComponentEmoji{Name: "✨"},
				Style:    discordgo.SecondaryButton,
			})
		}
	}
	if rec.Author != "" && rec.AuthorURL != "" {
		p.Buttons = append(p.Buttons, link("@"+rec.Author, "👤", rec.AuthorURL))
	}
	return p
}

func (b *Builder) post(ctx context.Context, rec *enrich.Record) *Payload {
	post := rec.Post
	title := rec.Title
	if post.Domain != "" {
		title += " (" + post.Domain + ")"
	}
	embed := &discordgo.MessageEmbed{
		Title:       Truncate(title, MaxTitle),
		URL:         rec.URL,
		Description: Truncate(post.Selftext, MaxBody),
		Color:       b.color(ctx, rec),
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("u/%s • r/%s • ⬆ %s • 💬 %s",
				rec.Author, post.Subreddit, FormatNumber(post.Upvotes), FormatNumber(post.Comments)),
		},
	}
	if rec.NSFW {
		embed.Footer.Text = "NSFW • " + embed.Footer.Text
	}

	p := &Payload{Embeds: []*discordgo.MessageEmbed{embed}}
	switch {
	case len(post.Grid) > 0:
		p.Files = []Attachment{{Name: "grid.png", ContentType: "image/png", Data: post.Grid}}
		embed.Image = &discordgo.MessageEmbedImage{URL: "attachment://grid.png"}
	case post.Image != "":
		embed.Image = &discordgo.MessageEmbedImage{URL: post.Image}
	case post.Thumbnail != "":
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: post.Thumbnail}
	}

	if r := post.Reply; r != nil {
		embed.Description = ""
		original := post.Selftext
		if original == "" {
			original = "[no text]"
		}
		embed.Fields = []*discordgo.MessageEmbedField{
			{Name: "Reply by u/" + r.Author, Value: ">>> " + Truncate(r.Body, MaxQuoted)},
			{Name: "Original Post", Value: ">>> " + Truncate(original, MaxQuoted)},
		}
	}
	return p
}

func stremioURL(m *enrich.Movie) string {
	u := "https://keto.boats/stremio?id=" + m.IMDbID
	if m.Series {
		u += "&series=true"
	}
	return u
}

// movieFooter shows runtime and genres, whichever are known.
func movieFooter(m *enrich.Movie) string {
	genres := strings.Join(m.Genres, ", ")
	switch {
	case m.Runtime != "" && genres != "":
		return "Runtime: " + m.Runtime + " | Genres: " + genres
	case genres != "":
		return "Genres: " + genres
	case m.Runtime != "":
		return "Runtime: " + m.Runtime
	}
	return ""
}

func (b *Builder) movie(ctx context.Context, rec *enrich.Record) *Payload {
	m := rec.Movie
	embed := &discordgo.MessageEmbed{
		Title:       Truncate(fmt.Sprintf("%s (%s)", rec.Title, m.Year), MaxTitle),
		URL:         rec.URL,
		Description: Truncate(rec.Description, MaxBody),
		Color:       b.color(ctx, rec),
	}
	if m.Poster != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: m.Poster}
	}
	if f := movieFooter(m); f != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: f}
	}

	p := &Payload{Embeds: []*discordgo.MessageEmbed{embed}}
	if n := len(m.Trailers); n > 0 {
		if id := b.stateID(ctx, ActionTrailers, PagerState{Items: m.Trailers}); id != "" {
			label := "Trailer"
			if n > 1 {
				label = "Trailers"
			}
			p.Buttons = append(p.Buttons, discordgo.Button{
				CustomID: id,
				Label:    label,
				Emoji:    &discordgo.ComponentEmoji{Name: "🎬"},
				Style:    discordgo.SecondaryButton,
			})
		}
	}
	if !m.Series {
		if id := b.stateID(ctx, ActionDiscover, MovieState{IMDbID: m.IMDbID}); id != "" {
			p.Buttons = append(p.Buttons, discordgo.Button{
				CustomID: id,
				Label:    "Discover More",
				Emoji:    &discordgo.ComponentEmoji{Name: "🔍"},
				Style:    discordgo.SecondaryButton,
			})
		}
	}
	if !m.FromIMDb {
		p.Buttons = append(p.Buttons, link("IMDb", "", rec.URL))
	}
	p.Buttons = append(p.Buttons, link("Open in Stremio", "", stremioURL(m)))
	return p
}

func (b *Builder) song(ctx context.Context, rec *enrich.Record) *Payload {
	s := rec.Song
	p := &Payload{}
	if s.FromMusicService() {
		p.Embeds = []*discordgo.MessageEmbed{{
			Author: &discordgo.MessageEmbedAuthor{Name: rec.Title, IconURL: s.Thumbnail},
			Color:  b.color(ctx, rec),
		}}
	}
	if b.similar {
		if id := b.stateID(ctx, ActionSimilar, SongState{Artist: s.Artist, Title: s.Title}); id != "" {
			p.Buttons = append(p.Buttons, discordgo.Button{
				CustomID: id,
				Label:    "Similar Songs",
				Emoji:    &discordgo.ComponentEmoji{Name: "🎶"},
				Style:    discordgo.SecondaryButton,
			})
		}
	}
	for _, l := range s.Links {
		p.Buttons = append(p.Buttons, link(l.Name, "", l.URL))
	}
	return p
}

func (b *Builder) game(ctx context.Context, rec *enrich.Record, opts Options) *Payload {
	g := rec.Game
	embed := &discordgo.MessageEmbed{
		Title:       Truncate(rec.Title, MaxTitle),
		URL:         rec.URL,
		Description: Truncate(rec.Description, MaxBody),
		Color:       b.color(ctx, rec),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Price", Value: g.Price, Inline: true},
			{Name: "Release Date", Value: g.ReleaseDate, Inline: true},
			{Name: "Developer", Value: g.Developer, Inline: true},
		},
	}
	if len(g.Platforms) > 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Platforms", Value: strings.Join(g.Platforms, ", "), Inline: true,
		})
	}
	if g.Capsule != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: g.Capsule}
	}
	if len(g.Tags) > 1 {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: "Tags: " + strings.Join(g.Tags, ", ")}
	}

	p := &Payload{Embeds: []*discordgo.MessageEmbed{embed}}
	if n := len(g.Screenshots); n > 0 && (!g.Adult || opts.NSFWAllowed) {
		if id := b.stateID(ctx, ActionScreens, PagerState{Items: g.Screenshots, Screenshots: true}); id != "" {
			label := "Screenshot"
			if n > 1 {
				label = "Screenshots"
			}
			p.Buttons = append(p.Buttons, discordgo.Button{
				CustomID: id,
				Label:    label,
				Emoji:    &discordgo.ComponentEmoji{Name: "🖼️"},
				Style:    discordgo.SecondaryButton,
			})
		}
	}
	if g.AccountNotice != "" {
		p.Buttons = append(p.Buttons, discordgo.Button{
			CustomID: CustomID(ActionAccount, g.AppID),
			Label:    Truncate(g.AccountNotice, 80),
			Style:    discordgo.DangerButton,
			Disabled: true,
		})
	}
	return p
}
