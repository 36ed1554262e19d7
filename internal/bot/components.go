package bot

import (
	"context"
	"errors"
	"strconv"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"

	"linkfix/internal/enrich"
	"linkfix/internal/registry"
	"linkfix/internal/render"
)

const msgExpired = "This button has expired."

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	defer func() {
		if r := recover(); r != nil {
			b.log.WithField("panic", r).Error("Interaction handler panicked")
		}
	}()
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		b.handleCommand(s, i)
	case discordgo.InteractionMessageComponent:
		b.handleComponent(s, i)
	}
}

// update replaces the message the component sits on.
func (b *Bot) update(s *discordgo.Session, i *discordgo.InteractionCreate, p *render.Payload) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: p.InteractionData(false),
	})
	if err != nil {
		b.log.WithError(err).Debug("Failed to update message")
	}
}

// private edits a deferred ephemeral reply. Errors become the reply text.
func (b *Bot) private(s *discordgo.Session, i *discordgo.InteractionCreate, p *render.Payload, err error) {
	if err != nil {
		b.log.WithError(err).Debug("Component action failed")
		p = render.Error(componentMessage(err))
	}
	b.editReply(s, i, p)
}

func componentMessage(err error) string {
	switch {
	case errors.Is(err, render.ErrStateExpired):
		return msgExpired
	case errors.Is(err, enrich.ErrSummaryPending):
		return "A summary for this video is already being generated."
	case errors.Is(err, enrich.ErrNotFound):
		return msgNoResults
	case isTimeout(err):
		return "That took too long. Try again later."
	}
	return "Something went wrong."
}

func (b *Bot) handleComponent(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.MessageComponentData()
	action, id, extra := render.ParseCustomID(data.CustomID)
	b.log.WithFields(logrus.Fields{"action": action, "guild": i.GuildID}).Debug("Component used")

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	switch action {
	case render.ActionPage:
		var st render.PagerState
		if err := b.d.States.Get(ctx, id, &st); err != nil {
			b.respond(s, i, render.Error(componentMessage(err)), true)
			return
		}
		page := 0
		if len(extra) > 0 {
			page, _ = strconv.Atoi(extra[0])
		}
		b.update(s, i, render.Page(st, id, page))

	case render.ActionTrailers, render.ActionScreens:
		var st render.PagerState
		if err := b.d.States.Get(ctx, id, &st); err != nil {
			b.respond(s, i, render.Error(componentMessage(err)), true)
			return
		}
		b.respond(s, i, render.Page(st, id, 0), true)

	case render.ActionSummarize:
		if !b.deferReply(s, i, true) {
			return
		}
		p, err := b.summarize(ctx, id)
		b.private(s, i, p, err)

	case render.ActionDiscover:
		if !b.deferReply(s, i, true) {
			return
		}
		p, err := b.discover(ctx, id)
		b.private(s, i, p, err)

	case render.ActionPickMovie:
		if len(data.Values) == 0 {
			return
		}
		if !b.deferReply(s, i, true) {
			return
		}
		p, err := b.pick(ctx, s, i, data.Values[0])
		b.private(s, i, p, err)

	case render.ActionSimilar:
		if !b.deferReply(s, i, true) {
			return
		}
		p, err := b.similar(ctx, id)
		b.private(s, i, p, err)
	}
}

func (b *Bot) summarize(ctx context.Context, id string) (*render.Payload, error) {
	var st render.SummaryState
	if err := b.d.States.Get(ctx, id, &st); err != nil {
		return nil, err
	}
	text, err := b.d.Summarizer.Summarize(ctx, st.Link, st.Description)
	if err != nil {
		return nil, err
	}
	return render.Summary(text), nil
}

func (b *Bot) discover(ctx context.Context, id string) (*render.Payload, error) {
	var st render.MovieState
	if err := b.d.States.Get(ctx, id, &st); err != nil {
		return nil, err
	}
	recs, err := b.d.Radarr.Recommendations(ctx, st.IMDbID)
	if err != nil {
		return nil, err
	}
	return render.DiscoverMenu(recs), nil
}

// pick renders the movie chosen from a Discover More menu. Menu values are
// TMDB ids.
func (b *Bot) pick(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, tmdbID string) (*render.Payload, error) {
	imdbID, err := b.d.TMDB.IMDbID(ctx, "movie", tmdbID)
	if err != nil {
		return nil, err
	}
	rec, err := b.d.Cinemeta.Meta(ctx, false, imdbID)
	if err != nil {
		return nil, err
	}
	rec.Platform = string(registry.IMDb)
	return b.d.Builder.Build(ctx, rec, render.Options{NSFWAllowed: nsfwAllowed(s, i.GuildID, i.ChannelID)}), nil
}

func (b *Bot) similar(ctx context.Context, id string) (*render.Payload, error) {
	var st render.SongState
	if err := b.d.States.Get(ctx, id, &st); err != nil {
		return nil, err
	}
	songs, err := enrich.SimilarSongs(ctx, b.d.LastFM, b.d.SongLink, &enrich.Song{Artist: st.Artist, Title: st.Title})
	if err != nil {
		return nil, err
	}
	return render.SimilarSongs(songs), nil
}
