package bot

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"

	"linkfix/internal/fixer"
	"linkfix/internal/recovery"
	"linkfix/internal/registry"
	"linkfix/internal/render"
	"linkfix/internal/resolver"
	"linkfix/internal/settings"
)

// commandTimeout bounds the work behind one command.
const commandTimeout = 30 * time.Second

// Manage Expressions, formerly Manage Emojis.
const permissionManageEmojis int64 = 1 << 30

// trackingSites can warn about tracking links.
var trackingSites = []string{string(registry.TikTok), string(registry.Instagram)}

const (
	msgNoResults   = "No results found."
	msgTimeout     = "Search timed out."
	msgGuildOnly   = "This command can only be used in a server."
	msgUnknownSite = "No site found with that name."
)

func siteChoices(keys []string) []*discordgo.ApplicationCommandOptionChoice {
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(keys))
	for _, k := range keys {
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: registry.DisplayName(k), Value: k})
	}
	return choices
}

// Commands are the slash commands synced to each guild.
func Commands() []*discordgo.ApplicationCommand {
	manageServer := int64(discordgo.PermissionManageServer)
	manageMessages := int64(discordgo.PermissionManageMessages)
	manageEmojis := permissionManageEmojis
	noDM := false

	linkOptions := func(desc string) []*discordgo.ApplicationCommandOption {
		return []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionString, Name: "link", Description: desc, Required: true},
			{Type: discordgo.ApplicationCommandOptionBoolean, Name: "spoiler", Description: "Hide the result behind a spoiler"},
		}
	}
	query := []*discordgo.ApplicationCommandOption{
		{Type: discordgo.ApplicationCommandOptionString, Name: "query", Description: "What to search for", Required: true},
	}

	return []*discordgo.ApplicationCommand{
		{Name: "fix", Description: "Fix the embed of a social media link", Options: linkOptions("The link to fix")},
		{Name: "tiktok", Description: "Fix the embed of a TikTok link", Options: linkOptions("The TikTok link to fix")},
		{
			Name:        "search",
			Description: "Search for a movie or a series",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "movie", Description: "Search for a movie", Options: query},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "tv", Description: "Search for a series", Options: query},
			},
		},
		{
			Name:        "song",
			Description: "Find a song on every streaming service",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "url", Description: "A Spotify, Apple Music or YouTube link", Required: true},
			},
		},
		{Name: "steam", Description: "Look up a game on Steam", Options: query},
		{
			Name:                     "config",
			Description:              "Configure the bot for this server",
			DefaultMemberPermissions: &manageServer,
			DMPermission:             &noDM,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "show", Description: "Show the current configuration"},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "social-autofix",
					Description: "Turn automatic link fixing on or off for a site",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "site", Description: "The site", Required: true, Choices: siteChoices(registry.ConfigKeys())},
						{Type: discordgo.ApplicationCommandOptionBoolean, Name: "enabled", Description: "Fix links from this site", Required: true},
					},
				},
			},
		},
		{
			Name:        "preferences",
			Description: "Your personal preferences",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "show", Description: "Show your preferences"},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "tracking",
					Description: "Warn you when a link you share can be traced back to you",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "site", Description: "The site", Required: true, Choices: siteChoices(trackingSites)},
						{Type: discordgo.ApplicationCommandOptionBoolean, Name: "enabled", Description: "Show tracking warnings", Required: true},
					},
				},
			},
		},
		{Name: "about", Description: "Show information about the bot"},
		{Name: "owner", Description: "Owner-only command: lists guilds the bot is in"},
		{Name: "snipe", Description: "Show the last edited or deleted message", DefaultMemberPermissions: &manageMessages, DMPermission: &noDM},
		{Name: "edited", Description: "Show the last edited message", DefaultMemberPermissions: &manageMessages, DMPermission: &noDM},
		{Name: "deleted", Description: "Show the last deleted message", DefaultMemberPermissions: &manageMessages, DMPermission: &noDM},
		{
			Name:                     "steal",
			Description:              "Add an emoji from another server",
			DefaultMemberPermissions: &manageEmojis,
			DMPermission:             &noDM,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "emoji", Description: "The emoji or an image link", Required: true},
				{Type: discordgo.ApplicationCommandOptionString, Name: "name", Description: "Name for the new emoji"},
			},
		},
		{
			Name:        "jumbo",
			Description: "Show an emoji in full size",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "emoji", Description: "The emoji", Required: true},
			},
		},
	}
}

type options map[string]*discordgo.ApplicationCommandInteractionDataOption

func optionMap(opts []*discordgo.ApplicationCommandInteractionDataOption) options {
	m := make(options, len(opts))
	for _, o := range opts {
		m[o.Name] = o
	}
	return m
}

func (o options) str(name string) string {
	if v, ok := o[name]; ok {
		return strings.TrimSpace(v.StringValue())
	}
	return ""
}

func (o options) boolean(name string) bool {
	if v, ok := o[name]; ok {
		return v.BoolValue()
	}
	return false
}

// subcommand splits off the first subcommand, if any.
func subcommand(opts []*discordgo.ApplicationCommandInteractionDataOption) (string, options) {
	if len(opts) > 0 && opts[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		return opts[0].Name, optionMap(opts[0].Options)
	}
	return "", optionMap(opts)
}

func userID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

// isTimeout reports whether err came from a deadline.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func searchMessage(err error) string {
	if isTimeout(err) {
		return msgTimeout
	}
	return msgNoResults
}

func fixMessage(err error, invalid string) string {
	switch {
	case errors.Is(err, fixer.ErrNoMatch):
		return invalid
	case errors.Is(err, fixer.ErrDisabled):
		return "Fixing links from this site is disabled here."
	case errors.Is(err, resolver.ErrUnavailable):
		return "That post is not available."
	case isTimeout(err):
		return "Fixing that link timed out."
	}
	return "That link could not be fixed."
}

func (b *Bot) respond(s *discordgo.Session, i *discordgo.InteractionCreate, p *render.Payload, ephemeral bool) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: p.InteractionData(ephemeral),
	})
	if err != nil {
		b.log.WithError(err).Debug("Failed to respond to interaction")
	}
}

func (b *Bot) respondEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, ephemeral bool) {
	footer(embed, s)
	b.respond(s, i, &render.Payload{Embeds: []*discordgo.MessageEmbed{embed}}, ephemeral)
}

func (b *Bot) deferReply(s *discordgo.Session, i *discordgo.InteractionCreate, ephemeral bool) bool {
	data := &discordgo.InteractionResponseData{}
	if ephemeral {
		data.Flags = render.FlagEphemeral
	}
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: data,
	})
	if err != nil {
		b.log.WithError(err).Debug("Failed to defer interaction")
		return false
	}
	return true
}

func (b *Bot) editReply(s *discordgo.Session, i *discordgo.InteractionCreate, p *render.Payload) {
	if _, err := s.InteractionResponseEdit(i.Interaction, p.WebhookEdit()); err != nil {
		b.log.WithError(err).Debug("Failed to edit interaction response")
	}
}

// fail replaces a deferred public reply with a private error.
func (b *Bot) fail(s *discordgo.Session, i *discordgo.InteractionCreate, text string) {
	if err := s.InteractionResponseDelete(i.Interaction); err != nil {
		b.log.WithError(err).Debug("Failed to delete deferred response")
	}
	p := render.Error(text)
	_, err := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Embeds: p.Embeds,
		Flags:  render.FlagEphemeral,
	})
	if err != nil {
		b.log.WithError(err).Debug("Failed to send followup")
	}
}

func (b *Bot) handleCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	b.log.WithFields(logrus.Fields{"command": data.Name, "guild": i.GuildID}).Debug("Command received")

	switch data.Name {
	case "fix":
		opts := optionMap(data.Options)
		b.cmdFix(s, i, opts.str("link"), opts.boolean("spoiler"), "", "Invalid social media link.")
	case "tiktok":
		opts := optionMap(data.Options)
		b.cmdFix(s, i, opts.str("link"), opts.boolean("spoiler"), registry.TikTok, "Invalid TikTok link.")
	case "song":
		b.cmdFix(s, i, optionMap(data.Options).str("url"), false, registry.Songs, "Invalid song link.")
	case "search":
		sub, opts := subcommand(data.Options)
		b.cmdSearch(s, i, sub == "tv", opts.str("query"))
	case "steam":
		b.cmdSteam(s, i, optionMap(data.Options).str("query"))
	case "config":
		sub, opts := subcommand(data.Options)
		b.cmdConfig(s, i, sub, opts)
	case "preferences":
		sub, opts := subcommand(data.Options)
		b.cmdPreferences(s, i, sub, opts)
	case "about":
		b.cmdAbout(s, i)
	case "owner":
		b.cmdOwner(s, i)
	case "snipe":
		b.cmdRecover(s, i, "")
	case "edited":
		b.cmdRecover(s, i, recovery.Edit)
	case "deleted":
		b.cmdRecover(s, i, recovery.Delete)
	case "steal":
		opts := optionMap(data.Options)
		b.cmdSteal(s, i, opts.str("emoji"), opts.str("name"))
	case "jumbo":
		b.cmdJumbo(s, i, optionMap(data.Options).str("emoji"))
	}
}

func (b *Bot) cmdFix(s *discordgo.Session, i *discordgo.InteractionCreate, link string, spoiler bool, platform registry.Platform, invalid string) {
	if !b.deferReply(s, i, false) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	p, err := b.d.Fixer.FixLink(ctx, fixer.Command{
		GuildID:     i.GuildID,
		UserID:      userID(i),
		Link:        link,
		Spoiler:     spoiler,
		NSFWAllowed: nsfwAllowed(s, i.GuildID, i.ChannelID),
		Platform:    platform,
	})
	if err != nil {
		b.log.WithError(err).Debug("Fix command failed")
		b.fail(s, i, fixMessage(err, invalid))
		return
	}
	b.editReply(s, i, p)
}

func (b *Bot) cmdSearch(s *discordgo.Session, i *discordgo.InteractionCreate, series bool, query string) {
	if !b.deferReply(s, i, false) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	id, err := b.d.Cinemeta.Search(ctx, series, query)
	if err != nil {
		b.fail(s, i, searchMessage(err))
		return
	}
	rec, err := b.d.Cinemeta.Meta(ctx, series, id)
	if err != nil {
		b.fail(s, i, searchMessage(err))
		return
	}
	rec.Platform = string(registry.IMDb)
	b.editReply(s, i, b.d.Builder.Build(ctx, rec, render.Options{NSFWAllowed: nsfwAllowed(s, i.GuildID, i.ChannelID)}))
}

func (b *Bot) cmdSteam(s *discordgo.Session, i *discordgo.InteractionCreate, query string) {
	if !b.deferReply(s, i, false) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	id, err := b.d.Steam.Search(ctx, query)
	if err != nil {
		b.fail(s, i, searchMessage(err))
		return
	}
	rec, err := b.d.Steam.Details(ctx, id)
	if err != nil {
		b.fail(s, i, searchMessage(err))
		return
	}
	rec.Platform = string(registry.Steam)
	p := b.d.Builder.Build(ctx, rec, render.Options{NSFWAllowed: nsfwAllowed(s, i.GuildID, i.ChannelID)})
	if p.Gated {
		b.fail(s, i, render.GatedText)
		return
	}
	b.editReply(s, i, p)
}

func statusLine(name string, on bool) string {
	if on {
		return "✅ " + name
	}
	return "❌ " + name
}

func (b *Bot) cmdConfig(s *discordgo.Session, i *discordgo.InteractionCreate, sub string, opts options) {
	if i.GuildID == "" {
		b.respond(s, i, render.Error(msgGuildOnly), true)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	switch sub {
	case "show":
		var lines []string
		for _, k := range registry.ConfigKeys() {
			lines = append(lines, statusLine(registry.DisplayName(k), b.d.Settings.Enabled(ctx, i.GuildID, k)))
		}
		b.respondEmbed(s, i, &discordgo.MessageEmbed{
			Title:       "Server Configuration",
			Description: strings.Join(lines, "\n"),
			Color:       embedColor,
		}, true)
	case "social-autofix":
		key, ok := registry.LookupKey(opts.str("site"))
		if !ok {
			b.respond(s, i, render.Error(msgUnknownSite), true)
			return
		}
		enabled := opts.boolean("enabled")
		if err := b.d.Settings.Set(ctx, settings.Guild, i.GuildID, key, settings.KeyEnabled, enabled); err != nil {
			b.log.WithError(err).Warn("Failed to save guild setting")
			b.respond(s, i, render.Error("Could not save the setting."), true)
			return
		}
		verb := "will no longer be"
		if enabled {
			verb = "will now be"
		}
		b.respond(s, i, render.Notice(fmt.Sprintf("%s links %s fixed automatically.", registry.DisplayName(key), verb)), true)
	}
}

func trackingSite(name string) (string, bool) {
	key, ok := registry.LookupKey(name)
	if !ok {
		return "", false
	}
	for _, k := range trackingSites {
		if k == key {
			return key, true
		}
	}
	return "", false
}

func (b *Bot) cmdPreferences(s *discordgo.Session, i *discordgo.InteractionCreate, sub string, opts options) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	uid := userID(i)

	switch sub {
	case "show":
		var lines []string
		for _, k := range trackingSites {
			lines = append(lines, statusLine(registry.DisplayName(k)+" tracking warnings", b.d.Settings.TrackingWarnings(ctx, uid, k)))
		}
		b.respondEmbed(s, i, &discordgo.MessageEmbed{
			Title:       "Your Preferences",
			Description: strings.Join(lines, "\n"),
			Color:       embedColor,
		}, true)
	case "tracking":
		key, ok := trackingSite(opts.str("site"))
		if !ok {
			b.respond(s, i, render.Error(msgUnknownSite), true)
			return
		}
		enabled := opts.boolean("enabled")
		if err := b.d.Settings.Set(ctx, settings.User, uid, key, settings.KeyTracking, enabled); err != nil {
			b.log.WithError(err).Warn("Failed to save user setting")
			b.respond(s, i, render.Error("Could not save the setting."), true)
			return
		}
		state := "off"
		if enabled {
			state = "on"
		}
		b.respond(s, i, render.Notice(fmt.Sprintf("%s tracking warnings are now %s.", registry.DisplayName(key), state)), true)
	}
}

// fixCounts renders the counters as a sorted field value.
func fixCounts(counts map[string]int64) string {
	keys := make([]string, 0, len(counts))
	var total int64
	for k, n := range counts {
		keys = append(keys, k)
		total += n
	}
	sort.Slice(keys, func(a, c int) bool {
		if counts[keys[a]] != counts[keys[c]] {
			return counts[keys[a]] > counts[keys[c]]
		}
		return keys[a] < keys[c]
	})
	lines := []string{fmt.Sprintf("**%s** links fixed", render.FormatNumber(total))}
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("- %s: %s", registry.DisplayName(k), render.FormatNumber(counts[k])))
	}
	return strings.Join(lines, "\n")
}

func (b *Bot) cmdAbout(s *discordgo.Session, i *discordgo.InteractionCreate) {
	embed := &discordgo.MessageEmbed{
		Title:       "About",
		Description: "This bot fixes the embeds of social media, movie, music and game links.",
		Color:       embedColor,
		Fields: []*discordgo.MessageEmbedField{
			{
				Name: "📜 Credits",
				Value: "- [QuickVids](https://quickvids.app) for TikTok\n" +
					"- [FxTwitter](https://github.com/FixTweet/FxTwitter) and [VixBluesky](https://github.com/Rapougnac/VixBluesky)\n" +
					"- [Cinemeta](https://www.strem.io) for movies and series\n" +
					"- [Songlink](https://odesli.co) and [Last.fm](https://www.last.fm) for music",
			},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if counts, err := b.d.Settings.Counts(ctx); err != nil {
		b.log.WithError(err).Debug("Failed to read fix counts")
	} else if len(counts) > 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "📊 Stats", Value: fixCounts(counts)})
	}
	b.respondEmbed(s, i, embed, false)
}

func (b *Bot) cmdOwner(s *discordgo.Session, i *discordgo.InteractionCreate) {
	owner := b.config().OwnerID
	if owner == "" || userID(i) != owner {
		b.respond(s, i, render.Error("You are not authorized to use this command."), true)
		return
	}
	var lines []string
	for _, g := range s.State.Guilds {
		lines = append(lines, fmt.Sprintf("%s (`%s`)", g.Name, g.ID))
	}
	b.respondEmbed(s, i, &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Guilds (%d)", len(lines)),
		Description: render.Truncate(strings.Join(lines, "\n"), 4096),
		Color:       embedColor,
	}, true)
}

func recoverEmpty(kind recovery.Kind) string {
	switch kind {
	case recovery.Edit:
		return "There are no recently edited messages in this channel."
	case recovery.Delete:
		return "There are no recently deleted messages in this channel."
	}
	return "There are no recently edited or deleted messages in this channel."
}

func (b *Bot) cmdRecover(s *discordgo.Session, i *discordgo.InteractionCreate, kind recovery.Kind) {
	e, ok := b.d.Recovery.Pop(i.ChannelID, kind)
	if !ok {
		b.respond(s, i, render.Notice(recoverEmpty(kind)), true)
		return
	}
	b.respond(s, i, &render.Payload{Embeds: e.Embeds(embedColor)}, false)
}

func (b *Bot) download(ctx context.Context, u string) ([]byte, error) {
	resp, err := b.http.R().SetContext(ctx).Get(u)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, errEmojiInvalid
	}
	return resp.Body(), nil
}

func (b *Bot) cmdSteal(s *discordgo.Session, i *discordgo.InteractionCreate, source, name string) {
	if i.GuildID == "" {
		b.respond(s, i, render.Error(msgGuildOnly), true)
		return
	}
	imageURL, name, err := stealTarget(source, name)
	if err != nil {
		b.respond(s, i, render.Error(err.Error()), true)
		return
	}
	if !b.deferReply(s, i, false) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	data, err := b.download(ctx, imageURL)
	if err != nil {
		b.log.WithError(err).Debug("Failed to download emoji")
		b.fail(s, i, string(errEmojiInvalid))
		return
	}
	uri, err := imageDataURI(data)
	if err != nil {
		b.fail(s, i, err.Error())
		return
	}
	emoji, err := s.GuildEmojiCreate(i.GuildID, &discordgo.EmojiParams{Name: name, Image: uri}, discordgo.WithContext(ctx))
	if err != nil {
		b.log.WithError(err).Debug("Failed to create emoji")
		msg := "The emoji could not be added."
		if IsPermissionError(err) {
			msg = "I don't have permission to add emojis here."
		}
		b.fail(s, i, msg)
		return
	}
	b.editReply(s, i, render.Notice(fmt.Sprintf("Emoji %s `:%s:` was added.", emoji.MessageFormat(), emoji.Name)))
}

// jumboURL finds the full size image of a custom or unicode emoji.
func jumboURL(s string) (string, bool) {
	if e, ok := ParseEmoji(s); ok {
		return e.URL() + "?size=4096", true
	}
	return TwemojiURL(s)
}

func (b *Bot) cmdJumbo(s *discordgo.Session, i *discordgo.InteractionCreate, emoji string) {
	u, ok := jumboURL(emoji)
	if !ok {
		b.respond(s, i, render.Error(string(errEmojiInvalid)), true)
		return
	}
	b.respond(s, i, &render.Payload{Embeds: []*discordgo.MessageEmbed{{
		Image: &discordgo.MessageEmbedImage{URL: u},
		Color: embedColor,
	}}}, false)
}
