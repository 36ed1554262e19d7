package render

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"linkfix/internal/enrich"
)

// Notice is a plain one-line embed.
func Notice(text string) *Payload {
	return &Payload{Embeds: []*discordgo.MessageEmbed{{Description: text, Color: ColorGray}}}
}

// Error is a red one-line embed.
func Error(text string) *Payload {
	return &Payload{Embeds: []*discordgo.MessageEmbed{{Description: text, Color: ColorRed}}}
}

// Summary shows a generated video summary.
func Summary(text string) *Payload {
	return &Payload{Embeds: []*discordgo.MessageEmbed{{
		Author:      &discordgo.MessageEmbedAuthor{Name: "Summarized TikTok Video"},
		Description: Truncate(text, MaxBody),
		Color:       ColorGray,
		Footer:      &discordgo.MessageEmbedFooter{Text: "Summaries may be inaccurate."},
	}}}
}

// Page renders page i of a pager whose state is stored under id.
func Page(st PagerState, id string, i int) *Payload {
	n := len(st.Items)
	if n == 0 {
		return Notice("Nothing to show.")
	}
	i = ((i % n) + n) % n

	item := st.Items[i]
	if st.Screenshots && n > 1 {
		item = "[Screenshot](" + item + ")"
	}
	if n == 1 {
		return &Payload{Content: item}
	}

	return &Payload{
		Content: fmt.Sprintf("(%d/%d) %s", i+1, n, item),
		Buttons: []discordgo.Button{
			{
				CustomID: CustomID(ActionPage, id, strconv.Itoa(i-1)),
				Label:    "Previous",
				Style:    discordgo.SecondaryButton,
			},
			{
				CustomID: CustomID(ActionPage, id, strconv.Itoa(i+1)),
				Label:    "Next",
				Style:    discordgo.SecondaryButton,
			},
		},
	}
}

// SimilarSongs lists suggestions with a link per platform.
func SimilarSongs(songs []*enrich.Song) *Payload {
	if len(songs) == 0 {
		return Notice("No suggested songs found.")
	}
	lines := make([]string, 0, len(songs))
	for _, s := range songs {
		var links []string
		for _, l := range s.Links {
			links = append(links, fmt.Sprintf("[[%s]](%s)", l.Name, l.URL))
		}
		lines = append(lines, fmt.Sprintf("**%s - %s**\n%s", s.Artist, s.Title, strings.Join(links, " ")))
	}
	return &Payload{Embeds: []*discordgo.MessageEmbed{{
		Title:       "Suggested Songs",
		Description: Truncate(strings.Join(lines, "\n\n"), 4096),
		Color:       DefaultColor,
	}}}
}

// MaxMenuOptions is Discord's limit on select menu options.
const MaxMenuOptions = 25

// DiscoverMenu offers related movies in a select menu.
func DiscoverMenu(recs []enrich.Recommendation) *Payload {
	if len(recs) == 0 {
		return Notice("No recommendations found.")
	}
	opts := make([]discordgo.SelectMenuOption, 0, min(len(recs), MaxMenuOptions))
	seen := make(map[string]bool)
	for _, r := range recs {
		if len(opts) == MaxMenuOptions {
			break
		}
		if seen[r.TMDBID] {
			continue
		}
		seen[r.TMDBID] = true
		opts = append(opts, discordgo.SelectMenuOption{Label: Truncate(r.Title, 100), Value: r.TMDBID})
	}
	menu := &discordgo.SelectMenu{
		CustomID:    CustomID(ActionPickMovie, "menu"),
		Placeholder: "Select a movie",
		Options:     opts,
	}
	return &Payload{
		Rows: []discordgo.MessageComponent{
			&discordgo.ActionsRow{Components: []discordgo.MessageComponent{menu}},
		},
	}
}
