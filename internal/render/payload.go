// Package render turns enrichment records into Discord reply payloads.
package render

import (
	"bytes"

	"github.com/bwmarrin/discordgo"
)

// FlagEphemeral marks an interaction response visible to its invoker only.
const FlagEphemeral = discordgo.MessageFlags(1 << 6)

// LearnMoreURL explains tracking warnings.
const LearnMoreURL = "https://keto.boats/stop-tracking"

// Attachment is a file sent with a reply.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// Payload is a reply before it is sent.
type Payload struct {
	Content string
	// Warning is shown under Content until the reply is edited.
	Warning string
	Embeds  []*discordgo.MessageEmbed
	Buttons []discordgo.Button
	// Rows are extra component rows placed after the buttons.
	Rows  []discordgo.MessageComponent
	Files []Attachment
	// Gated is set when the reply replaces adult content with a notice.
	Gated bool
}

// Text is the message content including any warning line.
func (p *Payload) Text() string {
	if p.Warning == "" {
		return p.Content
	}
	return p.Content + "\n-# " + p.Warning + " [Learn more.](<" + LearnMoreURL + ">)"
}

// Empty reports whether there is nothing to send.
func (p *Payload) Empty() bool {
	return p.Content == "" && len(p.Embeds) == 0 && len(p.Buttons) == 0 && len(p.Rows) == 0 && len(p.Files) == 0
}

// Components lays the buttons out in rows of five.
func (p *Payload) Components() []discordgo.MessageComponent {
	var rows []discordgo.MessageComponent
	for start := 0; start < len(p.Buttons); start += 5 {
		end := min(start+5, len(p.Buttons))
		row := make([]discordgo.MessageComponent, 0, end-start)
		for _, b := range p.Buttons[start:end] {
			row = append(row, b)
		}
		rows = append(rows, &discordgo.ActionsRow{Components: row})
	}
	return append(rows, p.Rows...)
}

func (p *Payload) files() []*discordgo.File {
	files := make([]*discordgo.File, 0, len(p.Files))
	for _, f := range p.Files {
		files = append(files, &discordgo.File{
			Name:        f.Name,
			ContentType: f.ContentType,
			Reader:      bytes.NewReader(f.Data),
		})
	}
	return files
}

// MessageSend builds a reply to ref. Replies never ping anyone.
func (p *Payload) MessageSend(ref *discordgo.MessageReference) *discordgo.MessageSend {
	return &discordgo.MessageSend{
		Content:         p.Text(),
		Embeds:          p.Embeds,
		Components:      p.Components(),
		Files:           p.files(),
		Reference:       ref,
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}
}

// InteractionData builds an interaction response body.
func (p *Payload) InteractionData(ephemeral bool) *discordgo.InteractionResponseData {
	d := &discordgo.InteractionResponseData{
		Content:         p.Text(),
		Embeds:          p.Embeds,
		Components:      p.Components(),
		Files:           p.files(),
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}
	if ephemeral {
		d.Flags = FlagEphemeral
	}
	return d
}

// WebhookEdit builds an edit of a deferred interaction response.
func (p *Payload) WebhookEdit() *discordgo.WebhookEdit {
	content := p.Text()
	components := p.Components()
	return &discordgo.WebhookEdit{
		Content:    &content,
		Embeds:     &p.Embeds,
		Components: &components,
		Files:      p.files(),
	}
}
