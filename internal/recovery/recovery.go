// Package recovery keeps the last edited and deleted messages of each
// channel for a short time so moderators can recall them.
package recovery

import (
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Window is how long a message stays recoverable.
const Window = 120 * time.Second

// Kind says what happened to a message.
type Kind string

const (
	Edit   Kind = "edit"
	Delete Kind = "delete"
)

const deletedSuffix = " deleted a message"

const maxEmbeds = 10

// Attachment is a file that was on a message.
type Attachment struct {
	Name string
	URL  string
}

// Message is the recoverable part of a chat message.
type Message struct {
	ID          string
	ChannelID   string
	AuthorID    string
	AuthorName  string
	AvatarURL   string
	Content     string
	Embeds      []*discordgo.MessageEmbed
	Attachments []Attachment
	CreatedAt   time.Time
}

// Entry is one logged edit or delete.
type Entry struct {
	Kind   Kind
	Before Message
	// After is set for edits.
	After    Message
	LoggedAt time.Time
}

// Log is safe for concurrent use.
type Log struct {
	mu       sync.Mutex
	botID    string
	window   time.Duration
	now      func() time.Time
	channels map[string][]Entry
}

// New creates a Log. Messages by botID are only skipped when they are
// recovery embeds themselves.
func New(botID string) *Log {
	return &Log{
		botID:    botID,
		window:   Window,
		now:      time.Now,
		channels: make(map[string][]Entry),
	}
}

// SetBotID sets the bot's own user ID once it is known.
func (l *Log) SetBotID(id string) {
	l.mu.Lock()
	l.botID = id
	l.mu.Unlock()
}

// RecordEdit logs an edit. Edits that leave the text unchanged, such as
// embed unfurls, are ignored.
func (l *Log) RecordEdit(before, after Message) {
	if before.Content == after.Content {
		return
	}
	l.append(before.ChannelID, Entry{Kind: Edit, Before: before, After: after})
}

// RecordDelete logs a delete. Very short messages without embeds are
// ignored, and so are the log's own delete embeds.
func (l *Log) RecordDelete(m Message) {
	if len(m.Content) < 3 && len(m.Embeds) == 0 {
		return
	}
	l.mu.Lock()
	own := m.AuthorID != "" && m.AuthorID == l.botID
	l.mu.Unlock()
	if own && len(m.Embeds) > 0 && m.Embeds[0].Author != nil &&
		strings.HasSuffix(m.Embeds[0].Author.Name, deletedSuffix) {
		return
	}
	l.append(m.ChannelID, Entry{Kind: Delete, Before: m})
}

func (l *Log) append(channelID string, e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.LoggedAt = l.now()
	l.channels[channelID] = append(l.live(channelID), e)
}

// live drops expired entries. The caller holds mu.
func (l *Log) live(channelID string) []Entry {
	entries := l.channels[channelID]
	cutoff := l.now().Add(-l.window)
	i := 0
	for i < len(entries) && !entries[i].LoggedAt.After(cutoff) {
		i++
	}
	entries = entries[i:]
	if len(entries) == 0 {
		delete(l.channels, channelID)
		return nil
	}
	l.channels[channelID] = entries
	return entries
}

// Pop removes and returns the newest entry in the channel. An empty kind
// matches both edits and deletes.
func (l *Log) Pop(channelID string, kind Kind) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries := l.live(channelID)
	for i := len(entries) - 1; i >= 0; i-- {
		if kind != "" && entries[i].Kind != kind {
			continue
		}
		e := entries[i]
		rest := append(entries[:i:i], entries[i+1:]...)
		if len(rest) == 0 {
			delete(l.channels, channelID)
		} else {
			l.channels[channelID] = rest
		}
		return e, true
	}
	return Entry{}, false
}

// Embeds renders e. Deletes carry the message's own embeds after the
// recovery embed.
func (e Entry) Embeds(color int) []*discordgo.MessageEmbed {
	m := e.Before
	embed := &discordgo.MessageEmbed{
		Color:  color,
		Author: &discordgo.MessageEmbedAuthor{IconURL: m.AvatarURL},
	}
	if !m.CreatedAt.IsZero() {
		embed.Timestamp = m.CreatedAt.Format(time.RFC3339)
	}

	if e.Kind == Edit {
		embed.Author.Name = m.AuthorName + " edited a message"
		embed.Fields = []*discordgo.MessageEmbedField{
			{Name: "Before", Value: fieldValue(m.Content)},
			{Name: "After", Value: fieldValue(e.After.Content)},
		}
		return []*discordgo.MessageEmbed{embed}
	}

	embed.Author.Name = m.AuthorName + deletedSuffix
	embed.Description = m.Content
	if len(m.Attachments) > 0 {
		embed.Description += "\n\n-# These attachments will be removed by Discord soon, download them quickly."
		links := make([]string, 0, len(m.Attachments))
		for _, a := range m.Attachments {
			links = append(links, "["+a.Name+"]("+a.URL+")")
		}
		name := "Attachment"
		if len(m.Attachments) > 1 {
			name = "Attachments"
		}
		embed.Image = &discordgo.MessageEmbedImage{URL: m.Attachments[0].URL}
		embed.Fields = []*discordgo.MessageEmbedField{{Name: name, Value: fieldValue(strings.Join(links, "\n"))}}
	}
	embeds := append([]*discordgo.MessageEmbed{embed}, m.Embeds...)
	return embeds[:min(len(embeds), maxEmbeds)]
}

// fieldValue keeps a field under Discord's 1024 character limit.
func fieldValue(s string) string {
	if s == "" {
		return "\u200b"
	}
	r := []rune(s)
	if len(r) > 1024 {
		return string(r[:1021]) + "..."
	}
	return s
}
