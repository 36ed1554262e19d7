package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"

	"linkfix/internal/render"
)

// Send rate limit shared by every channel.
const (
	MessageLimit = 5
	TimeWindow   = 1 * time.Second
)

// ErrPermission wraps REST errors caused by missing access.
var ErrPermission = errors.New("missing permission")

// IsPermissionError reports whether err means the bot may not act on the
// channel or message, or the message is gone.
func IsPermissionError(err error) bool {
	if errors.Is(err, ErrPermission) {
		return true
	}
	var rest *discordgo.RESTError
	if !errors.As(err, &rest) {
		return false
	}
	if rest.Response != nil {
		switch rest.Response.StatusCode {
		case http.StatusForbidden, http.StatusNotFound:
			return true
		}
	}
	if rest.Message != nil {
		switch rest.Message.Code {
		case discordgo.ErrCodeMissingAccess, discordgo.ErrCodeMissingPermissions, discordgo.ErrCodeUnknownMessage:
			return true
		}
	}
	return false
}

// limiter is a sliding window rate limiter.
type limiter struct {
	mu     sync.Mutex
	times  []time.Time
	limit  int
	window time.Duration
	now    func() time.Time
}

func newLimiter(limit int, window time.Duration) *limiter {
	return &limiter{limit: limit, window: window, now: time.Now}
}

// take records a send if the window has room.
func (l *limiter) take() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	clean := 0
	for i, t := range l.times {
		if now.Sub(t) >= l.window {
			clean = i + 1
		} else {
			break
		}
	}
	if clean > 0 {
		l.times = l.times[clean:]
	}
	if len(l.times) < l.limit {
		l.times = append(l.times, now)
		return true
	}
	return false
}

// Wait blocks until a send is allowed.
func (l *limiter) Wait(ctx context.Context) error {
	for !l.take() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	return nil
}

// Messenger is the part of *discordgo.Session the sender uses.
type Messenger interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
}

// Sender performs the fixer's chat actions on a Discord session.
type Sender struct {
	session Messenger
	limit   *limiter
	log     logrus.FieldLogger
}

// NewSender creates a Sender.
func NewSender(session Messenger, logger logrus.FieldLogger) *Sender {
	return &Sender{
		session: session,
		limit:   newLimiter(MessageLimit, TimeWindow),
		log:     logger.WithField("component", "sender"),
	}
}

func (s *Sender) check(err error, action string) error {
	if err == nil {
		return nil
	}
	if IsPermissionError(err) {
		s.log.WithError(err).Debugf("No permission to %s", action)
		return fmt.Errorf("%s: %w", action, ErrPermission)
	}
	return fmt.Errorf("%s: %w", action, err)
}

// Reply sends p as a reply to the message. Nobody is pinged.
func (s *Sender) Reply(ctx context.Context, channelID, messageID string, p *render.Payload) (string, error) {
	if err := s.limit.Wait(ctx); err != nil {
		return "", err
	}
	ref := &discordgo.MessageReference{MessageID: messageID, ChannelID: channelID}
	msg, err := s.session.ChannelMessageSendComplex(channelID, p.MessageSend(ref), discordgo.WithContext(ctx))
	if err := s.check(err, "reply"); err != nil {
		return "", err
	}
	return msg.ID, nil
}

// Suppress hides the link previews of a message.
func (s *Sender) Suppress(ctx context.Context, channelID, messageID string) error {
	// SUPPRESS_EMBEDS
	flags := discordgo.MessageFlags(1 << 2)
	_, err := s.session.ChannelMessageEditComplex(&discordgo.MessageEdit{
		ID:      messageID,
		Channel: channelID,
		Flags:   flags,
	}, discordgo.WithContext(ctx))
	return s.check(err, "suppress")
}

// EditContent replaces the text of one of the bot's messages.
func (s *Sender) EditContent(ctx context.Context, channelID, messageID, content string) error {
	_, err := s.session.ChannelMessageEditComplex(&discordgo.MessageEdit{
		ID:      messageID,
		Channel: channelID,
		Content: &content,
	}, discordgo.WithContext(ctx))
	return s.check(err, "edit")
}

// Delete removes a message.
func (s *Sender) Delete(ctx context.Context, channelID, messageID string) error {
	return s.check(s.session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx)), "delete")
}
