package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"linkfix/internal/cache"
)

// ErrSummaryPending is returned while a summary for the same video is
// being generated.
var ErrSummaryPending = errors.New("summary is being generated")

const summaryPrompt = "I want you to provide a short summary of a TikTok video based off of the video description. " +
	"You are allowed to swear. If the video contains a movie or TV show, it is likely mentioned in the description. " +
	"Do not introduce yourself, the summary, or anything else. Only respond with the video summary.\n\n" +
	"TikTok video description:\n\n%s"

// Summarizer writes short video summaries with a chat completion model.
type Summarizer struct {
	client  *resty.Client
	baseURL string
	token   string
	model   string
	cache   cache.Store
	log     logrus.FieldLogger

	mu      sync.Mutex
	pending map[string]bool
}

// NewSummarizer creates the provider. It is disabled without a token.
func NewSummarizer(baseURL, token string, timeout time.Duration, store cache.Store, logger logrus.FieldLogger) *Summarizer {
	if store == nil {
		store = cache.Nop{}
	}
	return &Summarizer{
		// generation is slower than a lookup
		client:  resty.New().SetTimeout(6 * timeout),
		baseURL: trimBase(baseURL),
		token:   token,
		model:   "gpt-4o-mini",
		cache:   store,
		log:     logger.WithField("component", "summarizer"),
		pending: make(map[string]bool),
	}
}

func (s *Summarizer) GetName() string { return "openai" }

func (s *Summarizer) IsEnabled() bool { return s.token != "" }

// Summarize returns a summary for the video at link, described by
// description. Concurrent calls for the same link get ErrSummaryPending.
func (s *Summarizer) Summarize(ctx context.Context, link, description string) (string, error) {
	if !s.IsEnabled() {
		return "", ErrNotFound
	}
	key := cache.Key("enrich.Summarizer", link)

	var cached string
	if ok, err := cache.GetJSON(ctx, s.cache, key, &cached); err == nil && ok {
		return cached, nil
	}

	s.mu.Lock()
	if s.pending[link] {
		s.mu.Unlock()
		return "", ErrSummaryPending
	}
	s.pending[link] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, link)
		s.mu.Unlock()
	}()

	if description == "" {
		description = "No video description available."
	}
	summary, err := s.complete(ctx, fmt.Sprintf(summaryPrompt, description))
	if err != nil {
		return "", err
	}
	if err := cache.SetJSON(ctx, s.cache, key, summary, cache.TTLStatic); err != nil {
		s.log.WithError(err).Debug("Failed to cache summary")
	}
	return summary, nil
}

func (s *Summarizer) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		SetAuthToken(s.token).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]any{
			"model": s.model,
			"messages": []map[string]string{
				{"role": "user", "content": prompt},
			},
		}).
		Post(s.baseURL + "/v1/chat/completions")
	if err != nil {
		return "", err
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("chat completion returned status %d", resp.StatusCode())
	}
	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", fmt.Errorf("decode chat completion: %w", err)
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return "", ErrNotFound
	}
	return out.Choices[0].Message.Content, nil
}
