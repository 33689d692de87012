package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/slack-go/slack"
	"golang.org/x/time/rate"
)

// ErrUpstream wraps every failed call to the chat provider.
var ErrUpstream = errors.New("chat provider request failed")

// TombstoneSubType marks a deleted thread parent that still has replies.
const TombstoneSubType = "tombstone"

// Message is a history entry.
type Message struct {
	Timestamp string
	SubType   string
}

// Deleted reports whether the entry only marks a removed message.
func (m Message) Deleted() bool {
	switch m.SubType {
	case slack.MsgSubTypeMessageDeleted, TombstoneSubType:
		return true
	}
	return false
}

// Gateway is the outbound chat surface. Each call is a single request.
type Gateway interface {
	Post(ctx context.Context, channel string, p Payload) (string, error)
	Update(ctx context.Context, channel, ts string, p Payload) (string, error)
	History(ctx context.Context, channel, latest string, limit int) ([]Message, error)
}

// SlackConfig configures the Slack Web API client.
type SlackConfig struct {
	Token string
	// APIURL overrides https://slack.com/api/ and must end with a slash.
	APIURL        string
	RatePerSecond float64
	Burst         int
	Timeout       time.Duration
}

// SlackGateway implements Gateway over the Slack Web API.
type SlackGateway struct {
	client  *slack.Client
	limiter *rate.Limiter
}

// NewSlackGateway creates a Slack backed gateway
func NewSlackGateway(cfg SlackConfig) *SlackGateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	opts := []slack.Option{
		slack.OptionHTTPClient(&http.Client{Timeout: timeout}),
	}
	if cfg.APIURL != "" {
		opts = append(opts, slack.OptionAPIURL(cfg.APIURL))
	}

	limit := rate.Limit(cfg.RatePerSecond)
	if cfg.RatePerSecond <= 0 {
		limit = rate.Every(1 * time.Second)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 5
	}

	return &SlackGateway{
		client:  slack.New(cfg.Token, opts...),
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (g *SlackGateway) wait(ctx context.Context) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limiter: %v", ErrUpstream, err)
	}
	return nil
}

func messageOptions(p Payload) []slack.MsgOption {
	opts := []slack.MsgOption{
		slack.MsgOptionText(p.Text, false),
		slack.MsgOptionAttachments(p.SlackAttachments()...),
		slack.MsgOptionParse(true),
		slack.MsgOptionLinkNames(true),
	}
	if p.ThreadTS != "" {
		opts = append(opts, slack.MsgOptionTS(p.ThreadTS))
	}
	return opts
}

// Post sends a new message and returns its timestamp.
func (g *SlackGateway) Post(ctx context.Context, channel string, p Payload) (string, error) {
	if err := g.wait(ctx); err != nil {
		return "", err
	}
	_, ts, err := g.client.PostMessageContext(ctx, channel, messageOptions(p)...)
	if err != nil {
		return "", fmt.Errorf("%w: chat.postMessage: %v", ErrUpstream, err)
	}
	log.Debug().Str("channel", channel).Str("ts", ts).Msg("posted message")
	return ts, nil
}

// Update replaces the content of the message at ts.
func (g *SlackGateway) Update(ctx context.Context, channel, ts string, p Payload) (string, error) {
	if err := g.wait(ctx); err != nil {
		return "", err
	}
	_, newTS, _, err := g.client.UpdateMessageContext(ctx, channel, ts, messageOptions(p)...)
	if err != nil {
		return "", fmt.Errorf("%w: chat.update: %v", ErrUpstream, err)
	}
	log.Debug().Str("channel", channel).Str("ts", newTS).Msg("updated message")
	return newTS, nil
}

// History returns up to limit entries at or before latest, newest first.
func (g *SlackGateway) History(ctx context.Context, channel, latest string, limit int) ([]Message, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	resp, err := g.client.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: channel,
		Latest:    latest,
		Inclusive: true,
		Limit:     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: conversations.history: %v", ErrUpstream, err)
	}

	out := make([]Message, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		out = append(out, Message{Timestamp: m.Timestamp, SubType: m.SubType})
	}
	return out, nil
}
