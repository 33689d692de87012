// Package announce posts one-shot deployment notices for merges into a
// repository's primary branch. Nothing here is thread tracked.
package announce

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/JefferySJones/pullrequestpeon/internal/chat"
	"github.com/JefferySJones/pullrequestpeon/internal/compose"
	"github.com/JefferySJones/pullrequestpeon/internal/event"
)

// ErrNotDeployment is returned for events that are not merges into the primary branch.
var ErrNotDeployment = errors.New("event is not a deployment")

// Announcer delivers a deployment notice for a merged pull request.
type Announcer interface {
	Announce(ctx context.Context, ev event.PullRequestEvent) error
}

// Enqueuer hands a composed notice to a background queue.
type Enqueuer interface {
	EnqueueAnnouncement(ctx context.Context, channel string, p chat.Payload) error
}

// Direct posts synchronously through the gateway.
type Direct struct {
	gateway  chat.Gateway
	composer compose.Composer
	channel  string
}

// NewDirect creates an announcer that posts inline.
func NewDirect(gateway chat.Gateway, composer compose.Composer, channel string) *Direct {
	return &Direct{gateway: gateway, composer: composer, channel: channel}
}

func (d *Direct) Announce(ctx context.Context, ev event.PullRequestEvent) error {
	if !ev.IsDeployment() {
		return ErrNotDeployment
	}
	ts, err := d.gateway.Post(ctx, d.channel, d.composer.ComposeDeployment(ev))
	if err != nil {
		return fmt.Errorf("failed to post deployment notice: %w", err)
	}
	zerolog.Ctx(ctx).Info().
		Str("repo", ev.Repository).
		Str("branch", ev.Branch).
		Str("ts", ts).
		Msg("posted deployment notice")
	return nil
}

// Queued composes inline and defers the post to a job queue.
type Queued struct {
	queue    Enqueuer
	composer compose.Composer
	channel  string
}

// NewQueued creates an announcer backed by queue.
func NewQueued(queue Enqueuer, composer compose.Composer, channel string) *Queued {
	return &Queued{queue: queue, composer: composer, channel: channel}
}

func (q *Queued) Announce(ctx context.Context, ev event.PullRequestEvent) error {
	if !ev.IsDeployment() {
		return ErrNotDeployment
	}
	if err := q.queue.EnqueueAnnouncement(ctx, q.channel, q.composer.ComposeDeployment(ev)); err != nil {
		return fmt.Errorf("failed to queue deployment notice: %w", err)
	}
	zerolog.Ctx(ctx).Info().Str("repo", ev.Repository).Str("branch", ev.Branch).Msg("queued deployment notice")
	return nil
}
