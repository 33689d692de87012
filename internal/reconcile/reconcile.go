// Package reconcile keeps exactly one chat thread per branch in sync with
// the pull request's current state.
//
// There is no lock around a branch. Two concurrent deliveries for a branch
// with no live thread may both post; the newest stored record wins from then on.
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/JefferySJones/pullrequestpeon/internal/chat"
	"github.com/JefferySJones/pullrequestpeon/internal/compose"
	"github.com/JefferySJones/pullrequestpeon/internal/event"
	"github.com/JefferySJones/pullrequestpeon/internal/threadstore"
)

// ErrUpstreamUnavailable is returned when the store or chat provider fails.
// The delivery should be reported as failed so the webhook sender redelivers.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

const DefaultSkipLabel = "Skip Channel"

// OutcomeKind says what a reconciliation pass did.
type OutcomeKind string

const (
	Posted     OutcomeKind = "posted"
	Updated    OutcomeKind = "updated"
	Suppressed OutcomeKind = "suppressed"
)

// Suppression reasons.
const (
	ReasonSkipChannel = "skip-channel label present"
	ReasonNotInReview = "no live thread and pull request is not review-ready"
	ReasonIgnored     = "action not handled"
)

// Outcome of one Reconcile call.
type Outcome struct {
	Kind      OutcomeKind `json:"outcome"`
	Timestamp string      `json:"ts,omitempty"`
	Reason    string      `json:"reason,omitempty"`
}

// Options carries the opaque configuration the reconciler needs.
type Options struct {
	Channel    string
	ReadyLabel string
	SkipLabel  string
}

// Reconciler decides between post, update and suppress for each event.
type Reconciler struct {
	store    threadstore.Store
	gateway  chat.Gateway
	composer compose.Composer
	opts     Options
}

// New creates a Reconciler over the given collaborators.
func New(store threadstore.Store, gateway chat.Gateway, composer compose.Composer, opts Options) *Reconciler {
	if opts.ReadyLabel == "" {
		opts.ReadyLabel = compose.DefaultReadyLabel
	}
	if opts.SkipLabel == "" {
		opts.SkipLabel = DefaultSkipLabel
	}
	if composer.ReadyLabel == "" {
		composer.ReadyLabel = opts.ReadyLabel
	}
	return &Reconciler{
		store:    store,
		gateway:  gateway,
		composer: composer,
		opts:     opts,
	}
}

// Reconcile applies one event to the branch's thread.
func (r *Reconciler) Reconcile(ctx context.Context, ev event.PullRequestEvent) (Outcome, error) {
	logger := zerolog.Ctx(ctx).With().
		Str("branch", ev.Branch).
		Str("repo", ev.Repository).
		Str("action", ev.Kind.String()).
		Logger()

	if !ev.Reconcilable() {
		return suppressed(ReasonIgnored), nil
	}
	if ev.HasLabel(r.opts.SkipLabel) {
		logger.Debug().Msg("skip-channel label present, suppressing")
		return suppressed(ReasonSkipChannel), nil
	}

	rec, err := r.store.Latest(ctx, ev.Branch)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	liveTS := ""
	if rec != nil {
		if r.isLive(ctx, logger, rec.Timestamp) {
			liveTS = rec.Timestamp
		} else {
			logger.Info().Str("ts", rec.Timestamp).Msg("recorded thread is no longer live")
		}
	}

	if liveTS == "" && !ev.HasLabel(r.opts.ReadyLabel) && !ev.TriggeredBy(r.opts.ReadyLabel) {
		logger.Debug().Msg("no live thread and not in review, suppressing")
		return suppressed(ReasonNotInReview), nil
	}

	payload := r.composer.Compose(ev)

	if liveTS != "" {
		ts, err := r.gateway.Update(ctx, r.opts.Channel, liveTS, payload)
		if err != nil {
			return Outcome{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
		}
		logger.Info().Str("ts", ts).Msg("updated thread")
		return Outcome{Kind: Updated, Timestamp: liveTS}, nil
	}

	ts, err := r.gateway.Post(ctx, r.opts.Channel, payload)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if _, err := r.store.Insert(ctx, ev.Branch, ts); err != nil {
		// The message is out but unrecorded; the next delivery will post again.
		logger.Error().Err(err).Str("ts", ts).Msg("posted thread but failed to record it")
		return Outcome{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	logger.Info().Str("ts", ts).Msg("posted thread")
	return Outcome{Kind: Posted, Timestamp: ts}, nil
}

// isLive reports whether ts still names a visible message in the channel.
// Lookup failures count as not live.
func (r *Reconciler) isLive(ctx context.Context, logger zerolog.Logger, ts string) bool {
	msgs, err := r.gateway.History(ctx, r.opts.Channel, ts, 1)
	if err != nil {
		logger.Warn().Err(err).Str("ts", ts).Msg("history lookup failed, treating thread as not live")
		return false
	}
	for _, m := range msgs {
		if m.Timestamp == ts && !m.Deleted() {
			return true
		}
	}
	return false
}

func suppressed(reason string) Outcome {
	return Outcome{Kind: Suppressed, Reason: reason}
}
