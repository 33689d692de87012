package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JefferySJones/pullrequestpeon/internal/chat"
	"github.com/JefferySJones/pullrequestpeon/internal/compose"
	"github.com/JefferySJones/pullrequestpeon/internal/event"
	"github.com/JefferySJones/pullrequestpeon/internal/threadstore"
)

type memStore struct {
	mu        sync.Mutex
	records   []threadstore.Record
	latestErr error
	insertErr error
}

func (s *memStore) Insert(_ context.Context, branch, ts string) (threadstore.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return threadstore.Record{}, s.insertErr
	}
	rec := threadstore.Record{ID: int64(len(s.records) + 1), Branch: branch, Timestamp: ts, CreatedAt: time.Now()}
	s.records = append(s.records, rec)
	return rec, nil
}

func (s *memStore) Latest(_ context.Context, branch string) (*threadstore.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latestErr != nil {
		return nil, s.latestErr
	}
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].Branch == branch {
			rec := s.records[i]
			return &rec, nil
		}
	}
	return nil, nil
}

func (s *memStore) Ping(context.Context) error { return nil }
func (s *memStore) Close() error               { return nil }

type gatewayCall struct {
	method  string
	channel string
	ts      string
	payload chat.Payload
}

type fakeGateway struct {
	mu      sync.Mutex
	calls   []gatewayCall
	live    map[string]string // ts -> subtype
	nextTS  int
	postErr error
	histErr error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{live: map[string]string{}, nextTS: 1000}
}

func (g *fakeGateway) Post(_ context.Context, channel string, p chat.Payload) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, gatewayCall{method: "post", channel: channel, payload: p})
	if g.postErr != nil {
		return "", g.postErr
	}
	g.nextTS++
	ts := fmt.Sprintf("%d.000100", g.nextTS)
	g.live[ts] = ""
	return ts, nil
}

func (g *fakeGateway) Update(_ context.Context, channel, ts string, p chat.Payload) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, gatewayCall{method: "update", channel: channel, ts: ts, payload: p})
	if g.postErr != nil {
		return "", g.postErr
	}
	return ts, nil
}

func (g *fakeGateway) History(_ context.Context, channel, latest string, limit int) ([]chat.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, gatewayCall{method: "history", channel: channel, ts: latest})
	if g.histErr != nil {
		return nil, g.histErr
	}
	if sub, ok := g.live[latest]; ok {
		return []chat.Message{{Timestamp: latest, SubType: sub}}, nil
	}
	return nil, nil
}

func (g *fakeGateway) methods() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.calls))
	for _, c := range g.calls {
		out = append(out, c.method)
	}
	return out
}

func (g *fakeGateway) last(method string) gatewayCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := len(g.calls) - 1; i >= 0; i-- {
		if g.calls[i].method == method {
			return g.calls[i]
		}
	}
	return gatewayCall{}
}

func newReconciler(store threadstore.Store, gw chat.Gateway) *Reconciler {
	return New(store, gw, compose.Composer{}, Options{Channel: "C123"})
}

var readyLabel = event.Label{Name: "1 - Review: Ready", Color: "0e8a16"}

func labeledReady() event.PullRequestEvent {
	return event.PullRequestEvent{
		Action:       "labeled",
		Kind:         event.KindLabeled,
		Branch:       "feat/x",
		Repository:   "payments",
		Owner:        "acme",
		Title:        "Add refunds",
		URL:          "https://github.com/acme/payments/pull/7",
		Author:       "carol",
		Labels:       []event.Label{readyLabel},
		TriggerLabel: &readyLabel,
	}
}

func TestFirstReadyLabelPostsAndRecords(t *testing.T) {
	store := &memStore{}
	gw := newFakeGateway()
	r := newReconciler(store, gw)

	out, err := r.Reconcile(context.Background(), labeledReady())
	require.NoError(t, err)
	assert.Equal(t, Posted, out.Kind)
	assert.Equal(t, []string{"post"}, gw.methods(), "no history lookup without a record")

	post := gw.last("post")
	assert.Equal(t, "C123", post.channel)
	assert.Contains(t, post.payload.Text, "@prps")
	assert.Contains(t, post.payload.Text, compose.SearchLink("carol", "acme"))

	rec, err := store.Latest(context.Background(), "feat/x")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, out.Timestamp, rec.Timestamp)
}

func TestUnlabelOnLiveThreadUpdates(t *testing.T) {
	store := &memStore{}
	gw := newFakeGateway()
	r := newReconciler(store, gw)
	ctx := context.Background()

	first, err := r.Reconcile(ctx, labeledReady())
	require.NoError(t, err)

	ev := labeledReady()
	ev.Action = "unlabeled"
	ev.Kind = event.KindUnlabeled
	ev.Labels = nil

	out, err := r.Reconcile(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, Updated, out.Kind)
	assert.Equal(t, first.Timestamp, out.Timestamp)

	update := gw.last("update")
	assert.Equal(t, first.Timestamp, update.ts)
	assert.Len(t, update.payload.Attachments, 1, "label attachment removed")
	assert.NotContains(t, update.payload.Text, "github.com/pulls")
	assert.Len(t, store.records, 1, "updates never write a record")
}

func TestReplayUpdatesInsteadOfPosting(t *testing.T) {
	store := &memStore{}
	gw := newFakeGateway()
	r := newReconciler(store, gw)
	ctx := context.Background()

	_, err := r.Reconcile(ctx, labeledReady())
	require.NoError(t, err)
	out, err := r.Reconcile(ctx, labeledReady())
	require.NoError(t, err)

	assert.Equal(t, Updated, out.Kind)
	assert.Equal(t, []string{"post", "history", "update"}, gw.methods())
}

func TestNotReadyWithoutThreadIsSuppressed(t *testing.T) {
	events := map[string]event.PullRequestEvent{}

	unassigned := labeledReady()
	unassigned.Action, unassigned.Kind, unassigned.TriggerLabel = "unassigned", event.KindUnassigned, nil
	unassigned.Labels = []event.Label{{Name: "0 - WIP", Color: "fbca04"}}
	events["unassigned"] = unassigned

	otherLabel := labeledReady()
	otherLabel.Labels = []event.Label{{Name: "bug", Color: "d73a4a"}}
	otherLabel.TriggerLabel = &otherLabel.Labels[0]
	events["labeled other"] = otherLabel

	reviewRequested := labeledReady()
	reviewRequested.Action, reviewRequested.Kind, reviewRequested.TriggerLabel = "review_requested", event.KindReviewRequested, nil
	reviewRequested.Labels = nil
	reviewRequested.Reviewers = []string{"dave"}
	events["review requested"] = reviewRequested

	for name, ev := range events {
		gw := newFakeGateway()
		out, err := newReconciler(&memStore{}, gw).Reconcile(context.Background(), ev)
		require.NoError(t, err, name)
		assert.Equal(t, Suppressed, out.Kind, name)
		assert.Equal(t, ReasonNotInReview, out.Reason, name)
		assert.Empty(t, gw.methods(), name)
	}
}

func TestReadyLabelAlreadyPresentPosts(t *testing.T) {
	ev := labeledReady()
	ev.Action, ev.Kind, ev.TriggerLabel = "assigned", event.KindAssigned, nil
	ev.Assignees = []string{"erin"}

	gw := newFakeGateway()
	out, err := newReconciler(&memStore{}, gw).Reconcile(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, Posted, out.Kind)
	assert.Contains(t, gw.last("post").payload.Text, "Assigned to erin")
}

func TestSkipChannelAlwaysSuppresses(t *testing.T) {
	store := &memStore{}
	gw := newFakeGateway()
	r := newReconciler(store, gw)
	ctx := context.Background()

	_, err := r.Reconcile(ctx, labeledReady())
	require.NoError(t, err)
	before := len(gw.methods())

	ev := labeledReady()
	ev.Labels = append(ev.Labels, event.Label{Name: "Skip Channel", Color: "cccccc"})

	out, err := r.Reconcile(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, Suppressed, out.Kind)
	assert.Equal(t, ReasonSkipChannel, out.Reason)
	assert.Len(t, gw.methods(), before, "no chat calls")

	out, err = newReconciler(&memStore{}, newFakeGateway()).Reconcile(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, Suppressed, out.Kind)
}

func TestDeletedThreadIsReposted(t *testing.T) {
	for _, subtype := range []string{slack.MsgSubTypeMessageDeleted, chat.TombstoneSubType} {
		t.Run(subtype, func(t *testing.T) {
			store := &memStore{}
			gw := newFakeGateway()
			r := newReconciler(store, gw)
			ctx := context.Background()

			first, err := r.Reconcile(ctx, labeledReady())
			require.NoError(t, err)
			gw.live[first.Timestamp] = subtype

			out, err := r.Reconcile(ctx, labeledReady())
			require.NoError(t, err)
			assert.Equal(t, Posted, out.Kind)
			assert.NotEqual(t, first.Timestamp, out.Timestamp)
			assert.NotContains(t, gw.methods(), "update")

			rec, err := store.Latest(ctx, "feat/x")
			require.NoError(t, err)
			assert.Equal(t, out.Timestamp, rec.Timestamp)
			assert.Len(t, store.records, 2)
		})
	}
}

func TestPurgedThreadIsNotUpdated(t *testing.T) {
	store := &memStore{}
	_, err := store.Insert(context.Background(), "feat/x", "999.000100")
	require.NoError(t, err)

	gw := newFakeGateway()
	ev := labeledReady()
	ev.Action, ev.Kind, ev.TriggerLabel = "unassigned", event.KindUnassigned, nil
	ev.Labels = nil

	out, err := newReconciler(store, gw).Reconcile(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, Suppressed, out.Kind, "stale record counts as no thread")
	assert.Equal(t, []string{"history"}, gw.methods())
}

func TestHistoryFailureFallsBackToPost(t *testing.T) {
	store := &memStore{}
	gw := newFakeGateway()
	r := newReconciler(store, gw)
	ctx := context.Background()

	_, err := r.Reconcile(ctx, labeledReady())
	require.NoError(t, err)

	gw.histErr = errors.New("invalid_auth")
	out, err := r.Reconcile(ctx, labeledReady())
	require.NoError(t, err)
	assert.Equal(t, Posted, out.Kind)
	assert.Len(t, store.records, 2)
}

func TestPostFailureIsUpstreamUnavailable(t *testing.T) {
	store := &memStore{}
	gw := newFakeGateway()
	gw.postErr = errors.New("boom")

	_, err := newReconciler(store, gw).Reconcile(context.Background(), labeledReady())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUpstreamUnavailable))
	assert.Equal(t, []string{"post"}, gw.methods(), "no internal retry")
	assert.Empty(t, store.records)
}

func TestStoreFailureIsUpstreamUnavailable(t *testing.T) {
	gw := newFakeGateway()
	store := &memStore{latestErr: threadstore.ErrUnavailable}

	_, err := newReconciler(store, gw).Reconcile(context.Background(), labeledReady())
	assert.True(t, errors.Is(err, ErrUpstreamUnavailable))
	assert.Empty(t, gw.methods())

	store = &memStore{insertErr: threadstore.ErrUnavailable}
	_, err = newReconciler(store, gw).Reconcile(context.Background(), labeledReady())
	assert.True(t, errors.Is(err, ErrUpstreamUnavailable))
}

func TestIgnoredActions(t *testing.T) {
	for _, kind := range []event.Kind{event.KindOther, event.KindClosed} {
		ev := labeledReady()
		ev.Kind = kind
		gw := newFakeGateway()

		out, err := newReconciler(&memStore{}, gw).Reconcile(context.Background(), ev)
		require.NoError(t, err)
		assert.Equal(t, Suppressed, out.Kind)
		assert.Equal(t, ReasonIgnored, out.Reason)
		assert.Empty(t, gw.methods())
	}
}

func TestBranchesAreIndependent(t *testing.T) {
	store := &memStore{}
	gw := newFakeGateway()
	r := newReconciler(store, gw)
	ctx := context.Background()

	_, err := r.Reconcile(ctx, labeledReady())
	require.NoError(t, err)

	other := labeledReady()
	other.Branch = "feat/y"
	out, err := r.Reconcile(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, Posted, out.Kind)
	assert.True(t, strings.HasSuffix(out.Timestamp, ".000100"))
}
