// Package event classifies GitHub pull request deliveries and holds the
// immutable snapshot each reconciliation pass works from.
package event

import (
	"errors"
	"strings"
)

// ErrMalformedEvent marks a delivery that is missing fields the engine needs.
// Such deliveries are acknowledged and dropped, never retried.
var ErrMalformedEvent = errors.New("malformed event")

// Kind is the classified action of a pull request delivery.
type Kind int

const (
	KindOther Kind = iota
	KindLabeled
	KindUnlabeled
	KindReviewRequested
	KindReviewRequestRemoved
	KindAssigned
	KindUnassigned
	KindClosed
)

func (k Kind) String() string {
	switch k {
	case KindLabeled:
		return "labeled"
	case KindUnlabeled:
		return "unlabeled"
	case KindReviewRequested:
		return "review_requested"
	case KindReviewRequestRemoved:
		return "review_request_removed"
	case KindAssigned:
		return "assigned"
	case KindUnassigned:
		return "unassigned"
	case KindClosed:
		return "closed"
	default:
		return "other"
	}
}

// Classify maps a webhook action string onto a Kind.
func Classify(action string) Kind {
	switch action {
	case "labeled":
		return KindLabeled
	case "unlabeled":
		return KindUnlabeled
	case "review_requested":
		return KindReviewRequested
	case "review_request_removed":
		return KindReviewRequestRemoved
	case "assigned":
		return KindAssigned
	case "unassigned":
		return KindUnassigned
	case "closed":
		return KindClosed
	default:
		return KindOther
	}
}

// Label is a pull request label as the source reports it. Color is hex
// without a leading '#'.
type Label struct {
	Name  string
	Color string
}

// PullRequestEvent is an immutable snapshot of one webhook delivery.
type PullRequestEvent struct {
	Action        string
	Kind          Kind
	Branch        string
	BaseBranch    string
	DefaultBranch string
	Repository    string
	Owner         string
	Number        int
	Title         string
	URL           string
	Author        string
	Merged        bool
	Mergeable     *bool
	Labels        []Label
	// TriggerLabel is the label added or removed by a labeled/unlabeled delivery.
	TriggerLabel *Label
	Reviewers    []string
	Assignees    []string
	Sender       string
}

// Reconcilable reports whether the event should run through thread reconciliation.
func (e PullRequestEvent) Reconcilable() bool {
	switch e.Kind {
	case KindLabeled, KindUnlabeled,
		KindReviewRequested, KindReviewRequestRemoved,
		KindAssigned, KindUnassigned:
		return true
	}
	return false
}

// IsDeployment reports whether a closed event is a merge into the primary branch.
func (e PullRequestEvent) IsDeployment() bool {
	return e.Kind == KindClosed && e.Merged && e.DefaultBranch != "" && e.BaseBranch == e.DefaultBranch
}

// HasLabel reports whether any current label name contains substr.
func (e PullRequestEvent) HasLabel(substr string) bool {
	if substr == "" {
		return false
	}
	for _, l := range e.Labels {
		if strings.Contains(l.Name, substr) {
			return true
		}
	}
	return false
}

// TriggeredBy reports whether this is a labeled delivery whose label contains substr.
func (e PullRequestEvent) TriggeredBy(substr string) bool {
	return e.Kind == KindLabeled && e.TriggerLabel != nil && substr != "" &&
		strings.Contains(e.TriggerLabel.Name, substr)
}
