package event

import (
	"fmt"

	"github.com/google/go-github/v73/github"
)

// FromGitHub validates a decoded GitHub pull_request delivery and converts it.
func FromGitHub(ev *github.PullRequestEvent) (PullRequestEvent, error) {
	if ev == nil || ev.PullRequest == nil {
		return PullRequestEvent{}, fmt.Errorf("%w: no pull_request", ErrMalformedEvent)
	}
	pr := ev.PullRequest
	repo := ev.GetRepo()

	out := PullRequestEvent{
		Action:        ev.GetAction(),
		Kind:          Classify(ev.GetAction()),
		Branch:        pr.GetHead().GetRef(),
		BaseBranch:    pr.GetBase().GetRef(),
		DefaultBranch: repo.GetDefaultBranch(),
		Repository:    repo.GetName(),
		Owner:         repo.GetOwner().GetLogin(),
		Number:        pr.GetNumber(),
		Title:         pr.GetTitle(),
		URL:           pr.GetHTMLURL(),
		Author:        pr.GetUser().GetLogin(),
		Merged:        pr.GetMerged(),
		Mergeable:     pr.Mergeable,
		Sender:        ev.GetSender().GetLogin(),
	}

	if out.Branch == "" {
		return PullRequestEvent{}, fmt.Errorf("%w: no head branch", ErrMalformedEvent)
	}
	if out.Repository == "" {
		return PullRequestEvent{}, fmt.Errorf("%w: no repository", ErrMalformedEvent)
	}

	for _, l := range pr.Labels {
		if l == nil || l.GetName() == "" {
			continue
		}
		out.Labels = append(out.Labels, Label{Name: l.GetName(), Color: l.GetColor()})
	}
	for _, u := range pr.RequestedReviewers {
		if login := u.GetLogin(); login != "" {
			out.Reviewers = append(out.Reviewers, login)
		}
	}
	for _, u := range pr.Assignees {
		if login := u.GetLogin(); login != "" {
			out.Assignees = append(out.Assignees, login)
		}
	}

	if out.Kind == KindLabeled || out.Kind == KindUnlabeled {
		if ev.Label == nil || ev.Label.GetName() == "" {
			return PullRequestEvent{}, fmt.Errorf("%w: no label", ErrMalformedEvent)
		}
		out.TriggerLabel = &Label{Name: ev.Label.GetName(), Color: ev.Label.GetColor()}
	}

	return out, nil
}
