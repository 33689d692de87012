// Package compose turns a pull request snapshot into chat content. Everything
// here is pure; the same event always produces the same payload.
package compose

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/JefferySJones/pullrequestpeon/internal/chat"
	"github.com/JefferySJones/pullrequestpeon/internal/event"
)

const (
	DefaultMention    = "@prps"
	DefaultReadyLabel = "Review: Ready"
	CardCallbackID    = "pr_actions"

	defaultColor = "#439fe0"
)

// Menu actions offered on a review-ready card.
const (
	ActionApproved = "approved"
	ActionAssign   = "assign"
	ActionChanges  = "changes"
)

// ReviewMenu is the full interactive menu attached to a review-ready card.
func ReviewMenu() []chat.Option {
	return []chat.Option{
		{Label: "Approved", Value: ActionApproved},
		{Label: "Assign to me", Value: ActionAssign},
		{Label: "Changes requested", Value: ActionChanges},
	}
}

// labelDisplay maps workflow stage labels onto their display form.
var labelDisplay = map[string]string{
	"0 - WIP":               ":construction: WIP",
	"1 - Review: Ready":     ":eyes: Review: Ready",
	"2 - Changes Requested": ":memo: Changes Requested",
	"3 - Approved":          ":white_check_mark: Approved",
	"4 - Ready to Merge":    ":rocket: Ready to Merge",
	"Skip Channel":          ":no_bell: Skip Channel",
}

// Composer builds message payloads. The zero value uses the default mention
// and ready label.
type Composer struct {
	// Mentions maps a repository name to the team tag notified for it.
	Mentions       map[string]string
	DefaultMention string
	ReadyLabel     string
}

func (c Composer) mention(repo string) string {
	if tag, ok := c.Mentions[repo]; ok && tag != "" {
		return tag
	}
	if c.DefaultMention != "" {
		return c.DefaultMention
	}
	return DefaultMention
}

func (c Composer) readyLabel() string {
	if c.ReadyLabel != "" {
		return c.ReadyLabel
	}
	return DefaultReadyLabel
}

// DisplayLabel applies the cosmetic substitutions to a label name.
func DisplayLabel(name string) string {
	if display, ok := labelDisplay[name]; ok {
		return display
	}
	return name
}

// Color renders a label color as a single '#' prefixed hex string.
func Color(hex string) string {
	hex = strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if hex == "" {
		return defaultColor
	}
	return "#" + hex
}

// SearchLink is the open pull requests by author within owner.
func SearchLink(author, owner string) string {
	q := fmt.Sprintf("is:open is:pr author:%s user:%s", author, owner)
	return "https://github.com/pulls?q=" + url.QueryEscape(q)
}

// Compose renders the thread message for an event from its full current state.
func (c Composer) Compose(e event.PullRequestEvent) chat.Payload {
	ready := e.HasLabel(c.readyLabel())

	var lines []string
	if ready && e.Author != "" {
		lines = append(lines, fmt.Sprintf("<%s|Open pull requests by %s>", SearchLink(e.Author, e.Owner), e.Author))
	}
	if len(e.Reviewers) > 0 {
		lines = append(lines, "Requesting review from "+strings.Join(e.Reviewers, ", "))
	}
	if len(e.Assignees) > 0 {
		lines = append(lines, "Assigned to "+strings.Join(e.Assignees, ", "))
	}
	lines = append(lines, fmt.Sprintf("%s - Review requested from %s", c.mention(e.Repository), e.Author))

	card := chat.Attachment{
		CallbackID: CardCallbackID,
		Fallback:   e.Title,
		Title:      e.Title,
		TitleLink:  e.URL,
		Text:       c.cardText(e),
		Color:      c.cardColor(e),
	}
	if ready {
		card.Menu = ReviewMenu()
	}

	atts := []chat.Attachment{card}
	for _, l := range e.Labels {
		display := DisplayLabel(l.Name)
		atts = append(atts, chat.Attachment{
			Fallback: display,
			Text:     display,
			Color:    Color(l.Color),
		})
	}

	return chat.Payload{
		Text:        strings.Join(lines, "\n"),
		Attachments: atts,
	}
}

func (c Composer) cardText(e event.PullRequestEvent) string {
	text := fmt.Sprintf("%s/%s `%s`", e.Owner, e.Repository, e.Branch)
	if e.Mergeable != nil && !*e.Mergeable {
		text += "\n:warning: Has merge conflicts"
	}
	return text
}

func (c Composer) cardColor(e event.PullRequestEvent) string {
	for _, l := range e.Labels {
		if strings.Contains(l.Name, c.readyLabel()) {
			return Color(l.Color)
		}
	}
	if len(e.Labels) > 0 {
		return Color(e.Labels[0].Color)
	}
	return defaultColor
}

// ComposeDeployment renders the one-shot merge announcement.
func (c Composer) ComposeDeployment(e event.PullRequestEvent) chat.Payload {
	return chat.Payload{
		Text: fmt.Sprintf("%s - :rocket: %s merged into %s by %s", c.mention(e.Repository), e.Branch, e.BaseBranch, e.Sender),
		Attachments: []chat.Attachment{{
			Fallback:  e.Title,
			Title:     e.Title,
			TitleLink: e.URL,
			Text:      fmt.Sprintf("%s/%s", e.Owner, e.Repository),
			Color:     "#36a64f",
		}},
	}
}
