// Package chat is the gateway to the chat provider. It owns the provider
// neutral message payload and its mapping onto Slack attachments.
package chat

import (
	"github.com/slack-go/slack"
)

// MenuActionName names the select action carrying the interactive menu.
const MenuActionName = "pr_action"

// Option is one entry of an interactive menu.
type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Attachment is a color coded block of a message.
type Attachment struct {
	CallbackID string   `json:"callback_id,omitempty"`
	Fallback   string   `json:"fallback,omitempty"`
	Pretext    string   `json:"pretext,omitempty"`
	Title      string   `json:"title,omitempty"`
	TitleLink  string   `json:"title_link,omitempty"`
	Text       string   `json:"text,omitempty"`
	Color      string   `json:"color,omitempty"`
	Menu       []Option `json:"menu,omitempty"`
}

// Payload is the composed content of one chat message.
type Payload struct {
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments,omitempty"`
	// ThreadTS posts the message as a reply when set.
	ThreadTS string `json:"thread_ts,omitempty"`
}

// Clone returns a deep copy.
func (p Payload) Clone() Payload {
	out := Payload{Text: p.Text, ThreadTS: p.ThreadTS}
	if p.Attachments != nil {
		out.Attachments = make([]Attachment, len(p.Attachments))
		for i, a := range p.Attachments {
			out.Attachments[i] = a
			if a.Menu != nil {
				out.Attachments[i].Menu = append([]Option(nil), a.Menu...)
			}
		}
	}
	return out
}

// SlackAttachments renders the attachments in Slack's legacy attachment format.
func (p Payload) SlackAttachments() []slack.Attachment {
	out := make([]slack.Attachment, 0, len(p.Attachments))
	for _, a := range p.Attachments {
		sa := slack.Attachment{
			CallbackID: a.CallbackID,
			Fallback:   a.Fallback,
			Pretext:    a.Pretext,
			Title:      a.Title,
			TitleLink:  a.TitleLink,
			Text:       a.Text,
			Color:      a.Color,
		}
		if len(a.Menu) > 0 {
			opts := make([]slack.AttachmentActionOption, 0, len(a.Menu))
			for _, o := range a.Menu {
				opts = append(opts, slack.AttachmentActionOption{Text: o.Label, Value: o.Value})
			}
			sa.Actions = []slack.AttachmentAction{{
				Name:    MenuActionName,
				Text:    "Update status",
				Type:    "select",
				Options: opts,
			}}
		}
		out = append(out, sa)
	}
	return out
}

// SlackMessage renders the payload as the message body Slack re-renders on
// an interactive response.
func (p Payload) SlackMessage() slack.Msg {
	return slack.Msg{
		Text:            p.Text,
		Attachments:     p.SlackAttachments(),
		ThreadTimestamp: p.ThreadTS,
		ReplaceOriginal: true,
	}
}

// FromSlackMessage reads a previously posted Slack message back into a Payload.
func FromSlackMessage(m slack.Message) Payload {
	p := Payload{Text: m.Text, ThreadTS: m.ThreadTimestamp}
	for _, sa := range m.Attachments {
		a := Attachment{
			CallbackID: sa.CallbackID,
			Fallback:   sa.Fallback,
			Pretext:    sa.Pretext,
			Title:      sa.Title,
			TitleLink:  sa.TitleLink,
			Text:       sa.Text,
			Color:      sa.Color,
		}
		for _, act := range sa.Actions {
			if act.Type != "select" {
				continue
			}
			for _, o := range act.Options {
				a.Menu = append(a.Menu, Option{Label: o.Text, Value: o.Value})
			}
		}
		p.Attachments = append(p.Attachments, a)
	}
	return p
}
