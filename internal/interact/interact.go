// Package interact applies chat menu actions to a posted message payload.
// It never touches the thread store.
package interact

import (
	"errors"
	"fmt"

	"github.com/JefferySJones/pullrequestpeon/internal/chat"
	"github.com/JefferySJones/pullrequestpeon/internal/compose"
)

var (
	// ErrMalformedInteractiveState means the payload has no attachment or no
	// menu option for the action. The action is rejected.
	ErrMalformedInteractiveState = errors.New("malformed interactive state")
	ErrUnknownAction             = errors.New("unknown action")
)

// Action is a selected menu value.
type Action string

const (
	Approved Action = compose.ActionApproved
	Assign   Action = compose.ActionAssign
	Changes  Action = compose.ActionChanges
)

// ParseAction validates a raw menu value.
func ParseAction(v string) (Action, error) {
	switch a := Action(v); a {
	case Approved, Assign, Changes:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, v)
}

func (a Action) statusLine(actor string) string {
	switch a {
	case Approved:
		return "Approved by " + actor
	case Assign:
		return "Assigned to " + actor
	default:
		return "Changes requested by " + actor
	}
}

// consumes lists the menu values removed once a is applied.
func (a Action) consumes() map[string]bool {
	if a == Assign {
		return map[string]bool{string(Assign): true}
	}
	// approved and changes are terminal and close the menu
	return map[string]bool{string(Approved): true, string(Assign): true, string(Changes): true}
}

// Apply returns a copy of payload with the action recorded on the first
// attachment. The input payload is left untouched.
func Apply(payload chat.Payload, action Action, actor string) (chat.Payload, error) {
	if _, err := ParseAction(string(action)); err != nil {
		return payload, err
	}
	if len(payload.Attachments) == 0 {
		return payload, fmt.Errorf("%w: no attachment", ErrMalformedInteractiveState)
	}
	card := payload.Attachments[0]
	if len(card.Menu) == 0 {
		return payload, fmt.Errorf("%w: no menu", ErrMalformedInteractiveState)
	}
	offered := false
	for _, o := range card.Menu {
		if o.Value == string(action) {
			offered = true
			break
		}
	}
	if !offered {
		return payload, fmt.Errorf("%w: %s is not on the menu", ErrMalformedInteractiveState, action)
	}

	out := payload.Clone()
	first := &out.Attachments[0]

	line := action.statusLine(actor)
	if first.Text == "" {
		first.Text = line
	} else {
		first.Text += "\n" + line
	}

	remove := action.consumes()
	var menu []chat.Option
	for _, o := range first.Menu {
		if !remove[o.Value] {
			menu = append(menu, o)
		}
	}
	first.Menu = menu

	return out, nil
}
