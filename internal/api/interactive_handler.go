package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	"github.com/JefferySJones/pullrequestpeon/internal/chat"
	"github.com/JefferySJones/pullrequestpeon/internal/compose"
	"github.com/JefferySJones/pullrequestpeon/internal/interact"
)

// handleSlackInteraction applies a menu selection to the message it came
// from and answers with the replacement message. Rejected actions leave the
// original untouched and answer with an ephemeral notice instead.
func (s *Server) handleSlackInteraction(c echo.Context) error {
	req := c.Request()
	logger := zerolog.Ctx(req.Context())

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "failed to read body"})
	}

	if err := verifySlackRequest(req.Header, body, s.deps.SlackSigningSecret); err != nil {
		logger.Warn().Err(err).Msg("rejected slack interaction")
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
	}

	cb, err := parseInteraction(body)
	if err != nil {
		logger.Warn().Err(err).Msg("malformed slack interaction")
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "malformed payload"})
	}

	value, err := selectedValue(cb)
	if err != nil {
		return rejectInteraction(c, logger, err)
	}
	action, err := interact.ParseAction(value)
	if err != nil {
		return rejectInteraction(c, logger, err)
	}

	actor := cb.User.Name
	if actor == "" {
		actor = cb.User.ID
	}

	updated, err := interact.Apply(chat.FromSlackMessage(cb.OriginalMessage), action, actor)
	if err != nil {
		return rejectInteraction(c, logger, err)
	}

	logger.Info().Str("action", string(action)).Str("actor", actor).Msg("applied interactive action")
	return c.JSON(http.StatusOK, updated.SlackMessage())
}

func verifySlackRequest(header http.Header, body []byte, secret string) error {
	sv, err := slack.NewSecretsVerifier(header, secret)
	if err != nil {
		return err
	}
	if _, err := sv.Write(body); err != nil {
		return err
	}
	return sv.Ensure()
}

func parseInteraction(body []byte) (slack.InteractionCallback, error) {
	var cb slack.InteractionCallback
	form, err := url.ParseQuery(string(body))
	if err != nil {
		return cb, err
	}
	raw := form.Get("payload")
	if raw == "" {
		return cb, errors.New("missing payload field")
	}
	if err := json.Unmarshal([]byte(raw), &cb); err != nil {
		return cb, err
	}
	return cb, nil
}

func selectedValue(cb slack.InteractionCallback) (string, error) {
	if cb.CallbackID != compose.CardCallbackID {
		return "", fmt.Errorf("%w: unexpected callback %q", interact.ErrMalformedInteractiveState, cb.CallbackID)
	}
	for _, a := range cb.ActionCallback.AttachmentActions {
		if a == nil || a.Name != chat.MenuActionName {
			continue
		}
		if len(a.SelectedOptions) > 0 {
			return a.SelectedOptions[0].Value, nil
		}
		if a.Value != "" {
			return a.Value, nil
		}
	}
	return "", fmt.Errorf("%w: no menu selection", interact.ErrMalformedInteractiveState)
}

func rejectInteraction(c echo.Context, logger *zerolog.Logger, err error) error {
	logger.Warn().Err(err).Msg("rejected interactive action")
	return c.JSON(http.StatusOK, slack.Msg{
		ResponseType:    slack.ResponseTypeEphemeral,
		ReplaceOriginal: false,
		Text:            "That action is no longer available on this pull request.",
	})
}
