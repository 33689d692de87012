package api

import (
	"errors"
	"net/http"

	"github.com/google/go-github/v73/github"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/JefferySJones/pullrequestpeon/internal/announce"
	"github.com/JefferySJones/pullrequestpeon/internal/event"
)

// handleGitHubWebhook verifies, parses and dispatches one GitHub delivery.
// Every delivery gets a definitive answer: 2xx when handled or dropped,
// 502 when an upstream call failed and GitHub should redeliver.
func (s *Server) handleGitHubWebhook(c echo.Context) error {
	req := c.Request()
	ctx := req.Context()
	eventType := github.WebHookType(req)
	logger := zerolog.Ctx(ctx).With().
		Str("event", eventType).
		Str("delivery", github.DeliveryID(req)).
		Logger()

	body, err := github.ValidatePayload(req, []byte(s.deps.GitHubSecret))
	if err != nil {
		logger.Warn().Err(err).Msg("rejected webhook payload")
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"status": "rejected",
			"error":  "invalid signature or payload",
		})
	}

	if eventType != "pull_request" {
		logger.Debug().Msg("ignoring non pull_request event")
		return c.JSON(http.StatusOK, map[string]string{
			"status": "ignored",
			"event":  eventType,
		})
	}

	parsed, err := github.ParseWebHook(eventType, body)
	if err != nil {
		return s.dropMalformed(c, logger, err)
	}
	ghEvent, ok := parsed.(*github.PullRequestEvent)
	if !ok {
		return s.dropMalformed(c, logger, event.ErrMalformedEvent)
	}

	ev, err := event.FromGitHub(ghEvent)
	if err != nil {
		return s.dropMalformed(c, logger, err)
	}
	logger = logger.With().Str("branch", ev.Branch).Str("action", ev.Action).Logger()
	ctx = logger.WithContext(ctx)

	switch {
	case ev.Kind == event.KindClosed:
		return s.announceDeployment(c, logger, ev)
	case ev.Reconcilable():
		outcome, err := s.deps.Reconciler.Reconcile(ctx, ev)
		if err != nil {
			logger.Error().Err(err).Msg("reconciliation failed")
			return c.JSON(http.StatusBadGateway, map[string]string{
				"status": "failed",
				"error":  err.Error(),
			})
		}
		return c.JSON(http.StatusOK, outcome)
	default:
		return c.JSON(http.StatusOK, map[string]string{
			"status": "ignored",
			"reason": "action not handled",
		})
	}
}

func (s *Server) announceDeployment(c echo.Context, logger zerolog.Logger, ev event.PullRequestEvent) error {
	if !ev.IsDeployment() {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "ignored",
			"reason": "not a deployment",
		})
	}
	if s.deps.Announcer == nil {
		logger.Debug().Msg("merged into default branch without a deploy channel")
		return c.JSON(http.StatusOK, map[string]string{
			"status": "ignored",
			"reason": "deploy channel not configured",
		})
	}

	ctx := logger.WithContext(c.Request().Context())
	if err := s.deps.Announcer.Announce(ctx, ev); err != nil {
		if errors.Is(err, announce.ErrNotDeployment) {
			return c.JSON(http.StatusOK, map[string]string{
				"status": "ignored",
				"reason": "not a deployment",
			})
		}
		logger.Error().Err(err).Msg("deployment announcement failed")
		return c.JSON(http.StatusBadGateway, map[string]string{
			"status": "failed",
			"error":  err.Error(),
		})
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status": "announced",
	})
}

func (s *Server) dropMalformed(c echo.Context, logger zerolog.Logger, err error) error {
	logger.Warn().Err(err).Msg("dropping malformed webhook")
	return c.JSON(http.StatusOK, map[string]string{
		"status": "dropped",
		"reason": err.Error(),
	})
}
