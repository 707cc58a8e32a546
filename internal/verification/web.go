package verification

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/guildgate/guildgate/internal/authority"
	"github.com/guildgate/guildgate/internal/pending"
)

// WebHandler is the external completion channel: the browser-facing
// redirect and callback pair plus the polling API the engine consumes.
type WebHandler struct {
	service   *Service
	pendings  pending.Registry
	authority authority.Client
	logger    *slog.Logger
}

// NewWebHandler builds the completion-channel handler.
func NewWebHandler(service *Service, pendings pending.Registry, auth authority.Client, logger *slog.Logger) *WebHandler {
	return &WebHandler{service: service, pendings: pendings, authority: auth, logger: logger}
}

// Verify redirects the browser to the identity authority, threading the
// correlation state through the OAuth2 round trip.
func (h *WebHandler) Verify(c *fiber.Ctx) error {
	state := c.Query("state")
	if state == "" {
		return fiber.NewError(http.StatusBadRequest, "invalid or expired verification link")
	}
	if _, err := h.pendings.Status(c.UserContext(), state); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid or expired verification link")
	}
	return c.Redirect(h.authority.AuthCodeURL(state), http.StatusFound)
}

// Callback completes the handshake: exchanges the code, resolves the
// authenticated identity, and flips the pending record. Reconciliation is
// attempted directly as well, racing the engine's poll loop; the session
// consume decides which producer wins.
func (h *WebHandler) Callback(c *fiber.Ctx) error {
	code := c.Query("code")
	if code == "" {
		return fiber.NewError(http.StatusBadRequest, "no authorization code provided")
	}
	state := c.Query("state")
	if state == "" {
		return fiber.NewError(http.StatusBadRequest, "invalid or expired verification session")
	}

	identity, err := h.authority.ResolveIdentity(c.UserContext(), code)
	if err != nil {
		h.logger.Error("authority handshake failed", slog.Any("error", err))
		return fiber.NewError(http.StatusInternalServerError, "authentication error")
	}

	if err := h.pendings.MarkCompleted(c.UserContext(), state, identity.ID); err != nil {
		switch {
		case errors.Is(err, pending.ErrIdentityMismatch):
			return fiber.NewError(http.StatusForbidden,
				"you must authenticate with the same account that initiated the verification")
		case errors.Is(err, pending.ErrNotFound):
			return fiber.NewError(http.StatusBadRequest, "invalid or expired verification session")
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}

	if err := h.service.Reconcile(c.UserContext(), state); err != nil && !errors.Is(err, ErrSessionExpired) {
		h.logger.Error("direct reconciliation failed", slog.String("state", state), slog.Any("error", err))
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"verified": true,
		"username": identity.Username,
		"message":  "verification successful, you can return to the community",
	})
}

// CheckVerification reports the pending-record state for a correlation
// token. Missing records read as expired.
func (h *WebHandler) CheckVerification(c *fiber.Ctx) error {
	state := c.Params("state")
	pv, err := h.pendings.Status(c.UserContext(), state)
	if err != nil {
		return c.Status(http.StatusOK).JSON(fiber.Map{"verified": false, "expired": true})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"verified": pv.Completed,
		"expired":  false,
		"user_id":  pv.RequesterID,
	})
}

type createVerificationRequest struct {
	UserID  string `json:"user_id"`
	GuildID string `json:"guild_id"`
	Label   string `json:"label"`
}

// CreateVerification allocates a pending identity proof on behalf of an
// external caller.
func (h *WebHandler) CreateVerification(c *fiber.Ctx) error {
	var req createVerificationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.UserID == "" || req.GuildID == "" {
		return fiber.NewError(http.StatusBadRequest, "missing user_id or guild_id")
	}
	ticket, err := h.service.BeginIdentityProof(c.UserContext(), StartInput{
		RequesterID: req.UserID,
		GuildID:     req.GuildID,
		Label:       req.Label,
	})
	if err != nil {
		return mapServiceError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"success":          true,
		"state":            ticket.State,
		"verification_url": ticket.VerificationURL,
	})
}
