package verification

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes the bot-facing verification endpoints: the programmatic
// equivalent of the chat-platform button surface.
type Handler struct {
	service *Service
}

// NewHandler builds a verification HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type startRequest struct {
	UserID  string `json:"user_id"`
	GuildID string `json:"guild_id"`
	Label   string `json:"label"`
}

type answerRequest struct {
	UserID string `json:"user_id"`
	Answer int    `json:"answer"`
}

// StartChallenge opens a challenge session and returns the question with
// its shuffled options. The correct answer never leaves the server.
func (h *Handler) StartChallenge(c *fiber.Ctx) error {
	var req startRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	issued, err := h.service.StartChallenge(c.UserContext(), StartInput{
		RequesterID: req.UserID,
		GuildID:     req.GuildID,
		Label:       req.Label,
	})
	if err != nil {
		return mapServiceError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"question":   issued.Question,
		"options":    issued.Options,
		"expires_at": issued.ExpiresAt,
	})
}

// SubmitAnswer resolves a challenge session with the selected option.
func (h *Handler) SubmitAnswer(c *fiber.Ctx) error {
	var req answerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.UserID == "" {
		return fiber.NewError(http.StatusBadRequest, "user_id is required")
	}
	rec, err := h.service.SubmitAnswer(c.UserContext(), req.UserID, req.Answer)
	if err != nil {
		return mapServiceError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"account_id":  rec.AccountID,
		"label":       rec.Label,
		"verified_at": rec.VerifiedAt,
	})
}

// BeginIdentityProof opens an identity-proof session and returns the link
// the requester must visit.
func (h *Handler) BeginIdentityProof(c *fiber.Ctx) error {
	var req startRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
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
		"state":            ticket.State,
		"verification_url": ticket.VerificationURL,
		"expires_at":       ticket.ExpiresAt,
	})
}

// Stats reports the verified-account count.
func (h *Handler) Stats(c *fiber.Ctx) error {
	count, err := h.service.Stats(c.UserContext())
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"verified_count": count})
}

func mapServiceError(err error) error {
	switch {
	case errors.Is(err, ErrAlreadyVerified):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrSessionExpired):
		return fiber.NewError(http.StatusGone, err.Error())
	case errors.Is(err, ErrChallengeFailed):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrGrantFailed):
		return fiber.NewError(http.StatusBadGateway, err.Error())
	default:
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
}
