package handlers

import (
	"net/http"

	apperrors "github.com/NomadCrew/dojo-portal/errors"
	"github.com/NomadCrew/dojo-portal/middleware"
	"github.com/gin-gonic/gin"
)

// ProfileHandler serves the profile page and the payment history on its own.
type ProfileHandler struct {
	loader ProfileLoader
}

func NewProfileHandler(loader ProfileLoader) *ProfileHandler {
	return &ProfileHandler{loader: loader}
}

// GetProfile always answers 200; each section reports its own failure.
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	actor, err := middleware.MustGetActor(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, h.loader.Load(c.Request.Context(), actor))
}

// GetPayments returns the grouped payment history with its totals.
func (h *ProfileHandler) GetPayments(c *gin.Context) {
	actor, err := middleware.MustGetActor(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if actor.IsCoach() {
		_ = c.Error(apperrors.ValidationFailed("payment history is not available", "coach accounts have no payment history"))
		return
	}

	section := h.loader.Payments(c.Request.Context(), actor)
	if !section.Loaded {
		c.JSON(http.StatusBadGateway, section)
		return
	}
	c.JSON(http.StatusOK, section)
}
