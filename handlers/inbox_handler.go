package handlers

import (
	stderrors "errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	apperrors "github.com/NomadCrew/dojo-portal/errors"
	"github.com/NomadCrew/dojo-portal/internal/inbox"
	"github.com/NomadCrew/dojo-portal/logger"
	"github.com/NomadCrew/dojo-portal/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// InboxHandler exposes the notification inbox session of the calling actor.
type InboxHandler struct {
	sessions InboxSessions
	log      *zap.SugaredLogger
}

func NewInboxHandler(sessions InboxSessions) *InboxHandler {
	return &InboxHandler{
		sessions: sessions,
		log:      logger.GetLogger().Named("inbox_handler"),
	}
}

// InboxResponse is the snapshot plus the error that interrupted the
// operation, if any. The snapshot's notice is what the page shows.
type InboxResponse struct {
	inbox.Snapshot
	Error *middleware.ErrorResponse `json:"error,omitempty"`
}

type idsRequest struct {
	IDs []string `json:"ids"`
}

// ListNotifications loads ?page=N, or refreshes the current page when no page is given.
func (h *InboxHandler) ListNotifications(c *gin.Context) {
	controller, ok := h.controller(c)
	if !ok {
		return
	}

	pageParam := c.Query("page")
	if pageParam == "" {
		snap, err := controller.Refresh(c.Request.Context())
		h.respond(c, snap, err)
		return
	}

	page, err := strconv.Atoi(pageParam)
	if err != nil || page < 1 {
		_ = c.Error(apperrors.ValidationFailed("invalid page", "page must be a positive integer"))
		return
	}

	snap, err := controller.FetchPage(c.Request.Context(), page)
	h.respond(c, snap, err)
}

func (h *InboxHandler) NextPage(c *gin.Context) {
	controller, ok := h.controller(c)
	if !ok {
		return
	}
	snap, err := controller.Next(c.Request.Context())
	h.respond(c, snap, err)
}

func (h *InboxHandler) PreviousPage(c *gin.Context) {
	controller, ok := h.controller(c)
	if !ok {
		return
	}
	snap, err := controller.Previous(c.Request.Context())
	h.respond(c, snap, err)
}

// ToggleSelect flips one notification in the selection.
func (h *InboxHandler) ToggleSelect(c *gin.Context) {
	controller, ok := h.controller(c)
	if !ok {
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		_ = c.Error(apperrors.ValidationFailed("invalid notification id", "id is required"))
		return
	}

	controller.ToggleSelect(id)
	c.JSON(http.StatusOK, InboxResponse{Snapshot: controller.Snapshot()})
}

// MarkRead marks the ids in the body as read, or the selection when the body is empty.
func (h *InboxHandler) MarkRead(c *gin.Context) {
	controller, ok := h.controller(c)
	if !ok {
		return
	}
	ids, ok := bindIDs(c)
	if !ok {
		return
	}
	snap, err := controller.MarkRead(c.Request.Context(), ids)
	h.respond(c, snap, err)
}

// Delete deletes the ids in the body, or the selection when the body is empty.
func (h *InboxHandler) Delete(c *gin.Context) {
	controller, ok := h.controller(c)
	if !ok {
		return
	}
	ids, ok := bindIDs(c)
	if !ok {
		return
	}
	snap, err := controller.DeleteSelected(c.Request.Context(), ids)
	h.respond(c, snap, err)
}

func (h *InboxHandler) MarkAllRead(c *gin.Context) {
	controller, ok := h.controller(c)
	if !ok {
		return
	}
	snap, err := controller.MarkAllRead(c.Request.Context())
	h.respond(c, snap, err)
}

func (h *InboxHandler) DeleteAll(c *gin.Context) {
	controller, ok := h.controller(c)
	if !ok {
		return
	}
	snap, err := controller.DeleteAll(c.Request.Context())
	h.respond(c, snap, err)
}

// UnreadCount returns the badge count across every page.
func (h *InboxHandler) UnreadCount(c *gin.Context) {
	controller, ok := h.controller(c)
	if !ok {
		return
	}

	count, err := controller.UnreadCount(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

func (h *InboxHandler) controller(c *gin.Context) (*inbox.Controller, bool) {
	actor, err := middleware.MustGetActor(c)
	if err != nil {
		_ = c.Error(err)
		return nil, false
	}

	session, err := h.sessions.Session(actor)
	if err != nil {
		_ = c.Error(err)
		return nil, false
	}
	return session.Controller, true
}

// respond renders a controller result. Caller mistakes go through the error
// middleware; store failures and partial failures still return the snapshot
// so the page can show the notice next to what it already has.
func (h *InboxHandler) respond(c *gin.Context, snap inbox.Snapshot, err error) {
	if err == nil {
		c.JSON(http.StatusOK, InboxResponse{Snapshot: snap})
		return
	}

	var appErr *apperrors.AppError
	if !stderrors.As(err, &appErr) {
		_ = c.Error(err)
		return
	}

	switch appErr.Type {
	case apperrors.ValidationError, apperrors.AuthError:
		_ = c.Error(err)
		return
	case apperrors.PartialFailure:
		h.log.Infow("Inbox mutation partially applied",
			"actor", snap.Actor, "operation", appErr.Code, "detail", appErr.Detail)
	default:
		h.log.Warnw("Inbox operation failed", "actor", snap.Actor, "error", err)
	}

	status := appErr.GetHTTPStatus()
	c.JSON(status, InboxResponse{
		Snapshot: snap,
		Error: &middleware.ErrorResponse{
			Type:    string(appErr.Type),
			Message: appErr.Message,
			Code:    strconv.Itoa(status),
		},
	})
}

// bindIDs reads an optional {"ids": [...]} body. An absent body means the selection.
func bindIDs(c *gin.Context) ([]string, bool) {
	if c.Request.ContentLength == 0 {
		return nil, true
	}

	var req idsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// Chunked requests report an unknown length; an empty one is still no body.
		if stderrors.Is(err, io.EOF) {
			return nil, true
		}
		_ = c.Error(err).SetType(gin.ErrorTypeBind)
		return nil, false
	}

	ids := make([]string, 0, len(req.IDs))
	for _, id := range req.IDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, true
}
