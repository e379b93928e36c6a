package handler

import (
	"context"
	"net/http"

	"campus_parking/internal/domain"

	"github.com/gin-gonic/gin"
)

type sessionService interface {
	StartSession(ctx context.Context, actor domain.Actor, payload string) (*domain.SessionStartedDTO, error)
	EndSessionByQR(ctx context.Context, actor domain.Actor, payload string) (*domain.SessionEndedDTO, error)
	EndSessionByID(ctx context.Context, actor domain.Actor, reservationID int64) (*domain.SessionEndedDTO, error)
	Cancel(ctx context.Context, actor domain.Actor, reservationID int64) (*domain.SessionStatusDTO, error)
	Status(ctx context.Context, actor domain.Actor, reservationID int64) (*domain.SessionStatusDTO, error)
	StatusByQR(ctx context.Context, payload string) (*domain.SessionStatusDTO, error)
}

type SessionHandler struct {
	sessions sessionService
}

func NewSessionHandler(ss sessionService) *SessionHandler {
	return &SessionHandler{sessions: ss}
}

// POST /start-parking-session
func (h *SessionHandler) StartSession(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	var dto domain.ScanDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		invalidInput(c, err)
		return
	}
	started, err := h.sessions.StartSession(c.Request.Context(), actor, dto.QRPayload)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, started)
}

// POST /end-parking-session
func (h *SessionHandler) EndSessionByQR(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	var dto domain.ScanDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		invalidInput(c, err)
		return
	}
	ended, err := h.sessions.EndSessionByQR(c.Request.Context(), actor, dto.QRPayload)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ended)
}

// PUT /end-session/:reservationId
func (h *SessionHandler) EndSessionByID(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	id, ok := reservationParam(c)
	if !ok {
		return
	}
	ended, err := h.sessions.EndSessionByID(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ended)
}

// PUT /cancel-booking/:reservationId
func (h *SessionHandler) Cancel(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	id, ok := reservationParam(c)
	if !ok {
		return
	}
	status, err := h.sessions.Cancel(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// GET /parking-session-status/:reservationId
func (h *SessionHandler) Status(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	id, ok := reservationParam(c)
	if !ok {
		return
	}
	status, err := h.sessions.Status(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// GET /parking-session-status/status-qr/:qrPayload
func (h *SessionHandler) StatusByQR(c *gin.Context) {
	status, err := h.sessions.StatusByQR(c.Request.Context(), c.Param("qrPayload"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}
