package handler

import (
	"context"
	"net/http"

	"campus_parking/internal/domain"

	"github.com/gin-gonic/gin"
)

type bookingService interface {
	Book(ctx context.Context, actor domain.Actor, dto domain.BookSpotDTO) (*domain.BookingResponseDTO, error)
	CurrentReservation(ctx context.Context, actor domain.Actor) (*domain.Reservation, error)
	QRImage(ctx context.Context, actor domain.Actor, reservationID int64) ([]byte, error)
	ListSpots(ctx context.Context, filter domain.SpotFilterDTO) ([]domain.Spot, error)
	SectionCapacity(ctx context.Context, sectionID string) (*domain.SectionCapacity, error)
}

type BookingHandler struct {
	bookings bookingService
}

func NewBookingHandler(bs bookingService) *BookingHandler {
	return &BookingHandler{bookings: bs}
}

// POST /book
func (h *BookingHandler) Book(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	var dto domain.BookSpotDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		invalidInput(c, err)
		return
	}

	resp, err := h.bookings.Book(c.Request.Context(), actor, dto)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GET /reservations/current
func (h *BookingHandler) CurrentReservation(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	res, err := h.bookings.CurrentReservation(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /reservations/:reservationId/qr
func (h *BookingHandler) QRImage(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	id, ok := reservationParam(c)
	if !ok {
		return
	}
	png, err := h.bookings.QRImage(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

// GET /spots
func (h *BookingHandler) ListSpots(c *gin.Context) {
	var filter domain.SpotFilterDTO
	if err := c.ShouldBindQuery(&filter); err != nil {
		invalidInput(c, err)
		return
	}
	spots, err := h.bookings.ListSpots(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, spots)
}

// GET /sections/:sectionId/capacity
func (h *BookingHandler) SectionCapacity(c *gin.Context) {
	capacity, err := h.bookings.SectionCapacity(c.Request.Context(), c.Param("sectionId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, capacity)
}
