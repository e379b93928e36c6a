package handler

import (
	"errors"
	"net/http"
	"strconv"

	"campus_parking/internal/api/middleware"
	"campus_parking/internal/domain"
	"campus_parking/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

var statusByCode = map[service.ErrorCode]int{
	service.CodeSpotUnavailable:          http.StatusBadRequest,
	service.CodeSpotAlreadyBooked:        http.StatusBadRequest,
	service.CodeConflictingActiveBooking: http.StatusBadRequest,
	service.CodeVehicleTypeMismatch:      http.StatusBadRequest,
	service.CodeInvalidQR:                http.StatusBadRequest,
	service.CodeInvalidInput:             http.StatusBadRequest,
	service.CodeNoActiveSubscription:     http.StatusBadRequest,

	service.CodeReservationNotFound:   http.StatusNotFound,
	service.CodeActiveSessionNotFound: http.StatusNotFound,
	service.CodeVehicleNotFound:       http.StatusNotFound,
	service.CodeSpotNotFound:          http.StatusNotFound,

	service.CodeSpotStateConflict: http.StatusConflict,
	service.CodeForbidden:         http.StatusForbidden,
	service.CodeStoreUnavailable:  http.StatusServiceUnavailable,
}

// StatusFor maps a machine code to the HTTP status the clients rely on.
func StatusFor(code service.ErrorCode) int {
	if s, ok := statusByCode[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// respondError is the single place service errors become HTTP responses.
func respondError(c *gin.Context, err error) {
	var appErr *service.AppError
	if !errors.As(err, &appErr) {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("unclassified error reached handler")
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "error": "internal server error"})
		return
	}
	status := StatusFor(appErr.Code)
	if status >= http.StatusInternalServerError {
		log.Error().Err(appErr).Str("path", c.FullPath()).Msg("request failed")
	}
	_ = c.Error(appErr)
	body := gin.H{"code": appErr.Code, "error": appErr.Message}
	if len(appErr.Details) > 0 {
		body["details"] = appErr.Details
	}
	c.JSON(status, body)
}

func invalidInput(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"code": service.CodeInvalidInput, "error": "invalid request: " + err.Error()})
}

// reservationParam parses :reservationId.
func reservationParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("reservationId"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"code": service.CodeInvalidInput, "error": "reservationId must be a positive integer"})
		return 0, false
	}
	return id, true
}

// actorOf aborts with 401 when Authenticate did not run, which is a routing bug.
func actorOf(c *gin.Context) (domain.Actor, bool) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHORIZED", "error": "authentication required"})
	}
	return actor, ok
}
