package handler

import (
	"context"
	"errors"
	"net/http"

	"campus_parking/internal/domain"
	"campus_parking/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type authService interface {
	Register(ctx context.Context, dto domain.RegisterUserDTO) (*domain.User, error)
	Login(ctx context.Context, dto domain.LoginUserDTO) (*domain.AuthResponseDTO, error)
}

type AuthHandler struct {
	authService authService
}

func NewAuthHandler(as authService) *AuthHandler {
	return &AuthHandler{authService: as}
}

// POST /auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var dto domain.RegisterUserDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		invalidInput(c, err)
		return
	}

	user, err := h.authService.Register(c.Request.Context(), dto)
	if err != nil {
		if errors.Is(err, service.ErrUserAlreadyExists) {
			c.JSON(http.StatusConflict, gin.H{"code": "USER_EXISTS", "error": err.Error()})
			return
		}
		log.Error().Err(err).Str("username", dto.Username).Msg("register failed")
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "error": "could not register user"})
		return
	}
	c.JSON(http.StatusCreated, user)
}

// POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var dto domain.LoginUserDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		invalidInput(c, err)
		return
	}

	authResponse, err := h.authService.Login(c.Request.Context(), dto)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHORIZED", "error": err.Error()})
			return
		}
		log.Error().Err(err).Str("username", dto.Username).Msg("login failed")
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "error": "could not log in"})
		return
	}
	c.JSON(http.StatusOK, authResponse)
}
