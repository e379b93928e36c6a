package handler

import (
	"context"
	"net/http"

	"campus_parking/internal/domain"

	"github.com/gin-gonic/gin"
)

type subscriptionService interface {
	ListSubscriptions(ctx context.Context, actor domain.Actor) ([]domain.Subscription, error)
	ListPenalties(ctx context.Context, actor domain.Actor) ([]domain.Penalty, error)
	RecordPurchase(ctx context.Context, actor domain.Actor, dto domain.CreateSubscriptionDTO) (*domain.Subscription, error)
}

type SubscriptionHandler struct {
	subscriptions subscriptionService
}

func NewSubscriptionHandler(ss subscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptions: ss}
}

// GET /subscriptions
func (h *SubscriptionHandler) ListSubscriptions(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	subs, err := h.subscriptions.ListSubscriptions(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, subs)
}

// GET /penalties
func (h *SubscriptionHandler) ListPenalties(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	penalties, err := h.subscriptions.ListPenalties(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, penalties)
}

// POST /admin/subscriptions
func (h *SubscriptionHandler) RecordPurchase(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	var dto domain.CreateSubscriptionDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		invalidInput(c, err)
		return
	}
	sub, err := h.subscriptions.RecordPurchase(c.Request.Context(), actor, dto)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}
