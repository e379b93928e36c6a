package service

import (
	"context"
	"errors"
	"fmt"

	"campus_parking/internal/domain"
	"campus_parking/internal/repository"
)

// SubscriptionService is the ledger read side plus recording settled purchases.
type SubscriptionService struct {
	store    repository.Store
	activity *ActivityRecorder
}

func NewSubscriptionService(store repository.Store, activity *ActivityRecorder) *SubscriptionService {
	return &SubscriptionService{store: store, activity: activity}
}

func (s *SubscriptionService) ListSubscriptions(ctx context.Context, actor domain.Actor) ([]domain.Subscription, error) {
	subs, err := s.store.Subscriptions().FindByUser(ctx, actor.UserID)
	if err != nil {
		return nil, storeError("ListSubscriptions", err)
	}
	return subs, nil
}

func (s *SubscriptionService) ListPenalties(ctx context.Context, actor domain.Actor) ([]domain.Penalty, error) {
	penalties, err := s.store.Penalties().FindByUser(ctx, actor.UserID)
	if err != nil {
		return nil, storeError("ListPenalties", err)
	}
	return penalties, nil
}

// RecordPurchase stores a purchase that was already paid for outside this system.
func (s *SubscriptionService) RecordPurchase(ctx context.Context, actor domain.Actor, dto domain.CreateSubscriptionDTO) (*domain.Subscription, error) {
	if actor.Role != domain.RoleAdmin {
		return nil, newAppError(CodeForbidden, "only admins can record subscription purchases", nil)
	}
	if dto.Hours <= 0 {
		return nil, newAppError(CodeInvalidInput, "hours must be positive", nil)
	}
	if _, err := s.store.Users().FindByID(ctx, dto.UserID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newAppError(CodeInvalidInput, fmt.Sprintf("user %d does not exist", dto.UserID), nil)
		}
		return nil, storeError("RecordPurchase.FindUser", err)
	}

	sub, err := s.store.Subscriptions().Create(ctx, &domain.Subscription{
		UserID:         dto.UserID,
		HoursRemaining: dto.Hours,
		Status:         domain.SubscriptionActive,
	})
	if err != nil {
		return nil, storeError("RecordPurchase.Create", err)
	}
	s.activity.Record(ctx, actor, dto.UserID, "subscription.recorded", 0, map[string]any{
		"subscription_id": sub.ID, "hours": dto.Hours,
	})
	return sub, nil
}
