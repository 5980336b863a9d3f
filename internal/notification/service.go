package notification

import (
	"context"

	"github.com/google/uuid"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=notification
type Repository interface {
	CreateNotifications(ctx context.Context, ns []*Notification) error
	ListNotifications(ctx context.Context, memberID uuid.UUID, unreadOnly bool) ([]*Notification, error)
	// MarkRead returns ErrNotFound when the notification does not belong to memberID.
	MarkRead(ctx context.Context, id, memberID uuid.UUID) error
	MarkAllRead(ctx context.Context, memberID uuid.UUID) (int64, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, memberID uuid.UUID, unreadOnly bool) ([]*Notification, error) {
	return s.repo.ListNotifications(ctx, memberID, unreadOnly)
}

func (s *Service) MarkRead(ctx context.Context, id, memberID uuid.UUID) error {
	return s.repo.MarkRead(ctx, id, memberID)
}

func (s *Service) MarkAllRead(ctx context.Context, memberID uuid.UUID) (int64, error) {
	return s.repo.MarkAllRead(ctx, memberID)
}
