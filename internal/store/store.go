package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"parkspot-backend/internal/apperr"
	"parkspot-backend/internal/model"
)

// Store defines the interface for all database operations.
type Store interface {
	SaveReceipt(ctx context.Context, r *model.UsageReceipt) error
	ListReceipts(ctx context.Context, q ReceiptQuery) ([]model.UsageReceipt, error)
	SaveSubscription(ctx context.Context, sub *model.PushSubscription) error
	GetSubscription(ctx context.Context, endpoint, username string) (*model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint, username string) error
	SubscriptionsFor(ctx context.Context, username string) ([]model.PushSubscription, error)
	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// DB exposes the underlying handle.
func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// SaveReceipt inserts the receipt or, when one already exists for the same
// session, overwrites its end-of-session fields. A retried end therefore
// never produces two rows.
func (s *gormStore) SaveReceipt(ctx context.Context, r *model.UsageReceipt) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"ended_at", "elapsed_minutes", "estimated_amount", "settled_amount"}),
	}).Create(r).Error
	if err != nil {
		return fmt.Errorf("failed to save receipt for session %d: %w", r.SessionID, err)
	}
	return nil
}

// ListReceipts returns q.Username's receipts, newest first.
func (s *gormStore) ListReceipts(ctx context.Context, q ReceiptQuery) ([]model.UsageReceipt, error) {
	tx := s.db.WithContext(ctx).Where("username = ?", q.Username)
	if !q.Since.IsZero() {
		tx = tx.Where("start_time >= ?", q.Since)
	}

	var receipts []model.UsageReceipt
	if err := tx.Order("start_time DESC").Limit(q.limit()).Find(&receipts).Error; err != nil {
		return nil, fmt.Errorf("failed to list receipts for %s: %w", q.Username, err)
	}
	return receipts, nil
}

// SaveSubscription creates the subscription or replaces its keys and owner.
func (s *gormStore) SaveSubscription(ctx context.Context, sub *model.PushSubscription) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth", "username"}),
	}).Create(sub).Error
}

// GetSubscription returns the subscription at endpoint owned by username.
func (s *gormStore) GetSubscription(ctx context.Context, endpoint, username string) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	err := s.db.WithContext(ctx).First(&sub, "endpoint = ? AND username = ?", endpoint, username).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrNotFound.WithMessage("subscription not found")
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// DeleteSubscription removes the subscription at endpoint. An empty
// username skips the owner check; the push worker uses that for expired
// endpoints.
func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint, username string) error {
	tx := s.db.WithContext(ctx).Where("endpoint = ?", endpoint)
	if username != "" {
		tx = tx.Where("username = ?", username)
	}
	return tx.Delete(&model.PushSubscription{}).Error
}

// SubscriptionsFor lists every subscription owned by username.
func (s *gormStore) SubscriptionsFor(ctx context.Context, username string) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	if err := s.db.WithContext(ctx).Where("username = ?", username).Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch subscriptions for %s: %w", username, err)
	}
	return subs, nil
}
