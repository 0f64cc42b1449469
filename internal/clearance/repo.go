package clearance

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/kitchenpay-backend/pkg/db/models"
)

// Cursor is a keyset position in (withdrawable_at, id) order.
type Cursor struct {
	WithdrawableAt time.Time
	ID             uuid.UUID
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, timer *models.ClearanceTimer) error
	FindByOrder(ctx context.Context, orderID uuid.UUID) (*models.ClearanceTimer, error)
	LockByOrder(ctx context.Context, orderID uuid.UUID) (*models.ClearanceTimer, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.ClearanceTimer, error)
	Save(ctx context.Context, timer *models.ClearanceTimer) error
	ListEligible(ctx context.Context, now time.Time, after *Cursor, limit int) ([]models.ClearanceTimer, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, timer *models.ClearanceTimer) error {
	if timer.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		timer.ID = id
	}
	return r.db.WithContext(ctx).Create(timer).Error
}

func (r *repository) FindByOrder(ctx context.Context, orderID uuid.UUID) (*models.ClearanceTimer, error) {
	return r.first(r.db.WithContext(ctx).Where("order_id = ?", orderID))
}

func (r *repository) LockByOrder(ctx context.Context, orderID uuid.UUID) (*models.ClearanceTimer, error) {
	return r.first(r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_id = ?", orderID))
}

func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.ClearanceTimer, error) {
	return r.first(r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id))
}

func (r *repository) first(query *gorm.DB) (*models.ClearanceTimer, error) {
	var timer models.ClearanceTimer
	err := query.First(&timer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &timer, nil
}

// Save writes the state columns. Amount, hold and ownership are fixed at creation.
func (r *repository) Save(ctx context.Context, timer *models.ClearanceTimer) error {
	return r.db.WithContext(ctx).
		Model(&models.ClearanceTimer{}).
		Where("id = ?", timer.ID).
		Updates(map[string]any{
			"withdrawable_at":            timer.WithdrawableAt,
			"is_cleared":                 timer.IsCleared,
			"is_paused":                  timer.IsPaused,
			"is_cancelled":               timer.IsCancelled,
			"paused_at":                  timer.PausedAt,
			"remaining_seconds_at_pause": timer.RemainingSecondsAtPause,
			"cleared_at":                 timer.ClearedAt,
			"cancelled_at":               timer.CancelledAt,
			"updated_at":                 timer.UpdatedAt,
		}).Error
}

// ListEligible pages through matured, unpaused, uncancelled, uncleared timers.
func (r *repository) ListEligible(ctx context.Context, now time.Time, after *Cursor, limit int) ([]models.ClearanceTimer, error) {
	query := r.db.WithContext(ctx).
		Where("is_cleared = ? AND is_paused = ? AND is_cancelled = ? AND withdrawable_at <= ?", false, false, false, now)
	if after != nil {
		query = query.Where("(withdrawable_at > ? OR (withdrawable_at = ? AND id > ?))",
			after.WithdrawableAt, after.WithdrawableAt, after.ID)
	}
	var timers []models.ClearanceTimer
	if err := query.
		Order("withdrawable_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&timers).Error; err != nil {
		return nil, err
	}
	return timers, nil
}
