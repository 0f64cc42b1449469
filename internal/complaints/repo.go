package complaints

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/kitchenpay-backend/pkg/db/models"
	"github.com/angelmondragon/kitchenpay-backend/pkg/enums"
)

// ErrAlreadyClosed is returned when an open or escalated status arrives for a
// complaint already resolved or dismissed. The stored status is kept.
var ErrAlreadyClosed = errors.New("complaint already closed")

// Repository keeps the complaint projection fed by marketplace events.
type Repository interface {
	Reader
	WithTx(tx *gorm.DB) Repository
	Save(ctx context.Context, c Complaint) error
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

// ForTx binds r to tx when r is backed by the database.
func ForTx(r Reader, tx *gorm.DB) Reader {
	if repo, ok := r.(Repository); ok {
		return repo.WithTx(tx)
	}
	return r
}

// Save upserts the latest known status of a complaint. Closed is final: an
// active status never replaces resolved or dismissed, whatever order the
// events arrive in.
func (r *repository) Save(ctx context.Context, c Complaint) error {
	if c.ID == uuid.Nil || c.OrderID == uuid.Nil {
		return fmt.Errorf("complaint and order ids required")
	}
	if !c.Status.IsValid() {
		return fmt.Errorf("invalid complaint status %q", c.Status)
	}
	row := models.OrderComplaint{
		ID:        c.ID,
		OrderID:   c.OrderID,
		Status:    c.Status,
		UpdatedAt: time.Now().UTC(),
	}
	upsert := clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "updated_at"}),
	}
	if IsActive(c) {
		upsert.Where = clause.Where{Exprs: []clause.Expression{
			clause.Expr{
				SQL:  "order_complaints.status IN (?, ?)",
				Vars: []any{string(enums.ComplaintStatusOpen), string(enums.ComplaintStatusEscalated)},
			},
		}}
	}
	res := r.db.WithContext(ctx).Clauses(upsert).Create(&row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyClosed
	}
	return nil
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]Complaint, error) {
	var rows []models.OrderComplaint
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Complaint, 0, len(rows))
	for _, row := range rows {
		out = append(out, Complaint{ID: row.ID, OrderID: row.OrderID, Status: row.Status})
	}
	return out, nil
}
