// Package complaints holds the read model of order disputes consulted before a
// paused clearance timer may resume.
package complaints

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/kitchenpay-backend/pkg/enums"
)

type Complaint struct {
	ID      uuid.UUID             `json:"id"`
	OrderID uuid.UUID             `json:"order_id"`
	Status  enums.ComplaintStatus `json:"status"`
}

// Reader is implemented by the support desk service.
type Reader interface {
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]Complaint, error)
}

// ReaderFunc adapts a function to Reader.
type ReaderFunc func(ctx context.Context, orderID uuid.UUID) ([]Complaint, error)

func (f ReaderFunc) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]Complaint, error) {
	return f(ctx, orderID)
}

// IsActive reports whether the complaint still blocks clearance.
func IsActive(c Complaint) bool {
	return c.Status == enums.ComplaintStatusOpen || c.Status == enums.ComplaintStatusEscalated
}

func HasActive(list []Complaint) bool {
	for _, c := range list {
		if IsActive(c) {
			return true
		}
	}
	return false
}
