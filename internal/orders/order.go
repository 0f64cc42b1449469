// Package orders holds the read model of a marketplace order as the wallet
// engine sees it. Order CRUD lives in the storefront service.
package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/kitchenpay-backend/pkg/enums"
)

type Order struct {
	ID               uuid.UUID            `json:"id"`
	TenantID         uuid.UUID            `json:"tenant_id"`
	SellerID         uuid.UUID            `json:"seller_id"`
	SubtotalCents    int64                `json:"subtotal_cents"`
	DeliveryFeeCents int64                `json:"delivery_fee_cents"`
	DeliveryMethod   enums.DeliveryMethod `json:"delivery_method"`
	Status           enums.OrderStatus    `json:"status"`
	CompletedAt      *time.Time           `json:"completed_at,omitempty"`
}

// IsCompleted reports whether the order reached the terminal completed status.
func IsCompleted(o Order) bool {
	return o.Status == enums.OrderStatusCompleted
}

// HasParties reports whether both the tenant and seller are known.
func HasParties(o Order) bool {
	return o.TenantID != uuid.Nil && o.SellerID != uuid.Nil
}

func UsesDelivery(o Order) bool {
	return o.DeliveryMethod == enums.DeliveryMethodDelivery
}

// CompletionTime falls back to fallback when the order carries no completion timestamp.
func CompletionTime(o Order, fallback time.Time) time.Time {
	if o.CompletedAt == nil || o.CompletedAt.IsZero() {
		return fallback.UTC()
	}
	return o.CompletedAt.UTC()
}
