package payloads

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/kitchenpay-backend/pkg/enums"
)

// NotificationRequestedEvent asks downstream delivery to alert a seller.
type NotificationRequestedEvent struct {
	NotificationID uuid.UUID              `json:"notification_id"`
	TenantID       uuid.UUID              `json:"tenant_id"`
	SellerID       uuid.UUID              `json:"seller_id"`
	Type           enums.NotificationType `json:"type"`
	Title          string                 `json:"title"`
	Message        string                 `json:"message"`
	AmountCents    int64                  `json:"amount_cents"`
	OrderCount     int                    `json:"order_count"`
	OrderIDs       []uuid.UUID            `json:"order_ids"`
}

// WalletAuditRecordedEvent mirrors an audit-sink record for the analytics pipeline.
type WalletAuditRecordedEvent struct {
	Event      string         `json:"event"`
	TenantID   *uuid.UUID     `json:"tenant_id,omitempty"`
	SellerID   *uuid.UUID     `json:"seller_id,omitempty"`
	OrderID    *uuid.UUID     `json:"order_id,omitempty"`
	Properties map[string]any `json:"properties"`
}
