package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/kitchenpay-backend/pkg/enums"
)

// OrderComplaint is the wallet-side projection of a support desk complaint.
type OrderComplaint struct {
	ID        uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   uuid.UUID             `gorm:"column:order_id;type:uuid;not null"`
	Status    enums.ComplaintStatus `gorm:"column:status;type:complaint_status;not null"`
	UpdatedAt time.Time             `gorm:"column:updated_at"`
}

func (OrderComplaint) TableName() string { return "order_complaints" }
