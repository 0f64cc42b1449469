package enums

import (
	"fmt"
	"slices"
)

// MarketplaceEventType names the storefront events the wallet worker consumes.
type MarketplaceEventType string

const (
	MarketplaceOrderCompleted  MarketplaceEventType = "order_completed"
	MarketplaceOrderRefunded   MarketplaceEventType = "order_refunded"
	MarketplaceOrderCancelled  MarketplaceEventType = "order_cancelled"
	MarketplaceComplaintOpened MarketplaceEventType = "complaint_opened"
	MarketplaceComplaintClosed MarketplaceEventType = "complaint_closed"
)

var validMarketplaceEventTypes = []MarketplaceEventType{
	MarketplaceOrderCompleted,
	MarketplaceOrderRefunded,
	MarketplaceOrderCancelled,
	MarketplaceComplaintOpened,
	MarketplaceComplaintClosed,
}

func (e MarketplaceEventType) IsValid() bool {
	return slices.Contains(validMarketplaceEventTypes, e)
}

func ParseMarketplaceEventType(value string) (MarketplaceEventType, error) {
	e := MarketplaceEventType(value)
	if !e.IsValid() {
		return "", fmt.Errorf("invalid marketplace event type %q", value)
	}
	return e, nil
}
