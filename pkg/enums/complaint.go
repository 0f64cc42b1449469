package enums

import (
	"fmt"
	"slices"
)

// ComplaintStatus mirrors the dispute lifecycle owned by support tooling.
type ComplaintStatus string

const (
	ComplaintStatusOpen      ComplaintStatus = "open"
	ComplaintStatusEscalated ComplaintStatus = "escalated"
	ComplaintStatusResolved  ComplaintStatus = "resolved"
	ComplaintStatusDismissed ComplaintStatus = "dismissed"
)

var validComplaintStatuses = []ComplaintStatus{
	ComplaintStatusOpen,
	ComplaintStatusEscalated,
	ComplaintStatusResolved,
	ComplaintStatusDismissed,
}

func (s ComplaintStatus) IsValid() bool {
	return slices.Contains(validComplaintStatuses, s)
}

// ParseComplaintStatus converts raw input into ComplaintStatus.
func ParseComplaintStatus(value string) (ComplaintStatus, error) {
	s := ComplaintStatus(value)
	if !s.IsValid() {
		return "", fmt.Errorf("invalid complaint status %q", value)
	}
	return s, nil
}
