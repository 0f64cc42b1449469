package complaints

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/kitchenpay-backend/pkg/enums"
)

func TestIsActive(t *testing.T) {
	cases := map[enums.ComplaintStatus]bool{
		enums.ComplaintStatusOpen:      true,
		enums.ComplaintStatusEscalated: true,
		enums.ComplaintStatusResolved:  false,
		enums.ComplaintStatusDismissed: false,
	}
	for status, want := range cases {
		if got := IsActive(Complaint{Status: status}); got != want {
			t.Fatalf("IsActive(%s) = %v, want %v", status, got, want)
		}
	}
}

func TestHasActive(t *testing.T) {
	if HasActive(nil) {
		t.Fatal("expected empty list to have no active complaints")
	}
	closed := []Complaint{
		{Status: enums.ComplaintStatusResolved},
		{Status: enums.ComplaintStatusDismissed},
	}
	if HasActive(closed) {
		t.Fatal("expected closed complaints to be inactive")
	}
	if !HasActive(append(closed, Complaint{Status: enums.ComplaintStatusEscalated})) {
		t.Fatal("expected escalated complaint to be active")
	}
}

func TestReaderFunc(t *testing.T) {
	orderID := uuid.New()
	var reader Reader = ReaderFunc(func(_ context.Context, id uuid.UUID) ([]Complaint, error) {
		return []Complaint{{OrderID: id, Status: enums.ComplaintStatusOpen}}, nil
	})
	list, err := reader.ListByOrder(context.Background(), orderID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 1 || list[0].OrderID != orderID {
		t.Fatalf("unexpected complaints: %+v", list)
	}
}
