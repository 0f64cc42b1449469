package enums

import "testing"

func TestParseLedgerEntryKind(t *testing.T) {
	for _, kind := range validLedgerEntryKinds {
		got, err := ParseLedgerEntryKind(string(kind))
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", kind, err)
		}
		if got != kind {
			t.Fatalf("expected %q, got %q", kind, got)
		}
	}
	if _, err := ParseLedgerEntryKind("payout"); err == nil {
		t.Fatal("expected unknown kind to fail")
	}
}

func TestLedgerEntryKindInformational(t *testing.T) {
	cases := map[LedgerEntryKind]bool{
		LedgerEntryCommission:         true,
		LedgerEntryBecameWithdrawable: true,
		LedgerEntryPaymentCredit:      false,
		LedgerEntryWithdrawal:         false,
		LedgerEntryRefundDeduction:    false,
	}
	for kind, want := range cases {
		if got := kind.Informational(); got != want {
			t.Fatalf("%s: expected informational=%v", kind, want)
		}
	}
}

func TestParseComplaintStatusRejectsUnknown(t *testing.T) {
	if _, err := ParseComplaintStatus("closed"); err == nil {
		t.Fatal("expected error for unknown complaint status")
	}
	if s, err := ParseComplaintStatus("escalated"); err != nil || s != ComplaintStatusEscalated {
		t.Fatalf("unexpected parse result %q, %v", s, err)
	}
}

func TestParseDeliveryMethod(t *testing.T) {
	if _, err := ParseDeliveryMethod("drone"); err == nil {
		t.Fatal("expected error for unknown delivery method")
	}
	if m, err := ParseDeliveryMethod("pickup"); err != nil || m != DeliveryMethodPickup {
		t.Fatalf("unexpected parse result %q, %v", m, err)
	}
}

func TestParseMarketplaceEventType(t *testing.T) {
	for _, e := range validMarketplaceEventTypes {
		if got, err := ParseMarketplaceEventType(string(e)); err != nil || got != e {
			t.Fatalf("ParseMarketplaceEventType(%q) = %q, %v", e, got, err)
		}
	}
	if _, err := ParseMarketplaceEventType("order_paid"); err == nil {
		t.Fatal("expected unknown event type to fail")
	}
}
