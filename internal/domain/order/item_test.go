package order

import (
	"errors"
	"testing"
)

func TestDecideApprove(t *testing.T) {
	li := NewLineItem("rx-100.png")

	changed, err := li.Decide(DecisionApprove, "")
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if !changed {
		t.Error("expected first approval to report a change")
	}
	if li.Approval() != ApprovalApproved {
		t.Errorf("state = %s, want approved", li.Approval())
	}
}

func TestDecideApproveIdempotent(t *testing.T) {
	li := NewLineItem("rx-100.png")
	if _, err := li.Decide(DecisionApprove, ""); err != nil {
		t.Fatalf("approve failed: %v", err)
	}

	changed, err := li.Decide(DecisionApprove, "")
	if err != nil {
		t.Fatalf("re-approve failed: %v", err)
	}
	if changed {
		t.Error("re-approving an approved item must not report a change")
	}
}

func TestDecideDenyRequiresReason(t *testing.T) {
	li := NewLineItem("rx-100.png")

	for _, reason := range []string{"", "   ", "\t\n"} {
		changed, err := li.Decide(DecisionDeny, reason)
		if !errors.Is(err, ErrInvalidDecision) {
			t.Errorf("deny with reason %q: err = %v, want ErrInvalidDecision", reason, err)
		}
		if changed {
			t.Errorf("deny with reason %q must not report a change", reason)
		}
		if li.Approval() != ApprovalPending {
			t.Errorf("failed deny mutated state to %s", li.Approval())
		}
	}
}

func TestDecideDeny(t *testing.T) {
	li := NewLineItem("rx-100.png")

	changed, err := li.Decide(DecisionDeny, "illegible prescription")
	if err != nil {
		t.Fatalf("deny failed: %v", err)
	}
	if !changed {
		t.Error("expected first denial to report a change")
	}
	if li.Approval() != ApprovalDenied {
		t.Errorf("state = %s, want denied", li.Approval())
	}
	if li.DenyReason() != "illegible prescription" {
		t.Errorf("deny reason = %q", li.DenyReason())
	}
}

func TestDecideDenyIdempotent(t *testing.T) {
	li := NewLineItem("rx-100.png")
	if _, err := li.Decide(DecisionDeny, "out of stock"); err != nil {
		t.Fatalf("deny failed: %v", err)
	}

	// Re-denying does not report a change even with a different reason.
	changed, err := li.Decide(DecisionDeny, "still out of stock")
	if err != nil {
		t.Fatalf("re-deny failed: %v", err)
	}
	if changed {
		t.Error("re-denying a denied item must not report a change")
	}
	if li.DenyReason() != "out of stock" {
		t.Errorf("deny reason overwritten: %q", li.DenyReason())
	}
}

func TestDecideTransitions(t *testing.T) {
	li := NewLineItem("rx-100.png")
	if _, err := li.Decide(DecisionDeny, "dosage unclear"); err != nil {
		t.Fatalf("deny failed: %v", err)
	}

	// A denial is revisable: approving afterwards clears the reason.
	changed, err := li.Decide(DecisionApprove, "")
	if err != nil {
		t.Fatalf("approve after deny failed: %v", err)
	}
	if !changed {
		t.Error("approve after deny must report a change")
	}
	if li.DenyReason() != "" {
		t.Errorf("deny reason not cleared: %q", li.DenyReason())
	}
}

func TestParseDecision(t *testing.T) {
	cases := []struct {
		in      string
		want    Decision
		wantErr bool
	}{
		{"approved", DecisionApprove, false},
		{"denied", DecisionDeny, false},
		{" Approved ", DecisionApprove, false},
		{"DENIED", DecisionDeny, false},
		{"pending", "", true},
		{"", "", true},
		{"yes", "", true},
	}
	for _, tc := range cases {
		got, err := ParseDecision(tc.in)
		if tc.wantErr {
			if !errors.Is(err, ErrInvalidDecision) {
				t.Errorf("ParseDecision(%q) err = %v, want ErrInvalidDecision", tc.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDecision(%q) failed: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseDecision(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestSettlePayment(t *testing.T) {
	li := NewLineItem("rx-100.png")

	if err := li.SettlePayment(); !errors.Is(err, ErrInvalidDecision) {
		t.Errorf("settle on pending: err = %v, want ErrInvalidDecision", err)
	}
	if li.Paid() {
		t.Error("failed settle marked item paid")
	}

	if _, err := li.Decide(DecisionDeny, "not covered"); err != nil {
		t.Fatalf("deny failed: %v", err)
	}
	if err := li.SettlePayment(); !errors.Is(err, ErrInvalidDecision) {
		t.Errorf("settle on denied: err = %v, want ErrInvalidDecision", err)
	}

	if _, err := li.Decide(DecisionApprove, ""); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if err := li.SettlePayment(); err != nil {
		t.Fatalf("settle on approved failed: %v", err)
	}
	if !li.Paid() {
		t.Error("item not marked paid")
	}
}

func TestConsumeRefill(t *testing.T) {
	li := RestoreLineItem(ItemState{Refills: 2, Approval: ApprovalApproved})

	if err := li.ConsumeRefill(); err != nil {
		t.Fatalf("first refill failed: %v", err)
	}
	if err := li.ConsumeRefill(); err != nil {
		t.Fatalf("second refill failed: %v", err)
	}
	if li.Refills() != 0 {
		t.Errorf("refills = %d, want 0", li.Refills())
	}

	err := li.ConsumeRefill()
	if !errors.Is(err, ErrNoRefillsAvailable) {
		t.Errorf("refill at zero: err = %v, want ErrNoRefillsAvailable", err)
	}
	if li.Refills() != 0 {
		t.Errorf("failed refill changed count to %d", li.Refills())
	}
}

func TestApplyFields(t *testing.T) {
	drugID := int64(7)
	qty := 30
	li := NewLineItem("rx-100.png")

	li.ApplyFields(FieldUpdate{DrugID: &drugID, Quantity: &qty})
	if li.DrugID() == nil || *li.DrugID() != 7 {
		t.Errorf("drug ID = %v, want 7", li.DrugID())
	}
	if li.Quantity() == nil || *li.Quantity() != 30 {
		t.Errorf("quantity = %v, want 30", li.Quantity())
	}

	// Unset fields leave assignments alone.
	refills := 3
	li.ApplyFields(FieldUpdate{Refills: &refills})
	if li.DrugID() == nil || *li.DrugID() != 7 {
		t.Error("partial update clobbered drug ID")
	}
	if li.Refills() != 3 {
		t.Errorf("refills = %d, want 3", li.Refills())
	}

	// Negative refill counts are rejected silently.
	bad := -1
	li.ApplyFields(FieldUpdate{Refills: &bad})
	if li.Refills() != 3 {
		t.Errorf("negative refill applied: %d", li.Refills())
	}
}
