package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"rentdesk/internal/core"
	"rentdesk/internal/rentroll"
)

func TestStore_AppendPayment(t *testing.T) {
	s := New()
	ctx := context.Background()
	row := rentroll.Row{Date: core.NewDate(2024, 1, 5), PaymentID: uuid.New(), Amount: core.Cents(100)}

	ref, err := s.AppendPayment(ctx, row)
	if err != nil || ref != "mem:1" {
		t.Fatalf("AppendPayment() = %q, %v; want mem:1", ref, err)
	}
	again, err := s.AppendPayment(ctx, row)
	if err != nil || again != ref {
		t.Fatalf("duplicate AppendPayment() = %q, %v; want %q", again, err, ref)
	}

	other := row
	other.PaymentID = uuid.New()
	if ref, _ := s.AppendPayment(ctx, other); ref != "mem:2" {
		t.Errorf("AppendPayment() = %q, want mem:2", ref)
	}
	if got := len(s.Rows()); got != 2 {
		t.Errorf("Rows() len = %d, want 2", got)
	}

	if _, err := s.AppendPayment(ctx, rentroll.Row{}); err == nil {
		t.Error("expected error for undated row")
	}
}
