package offline

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestDate_JSON(t *testing.T) {
	d := NewDate(2026, time.March, 1)

	b, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(b) != `"2026-03-01"` {
		t.Errorf("Marshal = %s, want \"2026-03-01\"", b)
	}

	var got Date
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !got.Equal(d.Time) {
		t.Errorf("Unmarshal = %v, want %v", got, d)
	}

	if err := json.Unmarshal([]byte(`"03/01/2026"`), &got); err == nil {
		t.Error("expected error for non ISO date")
	}
}

func TestBudget_Remaining(t *testing.T) {
	b := Budget{
		Allocated: decimal.RequireFromString("200"),
		Spent:     decimal.RequireFromString("42.50"),
	}
	if want := decimal.RequireFromString("157.50"); !b.Remaining().Equal(want) {
		t.Errorf("Remaining = %s, want %s", b.Remaining(), want)
	}
}

func TestSavingsGoal_Progress(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		current string
		want    string
	}{
		{"quarter", "200", "50", "0.25"},
		{"capped", "100", "150", "1"},
		{"zero target", "0", "10", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := SavingsGoal{
				TargetAmount:  decimal.RequireFromString(tt.target),
				CurrentAmount: decimal.RequireFromString(tt.current),
			}
			if want := decimal.RequireFromString(tt.want); !g.Progress().Equal(want) {
				t.Errorf("Progress = %s, want %s", g.Progress(), want)
			}
		})
	}
}

func TestSavingsGoalPatch_Deadline(t *testing.T) {
	deadline := NewDate(2026, time.December, 31)
	g := SavingsGoal{Name: "Trip"}

	SavingsGoalPatch{Deadline: &deadline}.Apply(&g)
	if g.Deadline == nil || g.Deadline.String() != "2026-12-31" {
		t.Fatalf("Deadline = %v, want 2026-12-31", g.Deadline)
	}

	name := "Japan trip"
	SavingsGoalPatch{Name: &name, ClearDeadline: true}.Apply(&g)
	if g.Deadline != nil {
		t.Errorf("Deadline = %v, want nil", g.Deadline)
	}
	if g.Name != "Japan trip" {
		t.Errorf("Name = %q", g.Name)
	}
}

func TestTransactionPatch_KeepsUnsetFields(t *testing.T) {
	tx := Transaction{Description: "Coffee", Category: "Food", Type: Expense}
	amount := decimal.RequireFromString("5.00")

	TransactionPatch{Amount: &amount}.Apply(&tx)

	if tx.Description != "Coffee" || tx.Category != "Food" || tx.Type != Expense {
		t.Errorf("unset fields changed: %+v", tx)
	}
	if !tx.Amount.Equal(amount) {
		t.Errorf("Amount = %s, want 5.00", tx.Amount)
	}
}
