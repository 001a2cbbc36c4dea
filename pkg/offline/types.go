package offline

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/chukwu07/savings-sensei/internal/types"
	"github.com/shopspring/decimal"
)

// Meta is the bookkeeping every cached record carries. The sync engine owns
// these fields; record hooks overwrite any caller-supplied values.
type Meta struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Synced      bool      `json:"synced"`
	PendingSync bool      `json:"pending_sync"`
}

func (m *Meta) meta() *Meta { return m }

// metaKeys are the JSON keys of Meta, excluded from a record's data.
var metaKeys = []string{"id", "user_id", "created_at", "updated_at", "synced", "pending_sync"}

// Date is a calendar date encoded as YYYY-MM-DD.
type Date struct {
	time.Time
}

// NewDate returns the date y-m-d.
func NewDate(y int, m time.Month, d int) Date {
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{t}, nil
}

func (d Date) String() string {
	return d.Format(time.DateOnly)
}

// MarshalJSON implements json.Marshaler.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// TransactionType classifies money flow.
type TransactionType string

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

// Transaction is a single income or expense entry.
type Transaction struct {
	Meta
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Type        TransactionType `json:"type"`
	Date        Date            `json:"date"`
}

func (Transaction) table() types.Table { return types.TableTransactions }

// BudgetPeriod is how often a budget resets.
type BudgetPeriod string

const (
	Weekly  BudgetPeriod = "weekly"
	Monthly BudgetPeriod = "monthly"
	Yearly  BudgetPeriod = "yearly"
)

// Budget is a spending allocation for a category.
type Budget struct {
	Meta
	Category  string          `json:"category"`
	Allocated decimal.Decimal `json:"allocated"`
	Spent     decimal.Decimal `json:"spent"`
	Period    BudgetPeriod    `json:"period"`
}

func (Budget) table() types.Table { return types.TableBudgets }

// Remaining returns the unspent part of the allocation.
func (b Budget) Remaining() decimal.Decimal {
	return b.Allocated.Sub(b.Spent)
}

// SavingsGoal is a target amount to accumulate, optionally by a deadline.
type SavingsGoal struct {
	Meta
	Name          string          `json:"name"`
	TargetAmount  decimal.Decimal `json:"target_amount"`
	CurrentAmount decimal.Decimal `json:"current_amount"`
	Deadline      *Date           `json:"deadline,omitempty"`
}

func (SavingsGoal) table() types.Table { return types.TableSavingsGoals }

// Progress returns CurrentAmount / TargetAmount, capped at 1.
func (g SavingsGoal) Progress() decimal.Decimal {
	if !g.TargetAmount.IsPositive() {
		return decimal.Zero
	}
	p := g.CurrentAmount.Div(g.TargetAmount)
	if p.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.NewFromInt(1)
	}
	return p
}

// TransactionPatch lists the transaction fields to change; nil fields are kept.
type TransactionPatch struct {
	Description *string
	Amount      *decimal.Decimal
	Category    *string
	Type        *TransactionType
	Date        *Date
}

// Apply copies the set fields onto t.
func (p TransactionPatch) Apply(t *Transaction) {
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.Date != nil {
		t.Date = *p.Date
	}
}

// BudgetPatch lists the budget fields to change; nil fields are kept.
type BudgetPatch struct {
	Category  *string
	Allocated *decimal.Decimal
	Spent     *decimal.Decimal
	Period    *BudgetPeriod
}

// Apply copies the set fields onto b.
func (p BudgetPatch) Apply(b *Budget) {
	if p.Category != nil {
		b.Category = *p.Category
	}
	if p.Allocated != nil {
		b.Allocated = *p.Allocated
	}
	if p.Spent != nil {
		b.Spent = *p.Spent
	}
	if p.Period != nil {
		b.Period = *p.Period
	}
}

// SavingsGoalPatch lists the goal fields to change; nil fields are kept.
// ClearDeadline removes an existing deadline.
type SavingsGoalPatch struct {
	Name          *string
	TargetAmount  *decimal.Decimal
	CurrentAmount *decimal.Decimal
	Deadline      *Date
	ClearDeadline bool
}

// Apply copies the set fields onto g.
func (p SavingsGoalPatch) Apply(g *SavingsGoal) {
	if p.Name != nil {
		g.Name = *p.Name
	}
	if p.TargetAmount != nil {
		g.TargetAmount = *p.TargetAmount
	}
	if p.CurrentAmount != nil {
		g.CurrentAmount = *p.CurrentAmount
	}
	if p.Deadline != nil {
		d := *p.Deadline
		g.Deadline = &d
	}
	if p.ClearDeadline {
		g.Deadline = nil
	}
}
