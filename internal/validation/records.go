package validation

import (
	"encoding/json"

	"github.com/chukwu07/savings-sensei/internal/types"
	"github.com/shopspring/decimal"
)

// Field limits
const (
	MaxIDLength          = 64
	MaxDescriptionLength = 500
	MaxNameLength        = 200
	MaxCategoryLength    = 100
)

// Allowed enum values
var (
	TransactionTypes = []string{"income", "expense"}
	BudgetPeriods    = []string{"weekly", "monthly", "yearly"}
)

type transactionData struct {
	Description string           `json:"description"`
	Amount      *decimal.Decimal `json:"amount"`
	Category    string           `json:"category"`
	Type        string           `json:"type"`
	Date        string           `json:"date"`
}

type budgetData struct {
	Category  string           `json:"category"`
	Allocated *decimal.Decimal `json:"allocated"`
	Spent     *decimal.Decimal `json:"spent"`
	Period    string           `json:"period"`
}

type savingsGoalData struct {
	Name          string           `json:"name"`
	TargetAmount  *decimal.Decimal `json:"target_amount"`
	CurrentAmount *decimal.Decimal `json:"current_amount"`
	Deadline      *string          `json:"deadline"`
}

// ValidateID checks a client-supplied record id.
func ValidateID(field, id string) *ValidationError {
	if err := ValidateRequired(field, id); err != nil {
		return err
	}
	return ValidateText(field, id, MaxIDLength)
}

// ValidateRecordData validates the entity fields of a record for the table.
// All failures are collected; the result is nil when the data is valid.
func ValidateRecordData(table types.Table, data json.RawMessage) []ValidationError {
	var c Collector
	if len(data) == 0 {
		c.Add(&ValidationError{Field: "data", Message: "is required"})
		return c.Errors()
	}

	switch table {
	case types.TableTransactions:
		var d transactionData
		if err := json.Unmarshal(data, &d); err != nil {
			return []ValidationError{{Field: "data", Message: "invalid transaction: " + err.Error()}}
		}
		c.Add(ValidateRequired("description", d.Description))
		c.Add(ValidateText("description", d.Description, MaxDescriptionLength))
		c.Add(ValidateAmount("amount", d.Amount))
		c.Add(ValidateRequired("category", d.Category))
		c.Add(ValidateText("category", d.Category, MaxCategoryLength))
		c.Add(ValidateEnum("type", d.Type, TransactionTypes))
		c.Add(ValidateDate("date", d.Date))

	case types.TableBudgets:
		var d budgetData
		if err := json.Unmarshal(data, &d); err != nil {
			return []ValidationError{{Field: "data", Message: "invalid budget: " + err.Error()}}
		}
		c.Add(ValidateRequired("category", d.Category))
		c.Add(ValidateText("category", d.Category, MaxCategoryLength))
		c.Add(ValidateAmount("allocated", d.Allocated))
		if d.Spent != nil {
			c.Add(ValidateAmount("spent", d.Spent))
		}
		c.Add(ValidateEnum("period", d.Period, BudgetPeriods))

	case types.TableSavingsGoals:
		var d savingsGoalData
		if err := json.Unmarshal(data, &d); err != nil {
			return []ValidationError{{Field: "data", Message: "invalid savings goal: " + err.Error()}}
		}
		c.Add(ValidateRequired("name", d.Name))
		c.Add(ValidateText("name", d.Name, MaxNameLength))
		c.Add(ValidateAmount("target_amount", d.TargetAmount))
		if d.CurrentAmount != nil {
			c.Add(ValidateAmount("current_amount", d.CurrentAmount))
		}
		if d.Deadline != nil {
			c.Add(ValidateDate("deadline", *d.Deadline))
		}

	default:
		c.Add(&ValidationError{Field: "table", Message: "unknown table " + string(table)})
	}

	return c.Errors()
}

// ValidateRecord validates the identity and entity fields of a record.
func ValidateRecord(table types.Table, rec types.Record) error {
	var c Collector
	c.Add(ValidateID("id", rec.ID))
	c.Add(ValidateID("user_id", rec.UserID))
	for _, fe := range ValidateRecordData(table, rec.Data) {
		fe := fe
		c.Add(&fe)
	}
	return c.Err()
}
