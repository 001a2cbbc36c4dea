package types

import (
	"encoding/json"
	"errors"
	"sort"
	"testing"
	"time"
)

func TestParseTable(t *testing.T) {
	tests := []struct {
		name    string
		want    Table
		wantErr bool
	}{
		{"transactions", TableTransactions, false},
		{"budgets", TableBudgets, false},
		{"savings_goals", TableSavingsGoals, false},
		{"accounts", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTable(tt.name)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownTable) {
					t.Fatalf("ParseTable(%q) error = %v, want ErrUnknownTable", tt.name, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTable(%q) error = %v", tt.name, err)
			}
			if got != tt.want {
				t.Errorf("ParseTable(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestFormatTime_SortsChronologically(t *testing.T) {
	// Given: timestamps whose RFC3339Nano forms would not sort lexically
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	times := []time.Time{
		base.Add(1500 * time.Millisecond),
		base,
		base.Add(time.Second),
		base.Add(10 * time.Microsecond),
	}

	// When: formatted and sorted as strings
	formatted := make([]string, len(times))
	for i, ts := range times {
		formatted[i] = FormatTime(ts)
	}
	sort.Strings(formatted)

	// Then: string order matches time order
	for i := 1; i < len(formatted); i++ {
		prev, _ := ParseTime(formatted[i-1])
		cur, _ := ParseTime(formatted[i])
		if !prev.Before(cur) {
			t.Errorf("formatted[%d]=%s not before formatted[%d]=%s", i-1, formatted[i-1], i, formatted[i])
		}
	}
}

func TestParseTime_AcceptsRFC3339(t *testing.T) {
	got, err := ParseTime("2026-03-01T09:00:00Z")
	if err != nil {
		t.Fatalf("ParseTime error = %v", err)
	}
	want := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("ParseTime = %v, want %v", got, want)
	}
}

func TestFormatTime_RoundTripIsExact(t *testing.T) {
	now := Now()
	got, err := ParseTime(FormatTime(now))
	if err != nil {
		t.Fatalf("ParseTime error = %v", err)
	}
	if !got.Equal(now) {
		t.Errorf("round trip = %v, want %v", got, now)
	}
}

func TestRecord_DataStaysRaw(t *testing.T) {
	rec := Record{
		ID:     "01HZX3Q6S0K7J8W9ABCDEFGHJK",
		UserID: "user-1",
		Data:   json.RawMessage(`{"amount":"12.50","category":"Food"}`),
	}
	b, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var decoded Record
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if string(decoded.Data) != string(rec.Data) {
		t.Errorf("Data = %s, want %s", decoded.Data, rec.Data)
	}
}

func TestStoreStats_Total(t *testing.T) {
	s := StoreStats{RecordCounts: map[Table]int64{
		TableTransactions: 3,
		TableBudgets:      2,
	}}
	if got := s.Total(); got != 5 {
		t.Errorf("Total() = %d, want 5", got)
	}
}
