//go:build e2e

package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/chukwu07/savings-sensei/internal/types"
	"github.com/chukwu07/savings-sensei/pkg/offline"
	"github.com/shopspring/decimal"
)

func groceries() offline.Budget {
	return offline.Budget{
		Category:  "Groceries",
		Allocated: decimal.RequireFromString("150"),
		Period:    offline.Monthly,
	}
}

// TestE2E_TwoDevicesConverge records on one device and reads on another.
func TestE2E_TwoDevicesConverge(t *testing.T) {
	srv := startSensei(t)
	phone := newDevice(t, srv, "u1")
	laptop := newDevice(t, srv, "u1")

	var txID string
	phone.write(t, func(ctx context.Context, c *offline.Client) {
		tx, err := c.Transactions().Create(ctx, offline.Transaction{
			Description: "Coffee",
			Amount:      decimal.RequireFromString("4.50"),
			Category:    "Food",
			Type:        offline.Expense,
			Date:        offline.NewDate(2026, time.March, 1),
		})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		txID = tx.ID
	})

	if res := phone.sync(t); res.Stats.Pushed != 1 || res.Pending != 0 {
		t.Fatalf("phone sync = %+v, want 1 pushed and nothing pending", res)
	}
	if res := laptop.sync(t); res.Stats.Pulled != 1 {
		t.Fatalf("laptop sync = %+v, want 1 pulled", res)
	}

	laptop.write(t, func(ctx context.Context, c *offline.Client) {
		tx, err := c.Transactions().Get(ctx, txID)
		if err != nil {
			t.Fatalf("laptop Get: %v", err)
		}
		if tx.Description != "Coffee" || !tx.Synced {
			t.Errorf("laptop copy = %+v", tx)
		}
	})
}

// TestE2E_UsersAreIsolated checks that a second user never pulls the
// first user's records.
func TestE2E_UsersAreIsolated(t *testing.T) {
	srv := startSensei(t)
	alice := newDevice(t, srv, "alice")
	bob := newDevice(t, srv, "bob")

	alice.write(t, func(ctx context.Context, c *offline.Client) {
		if _, err := c.Budgets().Create(ctx, groceries()); err != nil {
			t.Fatalf("Create: %v", err)
		}
	})
	alice.sync(t)

	if res := bob.sync(t); res.Stats.Pulled != 0 {
		t.Errorf("bob pulled %d records, want 0", res.Stats.Pulled)
	}
	if got := srv.remoteRecords(t, types.TableBudgets, "bob"); len(got) != 0 {
		t.Errorf("bob sees %d budgets remotely, want 0", len(got))
	}
	if got := srv.remoteRecords(t, types.TableBudgets, "alice"); len(got) != 1 {
		t.Errorf("alice sees %d budgets remotely, want 1", len(got))
	}
}

// TestE2E_QueueSurvivesServerOutage keeps an edit queued while the hosted
// API is down and delivers it after the restart.
func TestE2E_QueueSurvivesServerOutage(t *testing.T) {
	srv := startSensei(t)
	phone := newDevice(t, srv, "u1")

	var budgetID string
	phone.write(t, func(ctx context.Context, c *offline.Client) {
		b, err := c.Budgets().Create(ctx, groceries())
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		budgetID = b.ID
	})
	phone.sync(t)

	// Given: The server goes away and the phone edits offline
	srv.stop()
	phone.write(t, func(ctx context.Context, c *offline.Client) {
		allocated := decimal.RequireFromString("200")
		if _, err := c.Budgets().Update(ctx, budgetID, func(b *offline.Budget) {
			offline.BudgetPatch{Allocated: &allocated}.Apply(b)
		}); err != nil {
			t.Fatalf("Update: %v", err)
		}
	})

	res := phone.sync(t)
	if res.Stats.PushFailed != 1 || res.Pending != 1 {
		t.Fatalf("sync while down = %+v, want 1 failed and 1 pending", res)
	}

	// When: The server comes back on the same data
	phone.server = srv.restartOnSameData(t)
	res = phone.sync(t)

	// Then: The edit is delivered and the hosted copy reflects it
	if res.Stats.Pushed != 1 || res.Pending != 0 {
		t.Fatalf("sync after restart = %+v, want 1 pushed and nothing pending", res)
	}
	recs := phone.server.remoteRecords(t, types.TableBudgets, "u1")
	if len(recs) != 1 {
		t.Fatalf("remote budgets = %d, want 1", len(recs))
	}
	phone.write(t, func(ctx context.Context, c *offline.Client) {
		b, err := c.Budgets().Get(ctx, budgetID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if !b.Allocated.Equal(decimal.RequireFromString("200")) || !b.Synced {
			t.Errorf("local budget = %+v", b)
		}
	})
}

// TestE2E_DeleteReachesHostedStore removes a synced record and checks the
// hosted copy is gone.
func TestE2E_DeleteReachesHostedStore(t *testing.T) {
	srv := startSensei(t)
	phone := newDevice(t, srv, "u1")

	var goalID string
	phone.write(t, func(ctx context.Context, c *offline.Client) {
		g, err := c.SavingsGoals().Create(ctx, offline.SavingsGoal{
			Name:         "Emergency fund",
			TargetAmount: decimal.RequireFromString("1000"),
		})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		goalID = g.ID
	})
	phone.sync(t)

	phone.write(t, func(ctx context.Context, c *offline.Client) {
		if err := c.SavingsGoals().Remove(ctx, goalID); err != nil {
			t.Fatalf("Remove: %v", err)
		}
	})
	if res := phone.sync(t); res.Pending != 0 {
		t.Fatalf("pending = %d after delete sync, want 0", res.Pending)
	}

	if got := srv.remoteRecords(t, types.TableSavingsGoals, "u1"); len(got) != 0 {
		t.Errorf("remote goals = %d, want 0", len(got))
	}
}
