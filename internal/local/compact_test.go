package local

import (
	"context"
	"encoding/json"
	"sort"
	"testing"

	senseisync "github.com/chukwu07/savings-sensei/internal/sync"
	"github.com/chukwu07/savings-sensei/internal/types"
)

func mut(seq int64, id string, op senseisync.Operation, attempts int, payload string) senseisync.Mutation {
	return senseisync.Mutation{
		Sequence:  seq,
		Table:     types.TableBudgets,
		EntityID:  id,
		Operation: op,
		Attempts:  attempts,
		Payload:   json.RawMessage(payload),
	}
}

func sortedSeqs(seqs []int64) []int64 {
	out := append([]int64(nil), seqs...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func equalSeqs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestPlanCompaction(t *testing.T) {
	const (
		ins = senseisync.OperationInsert
		upd = senseisync.OperationUpdate
		del = senseisync.OperationDelete
	)

	tests := []struct {
		name        string
		entries     []senseisync.Mutation
		wantRemove  []int64
		wantRewrite map[int64]string
	}{
		{
			name:        "empty queue",
			entries:     nil,
			wantRewrite: map[int64]string{},
		},
		{
			name: "consecutive updates merge into earliest",
			entries: []senseisync.Mutation{
				mut(1, "a", upd, 0, `"v1"`),
				mut(2, "a", upd, 0, `"v2"`),
				mut(3, "a", upd, 0, `"v3"`),
			},
			wantRemove:  []int64{2, 3},
			wantRewrite: map[int64]string{1: `"v3"`},
		},
		{
			name: "updates fold into unattempted insert",
			entries: []senseisync.Mutation{
				mut(1, "a", ins, 0, `"v1"`),
				mut(2, "a", upd, 0, `"v2"`),
			},
			wantRemove:  []int64{2},
			wantRewrite: map[int64]string{1: `"v2"`},
		},
		{
			name: "updates do not fold into attempted insert",
			entries: []senseisync.Mutation{
				mut(1, "a", ins, 1, `"v1"`),
				mut(2, "a", upd, 0, `"v2"`),
				mut(3, "a", upd, 0, `"v3"`),
			},
			wantRemove:  []int64{3},
			wantRewrite: map[int64]string{2: `"v3"`},
		},
		{
			name: "insert update delete collapses to nothing",
			entries: []senseisync.Mutation{
				mut(1, "a", ins, 0, `"v1"`),
				mut(2, "a", upd, 0, `"v2"`),
				mut(3, "a", del, 0, `{"id":"a"}`),
			},
			wantRemove:  []int64{1, 2, 3},
			wantRewrite: map[int64]string{},
		},
		{
			name: "attempted insert then delete is kept",
			entries: []senseisync.Mutation{
				mut(1, "a", ins, 2, `"v1"`),
				mut(2, "a", del, 0, `{"id":"a"}`),
			},
			wantRewrite: map[int64]string{},
		},
		{
			name: "other records interleaved are independent",
			entries: []senseisync.Mutation{
				mut(1, "a", upd, 0, `"a1"`),
				mut(2, "b", upd, 0, `"b1"`),
				mut(3, "a", upd, 0, `"a2"`),
				mut(4, "b", del, 0, `{"id":"b"}`),
			},
			wantRemove:  []int64{3},
			wantRewrite: map[int64]string{1: `"a2"`},
		},
		{
			name: "update after delete is not merged across the delete",
			entries: []senseisync.Mutation{
				mut(1, "a", upd, 0, `"v1"`),
				mut(2, "a", del, 0, `{"id":"a"}`),
				mut(3, "a", upd, 0, `"v3"`),
			},
			wantRewrite: map[int64]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := PlanCompaction(tt.entries)

			if got := sortedSeqs(plan.Remove); !equalSeqs(got, sortedSeqs(tt.wantRemove)) {
				t.Errorf("Remove = %v, want %v", got, tt.wantRemove)
			}
			if len(plan.Rewrite) != len(tt.wantRewrite) {
				t.Fatalf("Rewrite = %v, want %v", plan.Rewrite, tt.wantRewrite)
			}
			for seq, want := range tt.wantRewrite {
				if got := string(plan.Rewrite[seq]); got != want {
					t.Errorf("Rewrite[%d] = %s, want %s", seq, got, want)
				}
			}
		})
	}
}

func TestQueue_Compact(t *testing.T) {
	s := newTestStore(t)
	q := s.Queue()
	ctx := context.Background()

	// Given: a record created and edited twice offline, plus a created-then-deleted record
	q.Enqueue(ctx, types.TableBudgets, senseisync.OperationInsert, "b1", "u1", json.RawMessage(`{"v":1}`))
	q.Enqueue(ctx, types.TableBudgets, senseisync.OperationUpdate, "b1", "u1", json.RawMessage(`{"v":2}`))
	q.Enqueue(ctx, types.TableTransactions, senseisync.OperationInsert, "t1", "u1", json.RawMessage(`{}`))
	q.Enqueue(ctx, types.TableBudgets, senseisync.OperationUpdate, "b1", "u1", json.RawMessage(`{"v":3}`))
	q.Enqueue(ctx, types.TableTransactions, senseisync.OperationDelete, "t1", "u1", json.RawMessage(`{"id":"t1"}`))

	// When: compacted
	result, err := q.Compact(ctx)
	if err != nil {
		t.Fatalf("Compact error = %v", err)
	}

	// Then: only the INSERT of b1 remains, carrying the last payload
	if result.Before != 5 || result.After != 1 {
		t.Errorf("result = %+v, want 5 -> 1", result)
	}
	entries, _ := q.Drain(ctx)
	if len(entries) != 1 {
		t.Fatalf("queue = %+v, want one entry", entries)
	}
	if entries[0].Operation != senseisync.OperationInsert || string(entries[0].Payload) != `{"v":3}` {
		t.Errorf("entry = %s %s, want INSERT {\"v\":3}", entries[0].Operation, entries[0].Payload)
	}

	if _, ok, _ := s.LastCompactedAt(ctx); !ok {
		t.Error("LastCompactedAt not recorded")
	}
}
