package reconcile

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/chukwu07/savings-sensei/internal/types"
)

// fakeRemote is an in-memory hosted store that records every call.
type fakeRemote struct {
	mu    sync.Mutex
	rows  map[types.Table]map[string]types.Record
	calls []string
	clock time.Time

	selectErr map[types.Table]error
	writeErr  func(call string) error
	// selectGate, when set, blocks Select until it is closed.
	selectGate chan struct{}
	selecting  chan struct{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		rows:      map[types.Table]map[string]types.Record{},
		clock:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		selectErr: map[types.Table]error{},
	}
}

func (f *fakeRemote) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *fakeRemote) table(t types.Table) map[string]types.Record {
	if f.rows[t] == nil {
		f.rows[t] = map[string]types.Record{}
	}
	return f.rows[t]
}

// seed stores a record as if another device had written it.
func (f *fakeRemote) seed(table types.Table, rec types.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.table(table)[rec.ID] = rec
}

func (f *fakeRemote) get(table types.Table, id string) (types.Record, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.table(table)[id]
	return rec, ok
}

func (f *fakeRemote) writes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if len(c) < 6 || c[:6] != "SELECT" {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeRemote) Select(ctx context.Context, table types.Table, userID string) ([]types.Record, error) {
	if f.selectGate != nil {
		if f.selecting != nil {
			select {
			case f.selecting <- struct{}{}:
			default:
			}
		}
		<-f.selectGate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("SELECT %s", table))
	if err := f.selectErr[table]; err != nil {
		return nil, err
	}
	var out []types.Record
	for _, rec := range f.table(table) {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRemote) write(call string) error {
	f.calls = append(f.calls, call)
	if f.writeErr != nil {
		return f.writeErr(call)
	}
	return nil
}

func (f *fakeRemote) Insert(ctx context.Context, table types.Table, rec types.Record) (*types.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.write(fmt.Sprintf("INSERT %s/%s", table, rec.ID)); err != nil {
		return nil, err
	}
	if existing, ok := f.table(table)[rec.ID]; ok {
		return &existing, nil
	}
	now := f.tick()
	rec.CreatedAt, rec.UpdatedAt = now, now
	rec.Synced, rec.PendingSync = false, false
	f.table(table)[rec.ID] = rec
	return &rec, nil
}

func (f *fakeRemote) Update(ctx context.Context, table types.Table, id string, rec types.Record) (*types.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.write(fmt.Sprintf("UPDATE %s/%s", table, id)); err != nil {
		return nil, err
	}
	rec.ID = id
	rec.UpdatedAt = f.tick()
	rec.Synced, rec.PendingSync = false, false
	f.table(table)[id] = rec
	return &rec, nil
}

func (f *fakeRemote) Delete(ctx context.Context, table types.Table, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.write(fmt.Sprintf("DELETE %s/%s", table, id)); err != nil {
		return err
	}
	delete(f.table(table), id)
	return nil
}
