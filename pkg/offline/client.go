// Package offline is the app-facing entry point of the sync engine: record
// hooks that read and write the local store, plus the reconciliation
// controls the UI needs.
package offline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chukwu07/savings-sensei/internal/connectivity"
	"github.com/chukwu07/savings-sensei/internal/local"
	"github.com/chukwu07/savings-sensei/internal/reconcile"
	"github.com/chukwu07/savings-sensei/internal/remote"
	senseisync "github.com/chukwu07/savings-sensei/internal/sync"
	"github.com/chukwu07/savings-sensei/internal/worker"
)

var (
	// ErrClosed is returned by every call after Shutdown.
	ErrClosed = errors.New("client is closed")
	// ErrNoUser is returned by writes when no user is signed in.
	ErrNoUser = errors.New("no user signed in")
	// ErrNotFound is returned when a record does not exist for the current user.
	ErrNotFound = local.ErrNotFound
	// ErrExists is returned by Create when the id is already taken on this device.
	ErrExists = local.ErrExists
	// ErrBusy is returned by CompactQueue while a cycle is running.
	ErrBusy = reconcile.ErrBusy
)

type (
	// Remote is the hosted store the client reconciles against.
	Remote = remote.Remote
	// Observer reports connectivity.
	Observer = connectivity.Observer
	// SyncState is the reconciliation phase.
	SyncState = reconcile.State
	// SyncStats summarizes one cycle.
	SyncStats = senseisync.SyncStats
	// Watermark is the last successful pull time of a table.
	Watermark = senseisync.Watermark
	// CompactResult summarizes a queue compaction.
	CompactResult = local.CompactResult
	// Mutation is one queued local change.
	Mutation = senseisync.Mutation
)

// Config configures a Client.
type Config struct {
	// LocalPath is the SQLite file backing the local store.
	LocalPath string
	// RemoteURL is the hosted API base URL.
	RemoteURL string
	// Token is the bearer token sent to the hosted API.
	Token string

	SyncInterval    time.Duration
	ProbeInterval   time.Duration
	CompactInterval time.Duration
	QueueCapacity   int

	// AutoSync runs the periodic sync and compaction workers after Start.
	AutoSync bool
	// OfflineMode disables every background network activity.
	OfflineMode bool
	// PruneRemoteDeletes removes synced records the hosted store no longer has.
	PruneRemoteDeletes bool
}

// Option customizes a Client.
type Option func(*Client)

// WithRemote replaces the HTTP client built from Config.RemoteURL.
func WithRemote(r Remote) Option {
	return func(c *Client) { c.remote = r }
}

// WithObserver replaces the health-check prober.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// WithIdentity sets where the current user id comes from.
func WithIdentity(id Identity) Option {
	return func(c *Client) { c.identity = id }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithTransitionHook is called after every reconciliation state change.
func WithTransitionHook(fn func(from, to SyncState)) Option {
	return func(c *Client) { c.onTransition = fn }
}

// Client is the offline-first sync client.
type Client struct {
	config       Config
	store        *local.Store
	engine       *reconcile.Engine
	remote       Remote
	observer     Observer
	prober       *connectivity.Prober
	identity     Identity
	logger       *slog.Logger
	onTransition func(from, to SyncState)

	mu           sync.RWMutex
	closed       bool
	started      bool
	runCtx       context.Context
	cancel       context.CancelFunc
	unsubscribe  func()
	wg           sync.WaitGroup
	transactions *Records[Transaction, *Transaction]
	budgets      *Records[Budget, *Budget]
	savingsGoals *Records[SavingsGoal, *SavingsGoal]
}

// New opens the local store and assembles the client. Nothing touches the
// network until Start or PerformFullSync.
func New(config Config, opts ...Option) (*Client, error) {
	if config.LocalPath == "" {
		return nil, errors.New("LocalPath is required")
	}

	if config.SyncInterval == 0 {
		config.SyncInterval = 5 * time.Minute
	}
	if config.ProbeInterval == 0 {
		config.ProbeInterval = 30 * time.Second
	}
	if config.CompactInterval == 0 {
		config.CompactInterval = time.Hour
	}
	if config.QueueCapacity == 0 {
		config.QueueCapacity = 1000
	}

	c := &Client{config: config}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", "offline")

	if c.remote == nil {
		url := config.RemoteURL
		if config.OfflineMode {
			url = ""
		}
		c.remote = remote.NewHTTPClient(url, config.Token)
	}
	if c.observer == nil {
		pinger, ok := c.remote.(remote.Pinger)
		switch {
		case config.OfflineMode:
			c.observer = connectivity.NewManual(false)
		case ok:
			c.prober = connectivity.NewProber(pinger, config.ProbeInterval, c.logger)
			c.observer = c.prober
		default:
			c.observer = connectivity.NewManual(true)
		}
	}

	store, err := local.Open(context.Background(), config.LocalPath, local.Options{
		QueueCapacity: config.QueueCapacity,
		Logger:        c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	c.store = store
	c.engine = reconcile.New(store, store.Queue(), c.remote, reconcile.Options{
		PruneRemoteDeletes: config.PruneRemoteDeletes,
		OnTransition:       c.onTransition,
		Logger:             c.logger,
	})

	c.transactions = &Records[Transaction, *Transaction]{c: c}
	c.budgets = &Records[Budget, *Budget]{c: c}
	c.savingsGoals = &Records[SavingsGoal, *SavingsGoal]{c: c}

	return c, nil
}

// Start subscribes to connectivity changes and launches the background
// workers. Coming back online always triggers a cycle; the periodic
// workers run only with AutoSync.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.started {
		return nil
	}
	c.started = true
	c.runCtx, c.cancel = context.WithCancel(ctx)

	if c.config.OfflineMode {
		c.logger.Info("client started", "offline_mode", true)
		return nil
	}

	c.unsubscribe = c.observer.OnOnline(c.triggerSync)

	if c.prober != nil {
		c.startWorker("prober", c.prober.Run)
	}
	if c.config.AutoSync {
		syncer := worker.NewSyncCoordinator(c.engine, c.userID, c.observer, c.config.SyncInterval, c.logger)
		c.startWorker("sync-coordinator", syncer.Run)
		compactor := worker.NewCompactionCoordinator(c.engine, c.config.CompactInterval, c.logger)
		c.startWorker("compaction-coordinator", compactor.Run)
	}

	if c.observer.IsOnline() && c.userID() != "" {
		c.wg.Add(1)
		go c.backgroundSync()
	}

	c.logger.Info("client started",
		"auto_sync", c.config.AutoSync,
		"online", c.observer.IsOnline(),
	)
	return nil
}

// Shutdown stops the background workers and closes the local store.
// Queued mutations stay on disk for the next session.
func (c *Client) Shutdown() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()

	c.wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Close()
}

// PerformFullSync runs one reconciliation cycle for userID. A call made
// while another cycle runs returns immediately with Skipped set.
func (c *Client) PerformFullSync(ctx context.Context, userID string) (*SyncStats, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, ErrClosed
	}
	return c.engine.PerformFullSync(ctx, userID)
}

// PendingSyncCount returns the number of mutations queued for the signed-in
// user. With no user signed in it counts the whole queue.
func (c *Client) PendingSyncCount(ctx context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return 0, ErrClosed
	}
	if userID := c.userID(); userID != "" {
		return c.store.Queue().LenUser(ctx, userID)
	}
	return c.store.Queue().Len(ctx)
}

// Watermarks returns the last successful pull time per table.
func (c *Client) Watermarks(ctx context.Context) ([]Watermark, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, ErrClosed
	}
	return c.store.Watermarks(ctx)
}

// QueuedMutations returns every queued mutation in replay order.
func (c *Client) QueuedMutations(ctx context.Context) ([]Mutation, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, ErrClosed
	}
	return c.store.Queue().Drain(ctx)
}

// LastCompactedAt returns when the queue was last compacted, if ever.
func (c *Client) LastCompactedAt(ctx context.Context) (time.Time, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return time.Time{}, false, ErrClosed
	}
	return c.store.LastCompactedAt(ctx)
}

// CompactQueue collapses redundant queued mutations. Returns ErrBusy while
// a cycle is running.
func (c *Client) CompactQueue(ctx context.Context) (*CompactResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, ErrClosed
	}
	return c.engine.Compact(ctx)
}

// ResetQueue drops every queued mutation without sending it. Local records
// keep their content but are no longer pending.
func (c *Client) ResetQueue(ctx context.Context) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return 0, ErrClosed
	}
	return c.store.Queue().Clear(ctx)
}

// State returns the current reconciliation phase.
func (c *Client) State() SyncState {
	return c.engine.State()
}

// IsOnline reports the observer's view of connectivity.
func (c *Client) IsOnline() bool {
	return c.observer.IsOnline()
}

// Transactions returns the transaction hooks.
func (c *Client) Transactions() *Records[Transaction, *Transaction] {
	return c.transactions
}

// Budgets returns the budget hooks.
func (c *Client) Budgets() *Records[Budget, *Budget] {
	return c.budgets
}

// SavingsGoals returns the savings goal hooks.
func (c *Client) SavingsGoals() *Records[SavingsGoal, *SavingsGoal] {
	return c.savingsGoals
}

func (c *Client) userID() string {
	if c.identity == nil {
		return ""
	}
	return c.identity.UserID()
}

// triggerSync runs a cycle in the background. It is the OnOnline listener.
func (c *Client) triggerSync() {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return
	}
	c.wg.Add(1)
	c.mu.RUnlock()

	go c.backgroundSync()
}

func (c *Client) backgroundSync() {
	defer c.wg.Done()

	userID := c.userID()
	if userID == "" {
		return
	}
	stats, err := c.engine.PerformFullSync(c.runCtx, userID)
	if err != nil {
		c.logger.Error("background sync failed", "action", "sync", "error", err)
		return
	}
	if stats.Skipped {
		c.logger.Debug("background sync skipped", "action", "sync", "reason", "busy")
	}
}

// startWorker launches fn tracked by the client's WaitGroup.
func (c *Client) startWorker(name string, fn func(ctx context.Context)) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.logger.Debug("worker started", "worker", name)
		fn(c.runCtx)
		c.logger.Debug("worker stopped", "worker", name)
	}()
}
