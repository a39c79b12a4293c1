package upload

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/mediaup/internal/common"
	"github.com/dmitrijs2005/mediaup/internal/compress"
	"github.com/dmitrijs2005/mediaup/internal/logging"
	"github.com/dmitrijs2005/mediaup/internal/models"
	"github.com/dmitrijs2005/mediaup/internal/store"
)

// CoordinatorConfig carries the pipeline settings the coordinator and its
// orchestrators need.
type CoordinatorConfig struct {
	Policy        compress.Policy
	Tiers         []Tier
	Backoff       Backoff
	MaxConcurrent int
}

// Coordinator manages one session: it creates items, fans work out to a
// bounded number of orchestrators, funnels every mutation through its
// single in-memory session snapshot, and persists after each transition.
// The store is the only shared mutable resource across orchestrators, and
// all writes go through this one funnel.
type Coordinator struct {
	mu        sync.Mutex
	session   *models.Session
	cancels   map[string]context.CancelFunc
	finalized bool
	running   bool

	store  store.Store
	orch   *Orchestrator
	events Publisher
	limit  int
	log    logging.Logger
}

// NewCoordinator builds a coordinator and the orchestrator it drives. The
// bounded worker pool is owned here and sized by cfg.MaxConcurrent.
func NewCoordinator(cfg CoordinatorConfig, st store.Store, log logging.Logger) *Coordinator {
	limit := cfg.MaxConcurrent
	if limit <= 0 {
		limit = 1
	}

	c := &Coordinator{
		store:   st,
		cancels: make(map[string]context.CancelFunc),
		limit:   limit,
		log:     log,
	}
	c.orch = NewOrchestrator(cfg.Policy, compress.NewWorker(log), cfg.Tiers, cfg.Backoff, c, log)
	return c
}

// Subscribe registers a listener for item progress events.
func (c *Coordinator) Subscribe(l Listener) {
	c.events.Subscribe(l)
}

// NewSession creates one Pending item per file, persists the initial
// session and returns the session key.
func (c *Coordinator) NewSession(ctx context.Context, files []models.SourceFile) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return "", common.ErrSessionRunning
	}

	session := &models.Session{Key: uuid.NewString(), CreatedAt: time.Now()}
	for _, f := range files {
		session.Items = append(session.Items, &models.UploadItem{
			ID:     uuid.NewString(),
			Source: f,
			Status: models.StatusPending,
		})
	}

	if err := c.store.Save(ctx, session); err != nil {
		return "", fmt.Errorf("persist session: %w", err)
	}

	c.session = session
	c.finalized = false
	return session.Key, nil
}

// Add appends one more file to the current session. Items can be added
// only until Start finalizes the session.
func (c *Coordinator) Add(ctx context.Context, f models.SourceFile) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return "", common.ErrNoSession
	}
	if c.finalized {
		return "", common.ErrSessionFinalized
	}

	item := &models.UploadItem{ID: uuid.NewString(), Source: f, Status: models.StatusPending}
	c.session.Items = append(c.session.Items, item)

	if err := c.store.Save(ctx, c.session); err != nil {
		return "", fmt.Errorf("persist session: %w", err)
	}
	return item.ID, nil
}

// Start finalizes the session and processes every non-terminal item,
// running at most MaxConcurrent orchestrators at a time. It blocks until
// the batch settles. Completion order across items is unspecified.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return common.ErrNoSession
	}
	if c.running {
		c.mu.Unlock()
		return common.ErrSessionRunning
	}
	c.finalized = true
	c.running = true

	pending := make([]*models.UploadItem, 0, len(c.session.Items))
	for _, it := range c.session.Items {
		if !it.Status.Terminal() {
			pending = append(pending, it)
		}
	}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.limit)

	for _, it := range pending {
		itemID, src := it.ID, it.Source

		itemCtx, cancel := context.WithCancel(gctx)
		c.registerCancel(itemID, cancel)

		g.Go(func() error {
			defer c.unregisterCancel(itemID)
			defer cancel()
			return c.orch.Run(itemCtx, ctx, itemID, src)
		})
	}

	return g.Wait()
}

// Resume loads a persisted session and relaunches orchestrators only for
// items that are not already terminal, so re-running Resume never
// duplicates finished work. Resuming an already-complete session is a
// no-op; an unknown key is a hard contract error.
func (c *Coordinator) Resume(ctx context.Context, sessionKey string) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return common.ErrSessionRunning
	}
	c.mu.Unlock()

	loaded, err := c.store.Load(ctx, sessionKey)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if loaded == nil {
		return fmt.Errorf("resume %q: %w", sessionKey, common.ErrSessionNotFound)
	}

	c.mu.Lock()
	c.session = loaded
	c.finalized = true
	// An item interrupted mid-flight restarts its pipeline from the top:
	// compression output was never persisted. The attempt counter carries
	// over, transport attempts are the budget being tracked.
	for _, it := range loaded.Items {
		if !it.Status.Terminal() {
			it.Status = models.StatusPending
			it.Progress = 0
		}
	}
	c.mu.Unlock()

	return c.Start(ctx)
}

// CancelAll aborts every non-terminal item. Compression and backoff waits
// are canceled immediately; a transport call already in flight completes
// naturally and its result is then discarded by the terminal-state guard.
func (c *Coordinator) CancelAll(ctx context.Context) error {
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return common.ErrNoSession
	}

	var aborted []Event
	for _, it := range c.session.Items {
		if !it.Status.Terminal() {
			it.Status = models.StatusAborted
			aborted = append(aborted, Event{ItemID: it.ID, Status: it.Status, Progress: it.Progress, Attempt: it.Attempt})
		}
	}
	c.session.UpdatedAt = time.Now()

	cancels := make([]context.CancelFunc, 0, len(c.cancels))
	for _, cancel := range c.cancels {
		cancels = append(cancels, cancel)
	}

	err := c.store.Save(ctx, c.session)
	c.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	for _, e := range aborted {
		c.events.publish(e)
	}

	if err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

// RetryFailed re-enqueues every Failed item as a fresh item with a new id
// and processes just that subset. Terminal items themselves are never
// mutated, and an aborted item's id is never reused.
func (c *Coordinator) RetryFailed(ctx context.Context) error {
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return common.ErrNoSession
	}
	if c.running {
		c.mu.Unlock()
		return common.ErrSessionRunning
	}

	var fresh []*models.UploadItem
	for _, it := range c.session.Items {
		if it.Status == models.StatusFailed {
			fresh = append(fresh, &models.UploadItem{
				ID:     uuid.NewString(),
				Source: it.Source,
				Status: models.StatusPending,
			})
		}
	}
	if len(fresh) == 0 {
		c.mu.Unlock()
		return nil
	}

	c.session.Items = append(c.session.Items, fresh...)
	err := c.store.Save(ctx, c.session)
	c.mu.Unlock()

	if err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return c.Start(ctx)
}

// Clear deletes the current session from the store and forgets it.
func (c *Coordinator) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return common.ErrNoSession
	}
	if c.running {
		return common.ErrSessionRunning
	}

	if err := c.store.Clear(ctx, c.session.Key); err != nil {
		return err
	}
	c.session = nil
	c.finalized = false
	return nil
}

// SessionKey returns the active session's key, or "".
func (c *Coordinator) SessionKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.Key
}

// Summary derives the aggregate counts by scanning current item states.
// It is always computed, never maintained as separate counters.
func (c *Coordinator) Summary() models.Tally {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return models.Tally{}
	}
	return c.session.Tally()
}

// Items returns a snapshot of the current items, cloned so callers can
// read them without holding the session lock.
func (c *Coordinator) Items() []*models.UploadItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	out := make([]*models.UploadItem, 0, len(c.session.Items))
	for _, it := range c.session.Items {
		out = append(out, it.Clone())
	}
	return out
}

// Apply implements Sink: it mutates the item under the session lock,
// refuses mutation once the item is terminal, persists the whole session
// before returning control and then publishes a progress event.
func (c *Coordinator) Apply(ctx context.Context, itemID string, fn func(*models.UploadItem)) (bool, error) {
	c.mu.Lock()

	if c.session == nil {
		c.mu.Unlock()
		return false, common.ErrNoSession
	}
	item := c.session.Item(itemID)
	if item == nil {
		c.mu.Unlock()
		return false, fmt.Errorf("%w: %s", common.ErrItemNotFound, itemID)
	}
	if item.Status.Terminal() {
		c.mu.Unlock()
		return false, nil
	}

	fn(item)
	c.session.UpdatedAt = time.Now()
	err := c.store.Save(ctx, c.session)
	event := Event{ItemID: item.ID, Status: item.Status, Progress: item.Progress, Attempt: item.Attempt, Error: item.Error}
	c.mu.Unlock()

	if err != nil {
		return false, fmt.Errorf("persist session: %w", err)
	}

	c.events.publish(event)
	return true, nil
}

func (c *Coordinator) registerCancel(itemID string, cancel context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancels[itemID] = cancel
}

func (c *Coordinator) unregisterCancel(itemID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cancels, itemID)
}
