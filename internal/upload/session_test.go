package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/mediaup/internal/common"
	"github.com/dmitrijs2005/mediaup/internal/compress"
	"github.com/dmitrijs2005/mediaup/internal/logging"
	"github.com/dmitrijs2005/mediaup/internal/models"
	"github.com/dmitrijs2005/mediaup/internal/store"
)

func testStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testCoordinator(t *testing.T, st store.Store, policy compress.Policy, tiers []Tier) *Coordinator {
	t.Helper()
	cfg := CoordinatorConfig{
		Policy:        policy,
		Tiers:         tiers,
		Backoff:       Backoff{Base: time.Millisecond, Max: 5 * time.Millisecond},
		MaxConcurrent: 2,
	}
	return NewCoordinator(cfg, st, logging.NewSlogLogger(slog.Default()))
}

// writeJPEG writes a gradient image to dir and returns its SourceFile.
func writeJPEG(t *testing.T, dir string, name string, width, height int) models.SourceFile {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: uint8((x * y) % 256), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return models.SourceFile{Name: name, Path: path, Size: int64(buf.Len()), MIME: "image/jpeg"}
}

// uploadServer is an httptest endpoint that succeeds after failing the
// first failures requests, and records the decoded image dimensions of
// everything it accepts.
type uploadServer struct {
	mu       sync.Mutex
	failures int
	requests int
	widths   []int
	heights  []int
	srv      *httptest.Server
}

func newUploadServer(t *testing.T, failures int) *uploadServer {
	t.Helper()
	u := &uploadServer{failures: failures}
	u.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.requests++
		n := u.requests
		u.mu.Unlock()

		if n <= u.failures {
			w.WriteHeader(http.StatusBadGateway)
			return
		}

		file, _, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()

		if cfg, _, err := image.DecodeConfig(file); err == nil {
			u.mu.Lock()
			u.widths = append(u.widths, cfg.Width)
			u.heights = append(u.heights, cfg.Height)
			u.mu.Unlock()
		}

		_ = json.NewEncoder(w).Encode(map[string]string{
			"id":  fmt.Sprintf("rem-%d", n),
			"url": fmt.Sprintf("https://cdn.example/rem-%d", n),
		})
	}))
	t.Cleanup(u.srv.Close)
	return u
}

func (u *uploadServer) requestCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.requests
}

func tierFor(u *uploadServer, attempts int) Tier {
	return Tier{Transport: NewHTTPTransport(u.srv.URL), MaxAttempts: attempts, Timeout: 5 * time.Second}
}

// The flagship end-to-end path: a large JPEG lands in the medium band,
// the worker shrinks it under the dimension cap, the primary endpoint
// fails twice, and the direct tier finishes the job.
func TestCoordinator_MediumJPEGFallsBackAndSucceeds(t *testing.T) {
	dir := t.TempDir()
	src := writeJPEG(t, dir, "large.jpg", 3000, 2000)

	// Band boundaries are tuning values; pick them so this file is
	// squarely in the medium band.
	policy := compress.DefaultPolicy()
	policy.SkipBelowBytes = 1 << 10
	policy.LightMaxBytes = src.Size / 2
	policy.MediumMaxBytes = src.Size * 2

	primary := newUploadServer(t, 1000) // never succeeds
	secondary := newUploadServer(t, 0)

	st := testStore(t)
	c := testCoordinator(t, st, policy, []Tier{tierFor(primary, 2), tierFor(secondary, 2)})

	var events []Event
	var eventsMu sync.Mutex
	c.Subscribe(func(e Event) {
		eventsMu.Lock()
		events = append(events, e)
		eventsMu.Unlock()
	})

	ctx := context.Background()
	key, err := c.NewSession(ctx, []models.SourceFile{src})
	require.NoError(t, err)
	require.NoError(t, c.Start(ctx))

	items := c.Items()
	require.Len(t, items, 1)
	got := items[0]
	assert.Equal(t, models.StatusSucceeded, got.Status)
	assert.Equal(t, 3, got.Attempt, "two primary attempts plus one direct attempt")
	assert.True(t, got.CompressionApplied)
	assert.NotEmpty(t, got.RemoteID)
	assert.NotEmpty(t, got.RemoteURL)
	assert.Empty(t, got.Error)

	assert.Equal(t, 2, primary.requestCount())
	assert.Equal(t, 1, secondary.requestCount())

	// The accepted upload was shrunk under the medium profile's cap.
	require.Len(t, secondary.widths, 1)
	longer := secondary.widths[0]
	if secondary.heights[0] > longer {
		longer = secondary.heights[0]
	}
	assert.LessOrEqual(t, longer, policy.Medium.MaxDimension)

	// Attempt 2 was persisted (and published) before the tier switch.
	eventsMu.Lock()
	defer eventsMu.Unlock()
	var attemptBeforeSwitch int
	for _, e := range events {
		if e.Status == models.StatusUploading && e.Attempt == 3 {
			break
		}
		attemptBeforeSwitch = e.Attempt
	}
	assert.Equal(t, 2, attemptBeforeSwitch)

	// And the final state is durable under the session key.
	persisted, err := st.Load(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.Equal(t, models.StatusSucceeded, persisted.Items[0].Status)
	assert.Equal(t, 3, persisted.Items[0].Attempt)
}

func TestCoordinator_ResumeSkipsFinishedItems(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	primary := newUploadServer(t, 0)

	// A session persisted by an earlier run: one finished item, one that
	// never got off the ground.
	session := &models.Session{
		Key:       "resume-sess",
		CreatedAt: time.Now(),
		Items: []*models.UploadItem{
			{
				ID:        "done-1",
				Source:    models.SourceFile{Name: "done.jpg", Path: "/nope/done.jpg", Size: 10 << 10, MIME: "image/jpeg"},
				Status:    models.StatusSucceeded,
				Progress:  100,
				Attempt:   1,
				RemoteID:  "rem-done",
				RemoteURL: "https://cdn.example/rem-done",
			},
			{
				ID:     "todo-1",
				Source: writeJPEG(t, t.TempDir(), "todo.jpg", 100, 80),
				Status: models.StatusUploading,
			},
		},
	}
	require.NoError(t, st.Save(ctx, session))

	c := testCoordinator(t, st, compress.DefaultPolicy(), []Tier{tierFor(primary, 2)})
	require.NoError(t, c.Resume(ctx, "resume-sess"))

	tally := c.Summary()
	assert.Equal(t, 2, tally.Succeeded)
	assert.Equal(t, 0, tally.Pending)
	assert.Equal(t, 1, primary.requestCount(), "only the unfinished item hits the transport")

	// Resuming the now-complete session again is a no-op.
	require.NoError(t, c.Resume(ctx, "resume-sess"))
	assert.Equal(t, 1, primary.requestCount())
}

func TestCoordinator_ResumeUnknownKeyIsHardError(t *testing.T) {
	c := testCoordinator(t, testStore(t), compress.DefaultPolicy(), nil)

	err := c.Resume(context.Background(), "no-such-key")
	require.ErrorIs(t, err, common.ErrSessionNotFound)
}

func TestCoordinator_CancelAllDiscardsLateResults(t *testing.T) {
	dir := t.TempDir()
	files := []models.SourceFile{
		writeJPEG(t, dir, "a.jpg", 100, 80),
		writeJPEG(t, dir, "b.jpg", 100, 80),
	}

	release := make(chan struct{})
	var requests atomic.Int32
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		<-release // the call is in flight when CancelAll arrives
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "rem-late", "url": "https://cdn.example/rem-late"})
	}))
	t.Cleanup(slow.Close)
	t.Cleanup(func() {
		select {
		case <-release:
		default:
			close(release)
		}
	})

	st := testStore(t)
	tiers := []Tier{{Transport: NewHTTPTransport(slow.URL), MaxAttempts: 1, Timeout: 10 * time.Second}}
	c := testCoordinator(t, st, compress.DefaultPolicy(), tiers)

	ctx := context.Background()
	_, err := c.NewSession(ctx, files)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	// Wait until both transport calls are actually in flight.
	require.Eventually(t, func() bool { return requests.Load() == 2 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, c.CancelAll(ctx))
	close(release) // now the in-flight calls resolve successfully

	require.NoError(t, <-done)

	for _, it := range c.Items() {
		assert.Equal(t, models.StatusAborted, it.Status, "a late transport result must not resurrect item %s", it.ID)
	}
	tally := c.Summary()
	assert.Zero(t, tally.Succeeded)
	assert.Zero(t, tally.Failed, "aborted items are not failures")
}

func TestCoordinator_AddOnlyBeforeStart(t *testing.T) {
	dir := t.TempDir()
	primary := newUploadServer(t, 0)
	st := testStore(t)
	c := testCoordinator(t, st, compress.DefaultPolicy(), []Tier{tierFor(primary, 1)})

	ctx := context.Background()
	_, err := c.NewSession(ctx, []models.SourceFile{writeJPEG(t, dir, "a.jpg", 100, 80)})
	require.NoError(t, err)

	_, err = c.Add(ctx, writeJPEG(t, dir, "b.jpg", 100, 80))
	require.NoError(t, err)

	require.NoError(t, c.Start(ctx))

	_, err = c.Add(ctx, writeJPEG(t, dir, "c.jpg", 100, 80))
	require.ErrorIs(t, err, common.ErrSessionFinalized)

	assert.Equal(t, 2, c.Summary().Succeeded)
}

func TestCoordinator_RetryFailedReenqueuesOnlyFailures(t *testing.T) {
	dir := t.TempDir()
	st := testStore(t)

	// Fails every request until flipped.
	var healthy atomic.Bool
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "rem-ok", "url": "https://cdn.example/rem-ok"})
	}))
	t.Cleanup(srv.Close)

	tiers := []Tier{{Transport: NewHTTPTransport(srv.URL), MaxAttempts: 1, Timeout: 5 * time.Second}}
	c := testCoordinator(t, st, compress.DefaultPolicy(), tiers)

	ctx := context.Background()
	_, err := c.NewSession(ctx, []models.SourceFile{writeJPEG(t, dir, "a.jpg", 100, 80)})
	require.NoError(t, err)
	require.NoError(t, c.Start(ctx))

	require.Equal(t, 1, c.Summary().Failed)
	failedID := c.Items()[0].ID

	healthy.Store(true)
	require.NoError(t, c.RetryFailed(ctx))

	tally := c.Summary()
	assert.Equal(t, 1, tally.Succeeded)
	assert.Equal(t, 1, tally.Failed, "the original failed item stays listed")

	for _, it := range c.Items() {
		if it.ID == failedID {
			assert.Equal(t, models.StatusFailed, it.Status, "terminal items are never mutated")
		}
	}

	// Nothing to do when no failures remain... except the listed one,
	// which already got its replacement.
	before := requests.Load()
	require.NoError(t, c.RetryFailed(ctx))
	assert.Equal(t, before+1, requests.Load(), "the still-listed failure is re-enqueued again")
}

func TestCoordinator_SummaryIsDerived(t *testing.T) {
	st := testStore(t)
	c := testCoordinator(t, st, compress.DefaultPolicy(), nil)

	assert.Zero(t, c.Summary(), "no session means an empty tally")

	ctx := context.Background()
	session := &models.Session{
		Key:       "tally-sess",
		CreatedAt: time.Now(),
		Items: []*models.UploadItem{
			{ID: "s", Status: models.StatusSucceeded, Progress: 100},
			{ID: "f", Status: models.StatusFailed, Progress: 40},
			{ID: "p", Status: models.StatusUploading, Progress: 60},
			{ID: "a", Status: models.StatusAborted, Progress: 10},
		},
	}
	require.NoError(t, st.Save(ctx, session))

	loaded, err := st.Load(ctx, "tally-sess")
	require.NoError(t, err)
	tally := loaded.Tally()

	assert.Equal(t, 1, tally.Succeeded)
	assert.Equal(t, 1, tally.Failed)
	assert.Equal(t, 1, tally.Pending)
	assert.Equal(t, (100+40+60)/3, tally.TotalProgress, "aborted items stay out of the denominator")
}

func TestCoordinator_CrashResumeRestoresPersistedState(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	first, err := store.Open(ctx, dbPath)
	require.NoError(t, err)

	src := writeJPEG(t, dir, "a.jpg", 100, 80)
	session := &models.Session{
		Key:       "crash-sess",
		CreatedAt: time.Now(),
		Items: []*models.UploadItem{
			{ID: "mid-flight", Source: src, Status: models.StatusRetrying, Progress: 0, Attempt: 1, Error: "timeout"},
			{ID: "finished", Source: src, Status: models.StatusSucceeded, Progress: 100, Attempt: 1, RemoteID: "r", RemoteURL: "https://cdn.example/r"},
		},
	}
	require.NoError(t, first.Save(ctx, session))
	require.NoError(t, first.Close()) // the "crash"

	second, err := store.Open(ctx, dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	restored, err := second.Load(ctx, "crash-sess")
	require.NoError(t, err)
	require.NotNil(t, restored)
	assert.Equal(t, models.StatusRetrying, restored.Items[0].Status)
	assert.Equal(t, 1, restored.Items[0].Attempt)
	assert.Equal(t, "timeout", restored.Items[0].Error)

	primary := newUploadServer(t, 0)
	c := testCoordinator(t, second, compress.DefaultPolicy(), []Tier{tierFor(primary, 2)})
	require.NoError(t, c.Resume(ctx, "crash-sess"))

	assert.Equal(t, 2, c.Summary().Succeeded)
	assert.Equal(t, 1, primary.requestCount(), "only the interrupted item is re-driven")
}
