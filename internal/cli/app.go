package cli

import (
	"bufio"
	"context"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/mediaup/internal/compress"
	"github.com/dmitrijs2005/mediaup/internal/config"
	"github.com/dmitrijs2005/mediaup/internal/filex"
	"github.com/dmitrijs2005/mediaup/internal/logging"
	"github.com/dmitrijs2005/mediaup/internal/store"
	"github.com/dmitrijs2005/mediaup/internal/upload"
)

// legacyStateFile is the pre-pipeline state file imported once on startup.
const legacyStateFile = "uploads.json"

type App struct {
	config *config.Config
	log    logging.Logger
	store  *store.SQLiteStore
	coord  *upload.Coordinator
	reader *bufio.Reader
}

func NewApp(c *config.Config) (*App, error) {

	ctx := context.Background()
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	dir, err := filex.EnsureSubdDir(c.DataDir)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, filepath.Join(dir, "state.db"))
	if err != nil {
		log.Printf("error initializing database: %s", err.Error())
		return nil, err
	}

	if err := importLegacyState(ctx, st, filepath.Join(dir, legacyStateFile), logger); err != nil {
		logger.Warn(ctx, "legacy state import failed", "err", err)
	}

	if n, err := st.CompactOlderThan(ctx, c.Retention); err != nil {
		logger.Warn(ctx, "session compaction failed", "err", err)
	} else if n > 0 {
		logger.Info(ctx, "compacted expired sessions", "count", n)
	}

	tiers, err := buildTiers(ctx, c)
	if err != nil {
		return nil, err
	}

	coord := upload.NewCoordinator(upload.CoordinatorConfig{
		Policy:        policyFromConfig(c),
		Tiers:         tiers,
		Backoff:       upload.Backoff{Base: c.RetryBaseDelay, Max: c.RetryMaxDelay},
		MaxConcurrent: c.MaxConcurrent,
	}, st, logger)

	return &App{config: c, log: logger, store: st, coord: coord, reader: bufio.NewReader(os.Stdin)}, nil
}

func (a *App) Run(ctx context.Context) {
	defer a.store.Close()
	a.Root(ctx)
}

// importLegacyState converts the old URL-list file into completed
// sessions. Keys that already exist in the store are skipped, so running
// the import on every startup is safe.
func importLegacyState(ctx context.Context, st store.Store, path string, logger logging.Logger) error {
	sessions, err := store.LoadLegacyFile(path)
	if err != nil {
		return err
	}
	for key, urls := range sessions {
		if err := st.ImportLegacy(ctx, key, urls); err != nil {
			return err
		}
	}
	if len(sessions) > 0 {
		logger.Info(ctx, "imported legacy sessions", "count", len(sessions))
	}
	return nil
}

func policyFromConfig(c *config.Config) compress.Policy {
	return compress.Policy{
		SkipBelowBytes: c.SkipBelowBytes,
		LightMaxBytes:  c.LightMaxBytes,
		MediumMaxBytes: c.MediumMaxBytes,
		Light:          compress.Profile{Quality: c.LightQuality, MaxDimension: c.LightMaxDimension, OutputFormat: "jpeg"},
		Medium:         compress.Profile{Quality: c.MediumQuality, MaxDimension: c.MediumMaxDimension, OutputFormat: "jpeg"},
		Heavy:          compress.Profile{Quality: c.HeavyQuality, MaxDimension: c.HeavyMaxDimension, OutputFormat: "jpeg"},
	}
}

// buildTiers assembles the ordered transport chain: the managed endpoint
// first, then the direct bucket when one is configured.
func buildTiers(ctx context.Context, c *config.Config) ([]upload.Tier, error) {
	tiers := []upload.Tier{{
		Transport:   upload.NewHTTPTransport(c.PrimaryEndpoint),
		MaxAttempts: c.PrimaryMaxAttempts,
		Timeout:     c.PrimaryTimeout,
	}}

	if c.S3Bucket != "" && c.S3BaseEndpoint != "" {
		direct, err := upload.NewS3Transport(ctx, upload.S3Options{
			BaseEndpoint:  c.S3BaseEndpoint,
			Region:        c.S3Region,
			Bucket:        c.S3Bucket,
			AccessKey:     c.S3AccessKey,
			SecretKey:     c.S3SecretKey,
			PublicBaseURL: c.S3PublicBaseURL,
		})
		if err != nil {
			return nil, err
		}
		tiers = append(tiers, upload.Tier{
			Transport:   direct,
			MaxAttempts: c.SecondaryMaxAttempts,
			Timeout:     c.SecondaryTimeout,
		})
	}

	return tiers, nil
}
