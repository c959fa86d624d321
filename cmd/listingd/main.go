package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/simodepertis/frontend-sub001/internal/admin"
	"github.com/simodepertis/frontend-sub001/internal/classifier"
	"github.com/simodepertis/frontend-sub001/internal/config"
	"github.com/simodepertis/frontend-sub001/internal/database"
	"github.com/simodepertis/frontend-sub001/internal/ingest"
	"github.com/simodepertis/frontend-sub001/internal/lock"
	"github.com/simodepertis/frontend-sub001/internal/metrics"
	"github.com/simodepertis/frontend-sub001/internal/notify"
	"github.com/simodepertis/frontend-sub001/internal/repository"
	"github.com/simodepertis/frontend-sub001/internal/schedule"
	"github.com/simodepertis/frontend-sub001/internal/scraper"
	"github.com/simodepertis/frontend-sub001/internal/service"
	"github.com/simodepertis/frontend-sub001/internal/storage"
	"github.com/simodepertis/frontend-sub001/pkg/logger"
)

const usage = `usage: listingd <command>

commands:
  serve         HTTP API, admin panel and the periodic bump/expiry jobs
  ingest        run one ingestion pass over the configured sources
  bump-tick     run one bump executor pass
  expiry-sweep  run one expiry sweep`

var commands = map[string]bool{"serve": true, "ingest": true, "bump-tick": true, "expiry-sweep": true}

func main() {
	if len(os.Args) < 2 || !commands[os.Args[1]] {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err := run(os.Args[1]); err != nil {
		log.Printf("listingd %s: %v", os.Args[1], err)
		os.Exit(1)
	}
}

// run owns every resource of a command so its deferred cleanup always runs
// before main decides the exit code.
func run(command string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logr := logger.New(cfg.LogLevel)

	db, err := database.Connect(cfg)
	if err != nil {
		return fmt.Errorf("database connect: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, db); err != nil {
		return fmt.Errorf("database migrate: %w", err)
	}

	svc, cleanup, err := build(ctx, cfg, db, logr)
	defer cleanup()
	if err != nil {
		return fmt.Errorf("wire: %w", err)
	}

	switch command {
	case "serve":
		err = svc.serve(ctx, cfg)
	case "ingest":
		var res service.RunResult
		res, err = svc.ingestion.Run(ctx, service.RunRequest{})
		printJSON(res)
	case "bump-tick":
		var report service.TickReport
		report, err = svc.executor.Tick(ctx)
		printJSON(report)
	case "expiry-sweep":
		var report service.SweepReport
		report, err = svc.sweeper.Tick(ctx)
		printJSON(report)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("command failed", "command", command, "err", err)
		return err
	}
	return nil
}

type app struct {
	log       *slog.Logger
	metrics   *metrics.Metrics
	notifier  notify.Notifier
	bumps     *service.BumpService
	wallet    *service.WalletService
	products  *service.ProductService
	ingestion *service.IngestionService
	executor  *service.Executor
	sweeper   *service.Sweeper
}

func build(ctx context.Context, cfg config.Config, db *sql.DB, logr *slog.Logger) (*app, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	locker, err := newLocker(ctx, cfg, db, logr)
	if err != nil {
		return nil, cleanup, err
	}
	if c, ok := locker.(*lock.Redis); ok {
		closers = append(closers, func() { _ = c.Close() })
	}

	var notifier notify.Notifier = notify.Noop{}
	if cfg.TelegramBotToken != "" && cfg.TelegramAlertChatID != 0 {
		tg, err := notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramAlertChatID, logr)
		if err != nil {
			return nil, cleanup, fmt.Errorf("telegram notifier: %w", err)
		}
		notifier = tg
	}

	m := metrics.New()

	listingRepo := repository.NewListingRepository(db)
	productRepo := repository.NewProductRepository(db)
	purchaseRepo := repository.NewPurchaseRepository(db)
	scheduleRepo := repository.NewScheduleRepository(db)
	bumpLogRepo := repository.NewBumpLogRepository(db)
	runRepo := repository.NewRunRepository(db)
	userRepo := repository.NewUserRepository(db)

	fetchers := scraper.Fetchers{
		HTTP: scraper.NewHTTPFetcher(cfg.FetchTimeout, cfg.FetchUserAgent, scraper.NewLimiter(cfg.FetchRPS)),
	}
	if cfg.BrowserEnabled {
		browser := scraper.NewBrowserFetcher(cfg.FetchTimeout, cfg.FetchUserAgent)
		fetchers.Browser = browser
		closers = append(closers, browser.Close)
	}

	upserterCfg := ingest.UpserterConfig{
		ContactDedup: cfg.IngestContactDedup,
		TTL:          cfg.ListingTTL,
		Classifier:   newClassifier(cfg, logr),
	}
	if cfg.PhotoMirrorEnabled() {
		uploader, err := storage.NewUploader(storage.Config{
			Endpoint:      cfg.S3Endpoint,
			Region:        cfg.S3Region,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			Bucket:        cfg.S3Bucket,
			PublicBaseURL: cfg.S3PublicBaseURL,
			UsePathStyle:  cfg.S3UsePathStyle,
			Prefix:        cfg.S3Prefix,
		})
		if err != nil {
			return nil, cleanup, fmt.Errorf("storage uploader: %w", err)
		}
		upserterCfg.Mirror = storage.NewPhotoMirror(uploader, cfg.FetchTimeout, cfg.FetchUserAgent, logr)
	}
	upserter := ingest.NewUpserter(listingRepo, upserterCfg, logr)
	registry := scraper.DefaultRegistry(fetchers)
	logr.Debug("scraper adapters registered", "adapters", registry.Names())
	orchestrator := ingest.NewOrchestrator(registry, upserter, m, logr)

	runDefaults := ingest.RunOptions{
		LimitPerSource: cfg.IngestLimitPerSource,
		DelayMin:       cfg.IngestDelayMin,
		DelayMax:       cfg.IngestDelayMax,
	}
	if cfg.IngestBotUserID > 0 {
		owner := cfg.IngestBotUserID
		runDefaults.OwnerID = &owner
	}
	loadSources := func() ([]scraper.SourceConfig, error) { return scraper.LoadSources(cfg.SourcesFile) }

	generator := schedule.NewGenerator(cfg.Location, rand.New(rand.NewSource(time.Now().UnixNano())))
	products := service.NewProductService(productRepo)
	if created, err := products.EnsureDefaults(ctx); err != nil {
		return nil, cleanup, fmt.Errorf("ensure default products: %w", err)
	} else if created > 0 {
		logr.Info("seeded default products", "created", created)
	}

	return &app{
		log:       logr,
		metrics:   m,
		notifier:  notifier,
		bumps:     service.NewBumpService(listingRepo, productRepo, purchaseRepo, scheduleRepo, bumpLogRepo, generator, logr),
		wallet:    service.NewWalletService(userRepo),
		products:  products,
		ingestion: service.NewIngestionService(runRepo, orchestrator, loadSources, locker, notifier, runDefaults, logr),
		executor:  service.NewExecutor(listingRepo, scheduleRepo, productRepo, bumpLogRepo, locker, m, cfg.Location, cfg.BumpBatchSize, cfg.BumpTickInterval, logr),
		sweeper:   service.NewSweeper(listingRepo, purchaseRepo, locker, m, logr),
	}, cleanup, nil
}

func newLocker(ctx context.Context, cfg config.Config, db *sql.DB, logr *slog.Logger) (lock.Locker, error) {
	switch cfg.LockBackend {
	case "redis":
		return lock.NewRedis(ctx, cfg.RedisURL, cfg.LockTTL, logr)
	case "memory":
		return lock.NewMemory(), nil
	default:
		return lock.NewMySQL(db, logr), nil
	}
}

func newClassifier(cfg config.Config, logr *slog.Logger) classifier.Classifier {
	var chain classifier.Chain
	if len(cfg.ClassifierBlocklist) > 0 {
		chain = append(chain, classifier.NewKeyword(cfg.ClassifierBlocklist))
	}
	if cfg.ClassifierURL != "" {
		chain = append(chain, classifier.NewRemote(cfg.ClassifierURL, cfg.ClassifierAPIKey, cfg.FetchTimeout, logr))
	}
	if len(chain) == 0 {
		return classifier.Allow{}
	}
	return chain
}

func (a *app) serve(ctx context.Context, cfg config.Config) error {
	server := admin.NewServer(cfg.ListenAddr, cfg.AdminUsername, cfg.AdminPassword, a.log, admin.Deps{
		Bumps:     a.bumps,
		Wallet:    a.wallet,
		Products:  a.products,
		Ingestion: a.ingestion,
		Executor:  a.executor,
		Sweeper:   a.sweeper,
		Metrics:   a.metrics.Handler(),
	})

	go a.every(ctx, "bump-tick", cfg.BumpTickInterval, func(ctx context.Context) error {
		_, err := a.executor.Tick(ctx)
		return err
	})
	go a.every(ctx, "expiry-sweep", cfg.SweepInterval, func(ctx context.Context) error {
		_, err := a.sweeper.Tick(ctx)
		return err
	})

	return server.Run(ctx)
}

// every runs job on a fixed cadence until ctx is done. A zero interval
// leaves the job to an external scheduler.
func (a *app) every(ctx context.Context, name string, interval time.Duration, job func(context.Context) error) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := job(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Error("periodic job failed", "job", name, "err", err)
				a.notifier.Notify(ctx, fmt.Sprintf("%s failed: %v", name, err))
			}
		}
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
