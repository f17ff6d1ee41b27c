// Package server builds the application graph and runs the HTTP service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/typetrace/fontinspector/internal/api"
	"github.com/typetrace/fontinspector/internal/clock/system"
	"github.com/typetrace/fontinspector/internal/config"
	"github.com/typetrace/fontinspector/internal/dispatcher"
	collyfetcher "github.com/typetrace/fontinspector/internal/fetcher/colly"
	headlessfetcher "github.com/typetrace/fontinspector/internal/fetcher/headless"
	"github.com/typetrace/fontinspector/internal/fonts"
	"github.com/typetrace/fontinspector/internal/hash/sha256"
	"github.com/typetrace/fontinspector/internal/headless/detector"
	"github.com/typetrace/fontinspector/internal/id/uuid"
	"github.com/typetrace/fontinspector/internal/inspector"
	"github.com/typetrace/fontinspector/internal/links"
	"github.com/typetrace/fontinspector/internal/logging"
	"github.com/typetrace/fontinspector/internal/metrics"
	"github.com/typetrace/fontinspector/internal/policy/ratelimit"
	"github.com/typetrace/fontinspector/internal/policy/simple"
	"github.com/typetrace/fontinspector/internal/progress"
	progresssinks "github.com/typetrace/fontinspector/internal/progress/sinks"
	memorypublisher "github.com/typetrace/fontinspector/internal/publisher/memory"
	gcppublisher "github.com/typetrace/fontinspector/internal/publisher/pubsub"
	queuememory "github.com/typetrace/fontinspector/internal/queue/memory"
	gcsstorage "github.com/typetrace/fontinspector/internal/storage/gcs"
	localstorage "github.com/typetrace/fontinspector/internal/storage/local"
	memorystorage "github.com/typetrace/fontinspector/internal/storage/memory"
	pgstore "github.com/typetrace/fontinspector/internal/storage/postgres"
	"github.com/typetrace/fontinspector/internal/store"
	"github.com/typetrace/fontinspector/internal/worker"
)

// App owns every long-lived component of the font inspector service.
type App struct {
	cfg          *config.Config
	logger       *zap.Logger
	apiServer    *api.Server
	dispatch     *dispatcher.Dispatcher
	progressHub  *progress.Hub
	queue        *queuememory.Queue
	pubsubClient *pubsub.Client
	pubsubTopic  *pubsub.Topic
	gcsClient    *storage.Client
	docStore     *pgstore.DocumentStore
	progressRepo store.ProgressRepository
}

// Build assembles the application from config. Backends without configuration
// fall back to their in-memory implementations so the service always starts.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application", zap.Int("port", cfg.Server.Port))

	projects, inspections, err := app.setupDocumentStores(ctx)
	if err != nil {
		return nil, err
	}
	blobStore, err := app.setupBlobStore(ctx)
	if err != nil {
		return nil, err
	}
	publisher, err := app.setupPublisher(ctx)
	if err != nil {
		return nil, err
	}
	emitter, err := app.setupProgress(ctx)
	if err != nil {
		return nil, err
	}

	clock := system.New()
	idGen := uuid.New()

	app.queue = queuememory.NewQueue(cfg.Inspector.QueueDepth)
	app.dispatch = app.setupDispatcher(inspections, blobStore, publisher, emitter, clock)

	linkSvc := links.NewService(projects, inspections, clock, logger.Named("links"))

	var progressHandler *api.ProgressHandler
	if app.progressRepo != nil {
		progressHandler = api.NewProgressHandler(app.progressRepo, logger.Named("runs"))
	}

	app.apiServer = api.NewServer(
		projects,
		inspections,
		linkSvc,
		app.dispatch,
		progressHandler,
		idGen,
		clock,
		*cfg,
		logger.Named("api"),
	)
	return app, nil
}

// Run starts the dispatcher and HTTP server and blocks until ctx is canceled
// or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		a.logger.Info("dispatcher started")
		a.dispatch.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	return a.Close(shutdownCtx)
}

// Close releases all infrastructure owned by the app.
func (a *App) Close(ctx context.Context) error {
	a.queue.Close()
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.pubsubTopic != nil {
		a.pubsubTopic.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.docStore != nil {
		a.docStore.Close()
	}
	if repo, ok := a.progressRepo.(*pgstore.ProgressStore); ok {
		repo.Close()
	}
	if err := a.logger.Sync(); err != nil {
		a.logger.Warn("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) setupDocumentStores(ctx context.Context) (inspector.ProjectStore, inspector.InspectionStore, error) {
	if a.cfg.Database.DSN == "" {
		a.logger.Info("no database DSN configured, using in-memory document stores")
		return memorystorage.NewProjectStore(), memorystorage.NewInspectionStore(system.New()), nil
	}
	docStore, err := pgstore.NewDocumentStore(ctx, pgstore.DocumentStoreConfig{
		DSN:             a.cfg.Database.DSN,
		MaxConns:        a.cfg.Database.MaxConns,
		MinConns:        a.cfg.Database.MinConns,
		MaxConnLifetime: a.cfg.Database.MaxConnLifetime,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("document store init: %w", err)
	}
	a.docStore = docStore
	a.logger.Info("postgres document store initialized")
	return docStore, docStore, nil
}

func (a *App) setupBlobStore(ctx context.Context) (inspector.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init: %w", err)
		}
		a.gcsClient = client
		blobStore, err := gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.Storage.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init: %w", err)
		}
		a.logger.Info("using GCS snapshot store", zap.String("bucket", a.cfg.Storage.Bucket))
		return blobStore, nil
	case "local":
		blobStore, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init: %w", err)
		}
		a.logger.Info("using local snapshot store", zap.String("base_dir", a.cfg.Storage.BaseDir))
		return blobStore, nil
	default:
		a.logger.Info("using in-memory snapshot store")
		return memorystorage.NewBlobStore(), nil
	}
}

func (a *App) setupPublisher(ctx context.Context) (inspector.Publisher, error) {
	if a.cfg.PubSub.ProjectID == "" || a.cfg.PubSub.TopicName == "" {
		a.logger.Info("no Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init: %w", err)
	}
	a.pubsubClient = client
	a.pubsubTopic = client.Topic(a.cfg.PubSub.TopicName)
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return gcppublisher.New(a.pubsubTopic), nil
}

func (a *App) setupProgress(ctx context.Context) (progress.Emitter, error) {
	if !a.cfg.Progress.Enabled {
		a.logger.Info("progress tracking disabled")
		return nil, nil
	}
	var sinkList []progress.Sink

	promSink, err := progresssinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		return nil, fmt.Errorf("prometheus sink init: %w", err)
	}
	sinkList = append(sinkList, promSink)

	if a.cfg.Database.DSN != "" {
		repo, err := pgstore.NewProgressStore(ctx, a.cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("progress store init: %w", err)
		}
		a.progressRepo = repo
		sinkList = append(sinkList, progresssinks.NewStoreSink(repo, a.logger.Named("progress_store")))
	}
	if a.cfg.Progress.LogEnabled {
		sinkList = append(sinkList, progresssinks.NewLogSink(a.logger.Named("progress_log")))
	}

	hubCfg := progress.Config{
		BufferSize:     a.cfg.Progress.BufferSize,
		MaxBatchEvents: a.cfg.Progress.Batch.MaxEvents,
		MaxBatchWait:   time.Duration(a.cfg.Progress.Batch.MaxWaitMs) * time.Millisecond,
		SinkTimeout:    time.Duration(a.cfg.Progress.SinkTimeoutMs) * time.Millisecond,
		BaseContext:    ctx,
		Logger:         a.logger.Named("progress_hub"),
	}
	a.progressHub = progress.NewHub(hubCfg, sinkList...)
	a.logger.Info("progress hub initialized", zap.Int("sinks", len(sinkList)))
	return a.progressHub, nil
}

func (a *App) setupDispatcher(
	inspections inspector.InspectionStore,
	blobStore inspector.BlobStore,
	publisher inspector.Publisher,
	emitter progress.Emitter,
	clock inspector.Clock,
) *dispatcher.Dispatcher {
	probeFetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:     a.cfg.Inspector.UserAgent,
		RespectRobots: !a.cfg.Inspector.IgnoreRobots,
		Timeout:       a.cfg.RequestTimeout(),
	})

	var headless inspector.Fetcher
	if a.cfg.Headless.Enabled {
		hf, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       a.cfg.Headless.MaxParallel,
			UserAgent:         a.cfg.Inspector.UserAgent,
			NavigationTimeout: time.Duration(a.cfg.Headless.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			a.logger.Warn("headless fetcher init failed, promotions disabled", zap.Error(err))
		} else {
			headless = hf
			a.logger.Info("headless fetcher enabled", zap.Int("max_parallel", a.cfg.Headless.MaxParallel))
		}
	}

	var pol inspector.Policy
	if a.cfg.RateLimit.Enabled {
		pol = ratelimit.New(ratelimit.Config{
			DefaultRPS:   a.cfg.RateLimit.DefaultRPS,
			DefaultBurst: a.cfg.RateLimit.DefaultBurst,
		})
		a.logger.Info("per-site rate limiter enabled", zap.Float64("rps", a.cfg.RateLimit.DefaultRPS))
	} else {
		pol = simple.New()
	}

	analyzer := fonts.NewAnalyzer(fonts.Config{
		MaxStylesheets:     a.cfg.Inspector.MaxStylesheets,
		MaxStylesheetBytes: a.cfg.Inspector.MaxStylesheetBytes,
	}, probeFetcher, a.logger.Named("fonts"))

	workerCfg := worker.Config{
		ContentType:    a.cfg.Storage.ContentType,
		SnapshotPrefix: a.cfg.Storage.Prefix,
		Topic:          a.cfg.PubSub.TopicName,
		RespectRobots:  !a.cfg.Inspector.IgnoreRobots,
	}
	deps := worker.Deps{
		Queue:           a.queue,
		Inspections:     inspections,
		BlobStore:       blobStore,
		Publisher:       publisher,
		Analyzer:        analyzer,
		Hasher:          sha256.New(),
		Clock:           clock,
		ProbeFetcher:    probeFetcher,
		HeadlessFetcher: headless,
		Detector:        detector.NewHeuristic(a.cfg.Headless.MinHTMLBytes),
		Policy:          pol,
		Retry:           worker.NewExponentialRetryPolicy(),
		Emitter:         emitter,
	}

	workers := make([]*worker.Worker, 0, a.cfg.Inspector.Concurrency)
	for i := 0; i < a.cfg.Inspector.Concurrency; i++ {
		workers = append(workers, worker.New(deps, workerCfg,
			a.logger.Named("worker").With(zap.Int("index", i))))
	}
	return dispatcher.New(a.queue, workers)
}
