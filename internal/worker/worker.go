// Package worker implements the inspection pipeline execution loop.
package worker

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/typetrace/fontinspector/internal/fonts"
	"github.com/typetrace/fontinspector/internal/inspector"
	"github.com/typetrace/fontinspector/internal/metrics"
	"github.com/typetrace/fontinspector/internal/progress"
)

// Config controls Worker behavior.
type Config struct {
	ContentType    string
	SnapshotPrefix string
	Topic          string
	RespectRobots  bool
}

// Deps bundles the collaborators a Worker needs. Analyzer, HeadlessFetcher,
// Detector, Policy, Retry, and Emitter may be nil; the corresponding step is
// skipped.
type Deps struct {
	Queue           inspector.Queue
	Inspections     inspector.InspectionStore
	BlobStore       inspector.BlobStore
	Publisher       inspector.Publisher
	Analyzer        *fonts.Analyzer
	Hasher          inspector.Hasher
	Clock           inspector.Clock
	ProbeFetcher    inspector.Fetcher
	HeadlessFetcher inspector.Fetcher
	Detector        inspector.RenderDetector
	Policy          inspector.Policy
	Retry           inspector.RetryPolicy
	Emitter         progress.Emitter
}

// Worker consumes queue items and runs each inspection to a terminal status.
type Worker struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New constructs a Worker.
func New(deps Deps, cfg Config, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "text/html; charset=utf-8"
	}
	return &Worker{deps: deps, cfg: cfg, logger: logger}
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.deps.Queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued inspection", zap.String("inspection_id", item.InspectionID))
		w.processItem(ctx, item)
	}
}

func (w *Worker) processItem(ctx context.Context, item inspector.QueueItem) {
	insp, err := w.deps.Inspections.GetInspection(ctx, item.InspectionID)
	if err != nil {
		w.logger.Warn("inspection lookup failed, dropping item",
			zap.String("inspection_id", item.InspectionID),
			zap.Error(err),
		)
		return
	}
	if insp.Status == inspector.StatusCompleted {
		w.logger.Debug("inspection already completed", zap.String("inspection_id", item.InspectionID))
		return
	}

	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	start := w.now()
	w.emit(progress.Event{
		InspectionID: progress.ParseInspectionID(insp.ID),
		TS:           start,
		Stage:        progress.StageInspectStart,
		URL:          insp.URL,
	})

	if err := w.deps.Inspections.UpdateStatus(ctx, insp.ID, inspector.StatusProcessing, 10, ""); err != nil {
		w.logger.Error("update status failed", zap.String("inspection_id", insp.ID), zap.Error(err))
		return
	}

	result, err := w.inspect(ctx, insp)
	if err != nil {
		w.fail(ctx, insp, start, err)
		return
	}

	if err := w.deps.Inspections.SaveResult(ctx, result); err != nil {
		w.fail(ctx, insp, start, fmt.Errorf("save result: %w", err))
		return
	}
	if err := w.publishResult(ctx, insp, result); err != nil {
		w.fail(ctx, insp, start, err)
		return
	}
	if err := w.deps.Inspections.UpdateStatus(ctx, insp.ID, inspector.StatusCompleted, 100, ""); err != nil {
		w.logger.Error("final status update failed", zap.String("inspection_id", insp.ID), zap.Error(err))
		return
	}

	metrics.ObserveInspection(string(inspector.StatusCompleted))
	w.emit(progress.Event{
		InspectionID: progress.ParseInspectionID(insp.ID),
		TS:           w.now(),
		Stage:        progress.StageInspectDone,
		URL:          insp.URL,
		Dur:          w.now().Sub(start),
	})
	w.logger.Info("inspection completed",
		zap.String("inspection_id", insp.ID),
		zap.String("url", insp.URL),
		zap.Bool("headless", result.UsedHeadless),
	)
}

// inspect performs the fetch, optional headless promotion, font analysis, and
// snapshot upload. It returns the result to persist or the first fatal error.
func (w *Worker) inspect(ctx context.Context, insp inspector.Inspection) (inspector.InspectionResult, error) {
	if !w.allowFetch(insp.ID, insp.URL) {
		return inspector.InspectionResult{}, fmt.Errorf("fetch blocked by policy: %s", insp.URL)
	}

	resp, err := w.fetchWithRetry(ctx, insp)
	if err != nil {
		return inspector.InspectionResult{}, fmt.Errorf("probe fetch: %w", err)
	}
	w.recordFetch(insp, resp)

	if promoted, ok := w.maybePromote(ctx, insp, resp); ok {
		resp = promoted
		w.recordFetch(insp, resp)
	}
	if err := w.deps.Inspections.UpdateStatus(ctx, insp.ID, inspector.StatusProcessing, 40, ""); err != nil {
		w.logger.Error("update status failed", zap.String("inspection_id", insp.ID), zap.Error(err))
	}

	report, err := w.analyze(ctx, resp)
	if err != nil {
		return inspector.InspectionResult{}, err
	}
	if err := w.deps.Inspections.UpdateStatus(ctx, insp.ID, inspector.StatusProcessing, 70, ""); err != nil {
		w.logger.Error("update status failed", zap.String("inspection_id", insp.ID), zap.Error(err))
	}

	hash, err := w.deps.Hasher.Hash(resp.Body)
	if err != nil {
		return inspector.InspectionResult{}, fmt.Errorf("hash body: %w", err)
	}
	uri, err := w.deps.BlobStore.PutObject(
		ctx,
		w.snapshotPath(insp.ID, hash),
		w.cfg.ContentType,
		bytes.NewReader(resp.Body),
	)
	if err != nil {
		return inspector.InspectionResult{}, fmt.Errorf("put snapshot: %w", err)
	}

	return inspector.InspectionResult{
		InspectionID: insp.ID,
		URL:          resp.URL,
		StatusCode:   resp.StatusCode,
		UsedHeadless: resp.UsedHeadless,
		FetchedAt:    w.now(),
		DurationMs:   resp.Duration.Milliseconds(),
		ContentHash:  hash,
		SnapshotURI:  uri,
		Report:       report,
	}, nil
}

func (w *Worker) fetchWithRetry(ctx context.Context, insp inspector.Inspection) (inspector.FetchResponse, error) {
	req := inspector.FetchRequest{
		InspectionID:          insp.ID,
		URL:                   insp.URL,
		RespectRobots:         w.cfg.RespectRobots,
		RespectRobotsProvided: true,
	}
	for attempt := 1; ; attempt++ {
		resp, err := w.deps.ProbeFetcher.Fetch(ctx, req)
		if err == nil {
			return resp, nil
		}
		if w.deps.Retry == nil || !w.deps.Retry.ShouldRetry(err, attempt) {
			return inspector.FetchResponse{}, err
		}
		w.logger.Warn("fetch attempt failed, retrying",
			zap.String("inspection_id", insp.ID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return inspector.FetchResponse{}, ctx.Err()
		case <-time.After(w.deps.Retry.Backoff(attempt)):
		}
	}
}

func (w *Worker) maybePromote(
	ctx context.Context,
	insp inspector.Inspection,
	resp inspector.FetchResponse,
) (inspector.FetchResponse, bool) {
	if !insp.HeadlessAllowed || w.deps.Detector == nil || w.deps.HeadlessFetcher == nil {
		return resp, false
	}
	if !w.allowHeadless(insp.ID, insp.URL) || !w.deps.Detector.ShouldPromote(resp) {
		return resp, false
	}

	headlessResp, err := w.deps.HeadlessFetcher.Fetch(ctx, inspector.FetchRequest{
		InspectionID:          insp.ID,
		URL:                   insp.URL,
		UseHeadless:           true,
		RespectRobots:         w.cfg.RespectRobots,
		RespectRobotsProvided: true,
	})
	if err != nil {
		w.logger.Warn("headless promotion failed",
			zap.String("inspection_id", insp.ID),
			zap.String("url", insp.URL),
			zap.Error(err),
		)
		return resp, false
	}
	metrics.ObserveHeadlessPromotion()
	headlessResp.UsedHeadless = true
	return headlessResp, true
}

func (w *Worker) analyze(ctx context.Context, resp inspector.FetchResponse) (inspector.FontReport, error) {
	if w.deps.Analyzer == nil {
		return inspector.FontReport{Active: resp.ActiveFonts}, nil
	}
	report, err := w.deps.Analyzer.Analyze(ctx, resp.URL, resp.Body)
	if err != nil {
		return inspector.FontReport{}, fmt.Errorf("analyze fonts: %w", err)
	}
	// The browser's document.fonts view only exists after a headless render.
	if len(resp.ActiveFonts) > 0 {
		report.Active = resp.ActiveFonts
	}
	for provider, count := range facesByProvider(report.Faces) {
		metrics.ObserveFontFaces(provider, count)
	}
	return report, nil
}

func (w *Worker) publishResult(
	ctx context.Context,
	insp inspector.Inspection,
	result inspector.InspectionResult,
) error {
	if w.cfg.Topic == "" || w.deps.Publisher == nil {
		return nil
	}
	payload := map[string]any{
		"inspection_id": insp.ID,
		"project_id":    insp.ProjectID,
		"url":           insp.URL,
		"snapshot_uri":  result.SnapshotURI,
		"hash":          result.ContentHash,
		"timestamp":     w.now().Format(time.RFC3339),
		"status":        result.StatusCode,
		"headless":      result.UsedHeadless,
		"font_families": len(result.Report.Usage),
	}
	if _, err := w.deps.Publisher.Publish(ctx, w.cfg.Topic, payload); err != nil {
		return fmt.Errorf("publish payload: %w", err)
	}
	return nil
}

func (w *Worker) fail(ctx context.Context, insp inspector.Inspection, start time.Time, cause error) {
	w.logger.Error("inspection failed",
		zap.String("inspection_id", insp.ID),
		zap.String("url", insp.URL),
		zap.Error(cause),
	)
	if err := w.deps.Inspections.UpdateStatus(ctx, insp.ID, inspector.StatusFailed, 100, cause.Error()); err != nil {
		w.logger.Error("failed status update failed", zap.String("inspection_id", insp.ID), zap.Error(err))
	}
	metrics.ObserveInspection(string(inspector.StatusFailed))
	w.emit(progress.Event{
		InspectionID: progress.ParseInspectionID(insp.ID),
		TS:           w.now(),
		Stage:        progress.StageInspectError,
		URL:          insp.URL,
		Dur:          w.now().Sub(start),
		Note:         cause.Error(),
	})
}

func (w *Worker) recordFetch(insp inspector.Inspection, resp inspector.FetchResponse) {
	site := metrics.SanitizeSite(insp.URL)
	metrics.ObserveFetch(site, strconv.Itoa(resp.StatusCode), len(resp.Body))
	w.emit(progress.Event{
		InspectionID: progress.ParseInspectionID(insp.ID),
		TS:           w.now(),
		Stage:        progress.StageFetchDone,
		Site:         site,
		URL:          insp.URL,
		Bytes:        int64(len(resp.Body)),
		Visits:       1,
		StatusClass:  progress.ClassifyStatus(resp.StatusCode),
		Dur:          resp.Duration,
	})
}

func (w *Worker) emit(evt progress.Event) {
	if w.deps.Emitter == nil {
		return
	}
	w.deps.Emitter.Emit(evt)
}

func (w *Worker) allowFetch(inspectionID, url string) bool {
	if w.deps.Policy == nil {
		return true
	}
	return w.deps.Policy.AllowFetch(inspectionID, url)
}

func (w *Worker) allowHeadless(inspectionID, url string) bool {
	if w.deps.Policy == nil {
		return true
	}
	return w.deps.Policy.AllowHeadless(inspectionID, url)
}

func (w *Worker) snapshotPath(inspectionID, hash string) string {
	prefix := strings.Trim(w.cfg.SnapshotPrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s.html", inspectionID, hash)
	}
	return fmt.Sprintf("%s/%s/%s.html", prefix, inspectionID, hash)
}

func (w *Worker) now() time.Time {
	if w.deps.Clock == nil {
		return time.Now().UTC()
	}
	return w.deps.Clock.Now()
}

func facesByProvider(faces []inspector.FontFace) map[string]int {
	counts := make(map[string]int, len(faces))
	for _, face := range faces {
		provider := face.Provider
		if provider == "" {
			provider = "unknown"
		}
		counts[provider]++
	}
	return counts
}
