package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"mediarelay/internal/conversion"
	"mediarelay/internal/distribution"
	"mediarelay/internal/logging"
	"mediarelay/internal/notifications"
	"mediarelay/internal/remediation"
	"mediarelay/internal/retrieval"
	"mediarelay/internal/services"
)

// Converter resolves a source URL through the conversion service.
type Converter interface {
	Convert(ctx context.Context, req conversion.Request) (conversion.Response, error)
}

// Retriever downloads one asset into the cache directory.
type Retriever interface {
	EnsureCacheDir() error
	Retrieve(ctx context.Context, target retrieval.Target, opts retrieval.Options) (retrieval.Artifact, error)
}

// Distributor delivers a batch and removes its artifacts.
type Distributor interface {
	Distribute(ctx context.Context, batch distribution.Batch) []distribution.Outcome
}

// ProgressEvent reports transfer progress for one asset of one source.
type ProgressEvent struct {
	BatchID     string
	SourceIndex int
	AssetURL    string
	Progress    retrieval.Progress
}

// Config describes session dependencies and per-request conversion settings.
type Config struct {
	Converter   Converter
	Retriever   Retriever
	Remediator  remediation.Remediator
	Distributor Distributor
	Notifier    notifications.Service
	Logger      *slog.Logger

	Mode            conversion.Mode
	VideoQuality    string
	AudioBitrate    string
	TikTokFullAudio bool
	TikTokH265      bool

	// OnProgress, when set, receives every retrieval progress report.
	OnProgress func(ProgressEvent)
	// NewBatchID overrides batch identifier generation.
	NewBatchID func() string
	// NewRequestID overrides the per-source request identifier.
	NewRequestID func() string
}

// Session runs batches against a fixed set of dependencies. It holds no
// per-batch state and is safe for concurrent SubmitSources calls.
type Session struct {
	converter    Converter
	retriever    Retriever
	remediator   remediation.Remediator
	distributor  Distributor
	notifier     notifications.Service
	logger       *slog.Logger
	request      conversion.Request
	onProgress   func(ProgressEvent)
	newBatchID   func() string
	newRequestID func() string
}

// NewSession validates dependencies and returns a Session.
func NewSession(cfg Config) (*Session, error) {
	switch {
	case cfg.Converter == nil:
		return nil, errors.New("pipeline: converter is required")
	case cfg.Retriever == nil:
		return nil, errors.New("pipeline: retriever is required")
	case cfg.Distributor == nil:
		return nil, errors.New("pipeline: distributor is required")
	}
	mode := cfg.Mode
	if mode == "" {
		mode = conversion.ModeAuto
	}
	if !mode.Valid() {
		return nil, services.Wrap(services.ErrInvalidArgument, "pipeline", "init", fmt.Sprintf("unsupported mode %q", mode), nil)
	}
	s := &Session{
		converter:   cfg.Converter,
		retriever:   cfg.Retriever,
		remediator:  cfg.Remediator,
		distributor: cfg.Distributor,
		notifier:    cfg.Notifier,
		logger:      logging.NewComponentLogger(cfg.Logger, "pipeline"),
		request: conversion.Request{
			Mode:            mode,
			VideoQuality:    cfg.VideoQuality,
			AudioBitrate:    cfg.AudioBitrate,
			TikTokFullAudio: cfg.TikTokFullAudio,
			TikTokH265:      cfg.TikTokH265,
		},
		onProgress:   cfg.OnProgress,
		newBatchID:   cfg.NewBatchID,
		newRequestID: cfg.NewRequestID,
	}
	if s.remediator == nil {
		s.remediator = remediation.Passthrough{}
	}
	if s.notifier == nil {
		s.notifier = notifications.Noop()
	}
	if s.newBatchID == nil {
		s.newBatchID = uuid.NewString
	}
	if s.newRequestID == nil {
		s.newRequestID = retrieval.NewRequestID
	}
	return s, nil
}

// SubmitSources runs one batch to completion. Per-source failures are recorded
// in the report; the returned error is non-nil only when the batch could not
// run at all.
func (s *Session) SubmitSources(ctx context.Context, sources []SourceReference) (Report, error) {
	batchID := s.newBatchID()
	ctx = services.WithBatchID(ctx, batchID)
	logger := logging.WithContext(ctx, s.logger)

	report := Report{
		BatchID:   batchID,
		StartedAt: time.Now(),
		Sources:   make([]SourceReport, len(sources)),
	}
	for i, src := range sources {
		report.Sources[i] = SourceReport{Index: i, Source: src, DuplicateOf: -1}
	}

	live := s.screen(logger, report.Sources)
	if len(live) == 0 {
		report.FinishedAt = time.Now()
		logger.Info("batch has no sources to process", logging.Int("submitted", len(sources)))
		return report, nil
	}

	if err := s.retriever.EnsureCacheDir(); err != nil {
		for _, idx := range live {
			fail(&report.Sources[idx], err)
		}
		report.FinishedAt = time.Now()
		logging.ErrorWithContext(logger, "batch aborted", "cache_unavailable",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check paths.cache_dir exists and is writable"),
			logging.Alert("batch_aborted"),
		)
		if notifyErr := s.notifier.NotifyError(ctx, err, "batch "+shortID(batchID)); notifyErr != nil {
			logger.Debug("error notification failed", logging.Error(notifyErr))
		}
		return report, services.Wrap(services.ErrConfiguration, "pipeline", "prepare cache", "batch aborted", err)
	}

	logger.Info("batch started",
		logging.Int("submitted", len(sources)),
		logging.Int("unique_sources", len(live)),
	)

	responses := s.convertAll(ctx, report.Sources, live)
	winners := s.dedup(logger, report.Sources, live, responses)
	artifacts := s.acquireAll(ctx, report.Sources, winners, responses)
	s.distributeAll(ctx, report.Sources, winners, artifacts)

	report.FinishedAt = time.Now()
	distributed, failed, duplicate := report.Counts()
	logger.Info("batch completed",
		logging.Int("distributed", distributed),
		logging.Int("failed", failed),
		logging.Int("duplicate", duplicate),
		logging.Int("outcomes", len(report.Outcomes())),
		logging.Duration("duration", report.Duration()),
	)
	summary := notifications.BatchSummary{
		BatchID:     batchID,
		Distributed: distributed,
		Failed:      failed,
		Duplicate:   duplicate,
		Duration:    report.Duration(),
	}
	if err := s.notifier.NotifyBatchCompleted(ctx, summary); err != nil {
		logger.Debug("batch notification failed", logging.Error(err))
	}
	return report, nil
}

// screen drops empty URLs and collapses identical source URLs, returning the
// indices that proceed to conversion.
func (s *Session) screen(logger *slog.Logger, sources []SourceReport) []int {
	firstByURL := make(map[string]int, len(sources))
	live := make([]int, 0, len(sources))
	for i := range sources {
		src := &sources[i]
		url := strings.TrimSpace(src.Source.URL)
		if url == "" {
			fail(src, services.Wrap(services.ErrInvalidArgument, "pipeline", "screen", "source url is empty", nil))
			continue
		}
		if first, seen := firstByURL[url]; seen {
			markDuplicate(src, first)
			logger.Info("duplicate source skipped",
				logging.Int("source_index", i),
				logging.Int("duplicate_of", first),
				logging.String("url", url),
			)
			continue
		}
		firstByURL[url] = i
		live = append(live, i)
	}
	return live
}

func (s *Session) convertAll(ctx context.Context, sources []SourceReport, live []int) map[int]conversion.Response {
	results := make([]conversion.Response, len(sources))
	ok := make([]bool, len(sources))

	var wg sync.WaitGroup
	for _, idx := range live {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sctx := services.WithStage(services.WithSourceIndex(ctx, idx), "conversion")
			req := s.request
			req.URL = strings.TrimSpace(sources[idx].Source.URL)
			resp, err := s.converter.Convert(sctx, req)
			if err != nil {
				fail(&sources[idx], err)
				logging.WarnWithContext(logging.WithContext(sctx, s.logger), "conversion failed", "conversion_failed",
					logging.String("url", req.URL),
					logging.Error(err),
					logging.String(logging.FieldImpact, "source will not be distributed"),
					logging.String(logging.FieldErrorHint, "check the source link and conversion service logs"),
				)
				return
			}
			results[idx] = resp
			ok[idx] = true
		}()
	}
	wg.Wait()

	out := make(map[int]conversion.Response, len(live))
	for _, idx := range live {
		if ok[idx] {
			out[idx] = results[idx]
		}
	}
	return out
}

// dedup keeps the earliest submitted source for every resolved content key.
func (s *Session) dedup(logger *slog.Logger, sources []SourceReport, live []int, responses map[int]conversion.Response) []int {
	firstByKey := make(map[string]int, len(responses))
	winners := make([]int, 0, len(responses))
	for _, idx := range live {
		resp, ok := responses[idx]
		if !ok {
			continue
		}
		key := resp.Key()
		if first, seen := firstByKey[key]; seen && key != "" {
			markDuplicate(&sources[idx], first)
			logger.Info("resolved content already claimed by earlier source",
				logging.Int("source_index", idx),
				logging.Int("duplicate_of", first),
				logging.String("requester", sources[idx].Source.Username),
				logging.String("kept_requester", sources[first].Source.Username),
			)
			continue
		}
		firstByKey[key] = idx
		winners = append(winners, idx)
	}
	return winners
}

func (s *Session) acquireAll(ctx context.Context, sources []SourceReport, winners []int, responses map[int]conversion.Response) [][]string {
	artifacts := make([][]string, len(sources))
	var wg sync.WaitGroup
	for _, idx := range winners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sctx := services.WithSourceIndex(ctx, idx)
			paths, err := s.acquire(sctx, responses[idx])
			if err != nil {
				fail(&sources[idx], err)
				logging.WarnWithContext(logging.WithContext(sctx, s.logger), "source produced no artifacts", "acquisition_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "source will not be distributed"),
				)
				return
			}
			artifacts[idx] = paths
		}()
	}
	wg.Wait()
	return artifacts
}

type assetResult struct {
	path        string
	transferErr error
	remedyErr   error
}

// acquire retrieves and remediates every asset of one response concurrently.
// A transfer failure fails the whole source and removes its other artifacts;
// a remediation failure drops that artifact only.
func (s *Session) acquire(ctx context.Context, resp conversion.Response) ([]string, error) {
	assets := resp.Assets()
	if len(assets) == 0 {
		return nil, services.Wrap(services.ErrUnknownResponse, "pipeline", "assets", fmt.Sprintf("%s reply carried no assets", resp.Status), nil)
	}
	requestID := s.newRequestID()
	ctx = services.WithRequestID(ctx, requestID)

	results := make([]assetResult, len(assets))
	var wg sync.WaitGroup
	for i, asset := range assets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = s.acquireAsset(ctx, requestID, asset)
		}()
	}
	wg.Wait()

	var transferErr, remedyErr error
	paths := make([]string, 0, len(results))
	for _, res := range results {
		switch {
		case res.transferErr != nil:
			if transferErr == nil {
				transferErr = res.transferErr
			}
		case res.remedyErr != nil:
			if remedyErr == nil {
				remedyErr = res.remedyErr
			}
		default:
			paths = append(paths, res.path)
		}
	}
	if transferErr != nil {
		s.discard(ctx, paths)
		return nil, transferErr
	}
	if len(paths) == 0 {
		return nil, remedyErr
	}
	return paths, nil
}

func (s *Session) acquireAsset(ctx context.Context, requestID string, asset conversion.Asset) assetResult {
	rctx := services.WithStage(ctx, "retrieval")
	logger := logging.WithContext(rctx, s.logger)
	sampler := logging.NewProgressSampler(25)
	batchID, _ := services.BatchIDFromContext(ctx)
	sourceIndex, _ := services.SourceIndexFromContext(ctx)

	target := retrieval.Target{
		URL:           asset.URL,
		Naming:        namingFor(asset.Kind),
		SuggestedName: asset.Filename,
		RequestID:     requestID,
	}
	opts := retrieval.Options{OnProgress: func(p retrieval.Progress) {
		if sampler.ShouldLog(p.Percent(), asset.URL) {
			logger.Debug("retrieval progress", logging.String("progress", p.String()), logging.Int64("loaded_bytes", p.Loaded))
		}
		if s.onProgress != nil {
			s.onProgress(ProgressEvent{BatchID: batchID, SourceIndex: sourceIndex, AssetURL: asset.URL, Progress: p})
		}
	}}

	artifact, err := s.retriever.Retrieve(rctx, target, opts)
	if err != nil {
		logging.WarnWithContext(logger, "retrieval failed", "retrieval_failed",
			logging.String("asset_url", asset.URL),
			logging.Error(err),
			logging.String(logging.FieldImpact, "source will not be distributed"),
		)
		return assetResult{transferErr: err}
	}

	mctx := services.WithStage(ctx, "remediation")
	path, err := s.remediator.Remediate(mctx, artifact.Path)
	if err != nil {
		s.discard(mctx, []string{artifact.Path})
		if !errors.Is(err, services.ErrRemediation) {
			err = services.Wrap(services.ErrRemediation, "remediation", "remediate", filepath.Base(artifact.Path), err)
		}
		logging.WarnWithContext(logging.WithContext(mctx, s.logger), "artifact excluded", "remediation_failed",
			logging.String("path", artifact.Path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "artifact not delivered"),
			logging.String(logging.FieldErrorHint, "inspect the ffmpeg output in debug logs"),
		)
		return assetResult{remedyErr: err}
	}
	return assetResult{path: path}
}

func (s *Session) distributeAll(ctx context.Context, sources []SourceReport, winners []int, artifacts [][]string) {
	var wg sync.WaitGroup
	for _, idx := range winners {
		paths := artifacts[idx]
		if len(paths) == 0 {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			src := &sources[idx]
			src.Artifacts = baseNames(paths)
			dctx := services.WithSourceIndex(ctx, idx)
			src.Outcomes = s.distributor.Distribute(dctx, distribution.Batch{
				Username:  src.Source.Username,
				AvatarURL: src.Source.AvatarURL,
				Artifacts: paths,
			})
			settle(src)
		}()
	}
	wg.Wait()
}

// settle derives the source status from its delivery outcomes.
func settle(src *SourceReport) {
	if len(src.Outcomes) == 0 {
		src.Status = SourceFailed
		src.Reason = "NoDestinations: no destinations registered"
		return
	}
	var firstReason string
	for _, out := range src.Outcomes {
		if out.Status == distribution.StatusSuccess {
			src.Status = SourceDistributed
			src.Reason = ""
			return
		}
		if firstReason == "" {
			firstReason = out.Reason
		}
	}
	src.Status = SourceFailed
	src.Reason = firstReason
}

func (s *Session) discard(ctx context.Context, paths []string) {
	logger := logging.WithContext(ctx, s.logger)
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("failed to discard artifact",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldEventType, "cleanup_failed"),
			)
		}
	}
}

func namingFor(kind conversion.AssetKind) retrieval.Naming {
	switch kind {
	case conversion.AssetPickerAudio:
		return retrieval.NamePickerAudio
	case conversion.AssetPickerItem:
		return retrieval.NamePickerItem
	default:
		return retrieval.NameSingle
	}
}

func fail(src *SourceReport, err error) {
	src.Status = SourceFailed
	src.Reason = services.Describe(err)
}

func markDuplicate(src *SourceReport, first int) {
	src.Status = SourceDuplicate
	src.DuplicateOf = first
	src.Reason = fmt.Sprintf("duplicate of source #%d", first)
}

func baseNames(paths []string) []string {
	names := make([]string, len(paths))
	for i, p := range paths {
		names[i] = filepath.Base(p)
	}
	return names
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
