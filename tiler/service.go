package tiler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// VerifyResult is the classification of one verification tile.
type VerifyResult struct {
	Source     string
	Prediction Prediction
	Err        error
}

// Service wires the classifier, pipelines, orderer and override store around
// one catalog and embedder.
type Service struct {
	embedder Embedder
	catalog  *Catalog
	labels   *LabelSet

	cfgMu sync.RWMutex
	cfg   Config

	classifier *Classifier
	trainer    *Trainer
	predictor  *Predictor
	rebuilder  *Reconstructor
	orderer    *Orderer
	overrides  *OverrideStore

	logger *slog.Logger
}

// NewService constructs a service with the given embedder, configuration and catalog.
// The override store is seeded from the catalog's prior overrides.
func NewService(embedder Embedder, cfg Config, catalog *Catalog, logger *slog.Logger) (*Service, error) {
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if catalog == nil {
		return nil, errors.New("catalog is required")
	}
	cfg.ApplyDefaults()
	labels, err := cfg.LabelSet()
	if err != nil {
		return nil, fmt.Errorf("label set: %w", err)
	}
	logger = orDiscard(logger)
	loader := catalog.Loader()
	classifier := NewClassifier(cfg.K)
	predictor := &Predictor{
		Loader:     loader,
		Embedder:   embedder,
		Classifier: classifier,
		Workers:    cfg.Workers,
		Logger:     logger,
	}
	s := &Service{
		embedder:   embedder,
		catalog:    catalog,
		labels:     labels,
		cfg:        cfg,
		classifier: classifier,
		trainer: &Trainer{
			Loader:     loader,
			Embedder:   embedder,
			Classifier: classifier,
			Workers:    cfg.Workers,
			Rand:       NewRand(cfg.Seed),
			Logger:     logger,
		},
		predictor: predictor,
		rebuilder: &Reconstructor{Predictor: predictor, Logger: logger},
		orderer: &Orderer{
			Loader:  loader,
			Stride:  cfg.Stride,
			Workers: cfg.Workers,
			Logger:  logger,
		},
		overrides: NewOverrideStore(catalog, labels),
		logger:    logger,
	}
	if dropped := s.overrides.Seed(catalog.Overrides); dropped > 0 {
		logger.Warn("prior overrides dropped", "count", dropped)
	}
	return s, nil
}

// Close releases embedder resources.
func (s *Service) Close() error {
	if s.embedder != nil {
		return s.embedder.Close()
	}
	return nil
}

// Config returns a copy of the current configuration.
func (s *Service) Config() Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg.Clone()
}

// Labels returns the label set.
func (s *Service) Labels() *LabelSet { return s.labels }

// Catalog returns the static catalog.
func (s *Service) Catalog() *Catalog { return s.catalog }

// Overrides returns the manual label store.
func (s *Service) Overrides() *OverrideStore { return s.overrides }

// Orderer returns the darkness-profile orderer.
func (s *Service) Orderer() *Orderer { return s.orderer }

// Ready reports whether the classifier has been trained.
func (s *Service) Ready() bool { return s.classifier.Ready() }

// WaitReady blocks until training completes or ctx is done.
func (s *Service) WaitReady(ctx context.Context) error { return s.classifier.WaitReady(ctx) }

// Train primes the classifier with the catalog's training list.
func (s *Service) Train(ctx context.Context) (TrainReport, error) {
	report, err := s.trainer.Train(ctx, s.catalog.Training)
	if err != nil {
		return report, fmt.Errorf("train: %w", err)
	}
	return report, nil
}

// Predict labels catalog-relative image references.
func (s *Service) Predict(ctx context.Context, refs []string) ([]Prediction, error) {
	return s.predictor.Predict(ctx, refs)
}

// Verify classifies the catalog's verification tiles. Per-tile failures are
// reported in the results; only readiness and cancellation fail the call.
func (s *Service) Verify(ctx context.Context) ([]VerifyResult, error) {
	preds, err := s.predictor.Predict(ctx, s.catalog.Verify)
	var batch *BatchError
	if err != nil && !errors.As(err, &batch) {
		return nil, err
	}
	out := make([]VerifyResult, len(s.catalog.Verify))
	for i, src := range s.catalog.Verify {
		out[i] = VerifyResult{Source: src, Prediction: preds[i]}
	}
	if batch != nil {
		for _, f := range batch.Failures {
			out[f.Index].Err = f.Err
		}
	}
	s.logger.Info("verification done", "tiles", len(out))
	return out, nil
}

// Reconstruct labels an upload batch and places it into a grid.
func (s *Service) Reconstruct(ctx context.Context, uploads []Upload) (*Grid, error) {
	return s.rebuilder.Reconstruct(ctx, uploads)
}

// FormatGrid renders g with the configured separator.
func (s *Service) FormatGrid(g *Grid) string {
	return g.Format(s.Config().Separator)
}

// ComputeOrder profiles the catalog and derives the render order.
func (s *Service) ComputeOrder(ctx context.Context) (RenderOrder, error) {
	return s.orderer.Compute(ctx, s.catalog.Tiles)
}
