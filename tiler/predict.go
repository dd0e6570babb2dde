package tiler

import (
	"context"
	"log/slog"
)

// Predictor labels images with a trained Classifier.
type Predictor struct {
	Loader     Loader
	Embedder   Embedder
	Classifier *Classifier
	Workers    int
	Logger     *slog.Logger
}

// Predict loads and labels each reference. See PredictImages for the result contract.
func (p *Predictor) Predict(ctx context.Context, refs []string) ([]Prediction, error) {
	if !p.Classifier.Ready() {
		return nil, ErrNotReady
	}
	return p.run(ctx, refs, func(ctx context.Context, i int) (*Image, error) {
		return p.Loader.Load(ctx, refs[i])
	})
}

// PredictImages labels already decoded images. The result has one entry per
// input in input order. When some items fail, the others are still returned and
// the error is a *BatchError naming the failed indices, whose entries are zero.
func (p *Predictor) PredictImages(ctx context.Context, imgs []*Image) ([]Prediction, error) {
	if !p.Classifier.Ready() {
		return nil, ErrNotReady
	}
	sources := make([]string, len(imgs))
	for i, img := range imgs {
		if img != nil {
			sources[i] = img.Source
		}
	}
	return p.run(ctx, sources, func(_ context.Context, i int) (*Image, error) {
		if imgs[i] == nil {
			return nil, &DecodeError{Source: "<nil>"}
		}
		return imgs[i], nil
	})
}

func (p *Predictor) run(ctx context.Context, sources []string, load func(context.Context, int) (*Image, error)) ([]Prediction, error) {
	log := orDiscard(p.Logger)
	preds := make([]Prediction, len(sources))
	vecs, errs := embedAll(ctx, p.Workers, len(sources), func(ctx context.Context, i int) ([]float32, error) {
		img, err := load(ctx, i)
		if err != nil {
			return nil, err
		}
		return p.Embedder.EmbedImage(ctx, img)
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var failures []ItemError
	for i := range sources {
		err := errs[i]
		if err == nil {
			preds[i], err = p.Classifier.PredictClass(vecs[i])
		}
		if err != nil {
			failures = append(failures, ItemError{Index: i, Source: sources[i], Err: err})
		}
	}
	log.Debug("prediction batch done", "items", len(sources), "failed", len(failures))
	if len(failures) > 0 {
		return preds, &BatchError{Op: "predict", Failures: failures}
	}
	return preds, nil
}
