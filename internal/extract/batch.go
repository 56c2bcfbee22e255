package extract

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/shiryo/internal/models"
)

// DefaultWorkers is the batch concurrency used when none is given.
const DefaultWorkers = 4

// Outcome is the result for one file of a batch: exactly one of Source and Err is set.
type Outcome struct {
	Filename string
	Source   *models.Source
	Err      error
}

// ExtractBatch extracts every file independently. A failure is recorded in that
// file's Outcome and never stops the others. Outcomes are in input order.
func (e *Extractor) ExtractBatch(ctx context.Context, files []File, workers int) []Outcome {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	out := make([]Outcome, len(files))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, f := range files {
		g.Go(func() error {
			src, err := e.Extract(ctx, f)
			out[i] = Outcome{Filename: f.Name, Source: src, Err: err}
			if err != nil {
				e.logger.Warn("extraction failed", zap.String("file", f.Name), zap.String("reason", Reason(err)), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Report splits outcomes into added sources and failures.
func Report(outcomes []Outcome) *models.IngestReport {
	rep := &models.IngestReport{}
	for _, o := range outcomes {
		if o.Err != nil {
			rep.Failures = append(rep.Failures, models.IngestFailure{
				Filename: o.Filename,
				Reason:   Reason(o.Err),
				Message:  o.Err.Error(),
			})
			continue
		}
		rep.Added = append(rep.Added, o.Source.Summary())
	}
	return rep
}
