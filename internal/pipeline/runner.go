package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/surveillance-cli/internal/crawl"
	"github.com/sells-group/surveillance-cli/internal/extract"
	"github.com/sells-group/surveillance-cli/internal/history"
	"github.com/sells-group/surveillance-cli/internal/model"
	"github.com/sells-group/surveillance-cli/internal/resilience"
	"github.com/sells-group/surveillance-cli/internal/store"
)

// Merger folds a batch into the persisted history. *history.Store
// satisfies it.
type Merger interface {
	Merge(ctx context.Context, batch []model.SurveillanceRecord) (history.Summary, error)
}

// Options tunes a single run.
type Options struct {
	// Limit caps the number of new pages processed, newest first. Zero is
	// no limit.
	Limit int
	// Reprocess ignores the ledger and processes every discovered page.
	Reprocess bool
}

// Outcome is one page's result.
type Outcome struct {
	URL      string
	Document string
	Status   store.DocumentStatus
	Strategy string
	Records  int
	Err      error
}

// Report summarizes a run.
type Report struct {
	RunID      string
	Discovered int
	Pending    int
	Outcomes   []Outcome
	Summary    history.Summary
}

// Runner wires discovery, acquisition, extraction, merge and the ledger.
type Runner struct {
	discoverer crawl.Discoverer
	acquirer   Acquirer
	extractor  *extract.Extractor
	history    Merger
	ledger     store.Store
	maxWorkers int
}

// NewRunner creates a Runner. maxWorkers bounds concurrent acquisitions.
func NewRunner(d crawl.Discoverer, a Acquirer, e *extract.Extractor, h Merger, ledger store.Store, maxWorkers int) *Runner {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &Runner{
		discoverer: d,
		acquirer:   a,
		extractor:  e,
		history:    h,
		ledger:     ledger,
		maxWorkers: maxWorkers,
	}
}

// Run executes one update. Pages that fail to acquire or yield no records
// are reported in the Report and the ledger, not as an error; discovery,
// merge and cancellation failures fail the run.
func (r *Runner) Run(ctx context.Context, opts Options) (*Report, error) {
	run, err := r.ledger.CreateRun(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	log := zap.L().With(zap.String("run_id", run.ID))
	log.Info("pipeline: starting run", zap.String("discoverer", r.discoverer.Name()))

	report := &Report{RunID: run.ID}
	err = r.run(ctx, run.ID, opts, report)

	run.Discovered = report.Discovered
	run.Documents = len(report.Outcomes)
	run.Records = report.Summary.Batch
	run.Added = report.Summary.Added
	run.Replaced = report.Summary.Replaced
	run.Status = store.RunComplete
	if err != nil {
		run.Status = store.RunFailed
		run.Error = err.Error()
	}

	// The run row is closed even when ctx was cancelled.
	if ferr := r.ledger.FinishRun(context.WithoutCancel(ctx), run); ferr != nil {
		log.Warn("pipeline: finish run", zap.Error(ferr))
	}

	if err != nil {
		log.Error("pipeline: run failed", zap.Error(err))
		return report, err
	}
	log.Info("pipeline: run complete",
		zap.Int("discovered", report.Discovered),
		zap.Int("pending", report.Pending),
		zap.Int("records", report.Summary.Batch),
		zap.Int("added", report.Summary.Added),
		zap.Int("replaced", report.Summary.Replaced),
	)
	return report, nil
}

func (r *Runner) run(ctx context.Context, runID string, opts Options, report *Report) error {
	links, err := r.discoverer.Discover(ctx)
	if err != nil {
		return eris.Wrap(err, "pipeline: discover")
	}
	report.Discovered = len(links)

	seen := map[string]bool{}
	if !opts.Reprocess {
		seen, err = r.ledger.ProcessedURLs(ctx)
		if err != nil {
			return eris.Wrap(err, "pipeline: load ledger")
		}
	}
	pending := crawl.NewLinks(links, seen)
	if opts.Limit > 0 && len(pending) > opts.Limit {
		pending = pending[:opts.Limit]
	}
	report.Pending = len(pending)
	if len(pending) == 0 {
		zap.L().Info("pipeline: no new bulletins", zap.Int("discovered", len(links)))
		return nil
	}

	docs, outcomes, err := r.acquire(ctx, pending)
	if err != nil {
		return err
	}

	records, results, err := r.extractor.ExtractBatch(ctx, docs)
	if err != nil {
		return err
	}
	applyResults(outcomes, results)

	if len(records) > 0 {
		sum, err := r.history.Merge(ctx, records)
		if err != nil {
			// Nothing was persisted, so nothing counts as done.
			for i := range outcomes {
				if outcomes[i].Status == store.DocumentDone {
					outcomes[i].Status = store.DocumentFailed
					outcomes[i].Err = err
				}
			}
			report.Outcomes = outcomes
			r.record(ctx, runID, outcomes, results)
			return eris.Wrap(err, "pipeline: merge")
		}
		report.Summary = sum
	}

	report.Outcomes = outcomes
	r.record(ctx, runID, outcomes, results)
	return nil
}

// acquire fetches pending pages concurrently. Successful documents are
// returned in pending order; outcomes has one entry per page.
func (r *Runner) acquire(ctx context.Context, pending []string) ([]model.Document, []Outcome, error) {
	docs := make([]model.Document, len(pending))
	outcomes := make([]Outcome, len(pending))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxWorkers)
	for i, u := range pending {
		g.Go(func() error {
			outcomes[i] = Outcome{URL: u, Document: model.DocumentName(u)}
			doc, err := r.acquirer.Acquire(gCtx, u)
			if err != nil {
				if gCtx.Err() != nil {
					return gCtx.Err()
				}
				zap.L().Warn("pipeline: acquire failed",
					zap.String("url", u),
					zap.String("error_class", resilience.ClassifyError(err)),
					zap.Error(err),
				)
				outcomes[i].Status = store.DocumentFailed
				outcomes[i].Err = err
				return nil
			}
			docs[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, eris.Wrap(err, "pipeline: acquire")
	}

	var ok []model.Document
	for i, d := range docs {
		if outcomes[i].Status != store.DocumentFailed {
			ok = append(ok, d)
		}
	}
	return ok, outcomes, nil
}

// applyResults copies extraction results onto the outcomes of the pages
// that were acquired. results is in the same order as those pages.
func applyResults(outcomes []Outcome, results []extract.Result) {
	j := 0
	for i := range outcomes {
		if outcomes[i].Status == store.DocumentFailed {
			continue
		}
		if j >= len(results) {
			break
		}
		res := results[j]
		j++

		outcomes[i].Strategy = res.Strategy
		outcomes[i].Records = len(res.Records)
		switch {
		case res.OK():
			outcomes[i].Status = store.DocumentDone
		case res.Err == nil || eris.Is(res.Err, extract.ErrNoTable) || eris.Is(res.Err, extract.ErrNoRecords):
			outcomes[i].Status = store.DocumentEmpty
			outcomes[i].Err = res.Err
		default:
			outcomes[i].Status = store.DocumentFailed
			outcomes[i].Err = res.Err
		}
	}
}

// record writes outcomes to the ledger. Ledger failures are logged; a page
// missing from the ledger is simply processed again next run.
func (r *Runner) record(ctx context.Context, runID string, outcomes []Outcome, results []extract.Result) {
	refs := make(map[string]string, len(results))
	for _, res := range results {
		refs[res.Document] = referenceDate(res)
	}

	ctx = context.WithoutCancel(ctx)
	now := time.Now().UTC()
	for _, o := range outcomes {
		doc := &store.Document{
			RunID:         runID,
			URL:           o.URL,
			FileID:        model.FileID(o.URL),
			Status:        o.Status,
			Strategy:      o.Strategy,
			RecordCount:   o.Records,
			ReferenceDate: refs[o.Document],
			ProcessedAt:   now,
		}
		if o.Err != nil {
			doc.Error = o.Err.Error()
		}
		if err := r.ledger.RecordDocument(ctx, doc); err != nil {
			zap.L().Warn("pipeline: record document", zap.String("url", o.URL), zap.Error(err))
		}
	}
}

func referenceDate(res extract.Result) string {
	if res.Period.HasReference() {
		return model.FormatDate(res.Period.Reference)
	}
	for _, rec := range res.Records {
		if rec.ReferenceDate != "" {
			return rec.ReferenceDate
		}
	}
	return ""
}
