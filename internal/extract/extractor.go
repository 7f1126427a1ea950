package extract

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/surveillance-cli/internal/model"
)

// Sentinel outcomes of a strategy that found nothing usable. Neither aborts
// a batch.
var (
	ErrNoTable   = eris.New("extract: no scorable table")
	ErrNoRecords = eris.New("extract: no records")
)

// Result is one document's extraction outcome.
type Result struct {
	Document string
	Strategy string
	Records  []model.SurveillanceRecord
	Period   model.ReportPeriod

	// Score is the winning table's relevance; zero for non-table strategies.
	Score int

	// Err is the last strategy failure when no strategy produced records.
	Err error
}

// OK reports whether the document produced records.
func (r Result) OK() bool { return r.Err == nil && len(r.Records) > 0 }

// Strategy extracts records from one document. A strategy that cannot
// produce records returns an error; the driver then tries the next one.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, doc model.Document) (Result, error)
}

// Heuristic is the table-driven strategy: locate, score, normalize, resolve
// roles and period, flatten.
type Heuristic struct {
	vocab   *Vocabulary
	scorer  *Scorer
	periods *PeriodResolver
}

// NewHeuristic creates the table-driven strategy over vocab.
func NewHeuristic(vocab *Vocabulary) *Heuristic {
	return &Heuristic{
		vocab:   vocab,
		scorer:  NewScorer(vocab),
		periods: NewPeriodResolver(),
	}
}

// Name implements Strategy.
func (h *Heuristic) Name() string { return "heuristic" }

// Extract implements Strategy.
func (h *Heuristic) Extract(_ context.Context, doc model.Document) (Result, error) {
	text := NormalizeText(doc.Text)

	best, score, ok := h.scorer.Best(LocateTables(text, h.vocab))
	if !ok {
		return Result{}, ErrNoTable
	}

	table := NormalizeHeader(best, h.vocab)
	roles := ResolveRoles(table.Header, h.vocab)
	for _, f := range model.IndicatorFamilies() {
		if _, ok := roles.Value(f); !ok {
			zap.L().Debug("extract: no value column",
				zap.String("document", doc.Name),
				zap.String("family", string(f)),
			)
		}
	}

	period := h.periods.Resolve(text, doc.Name)
	period = inferWeek(period, roles.LatestWeek(), doc.Name)

	records := Flatten(table, roles, period, h.vocab)
	if len(records) == 0 {
		return Result{Score: score, Period: period}, ErrNoRecords
	}
	return Result{Records: records, Period: period, Score: score}, nil
}

// inferWeek fills a missing year/week from the latest week number found in
// the value column labels. The year is the ISO week-year of the reference
// date, or of the date in a "tYYYYMMDD_" filename, shifted by one when the
// column week lies more than half a year from that date's own ISO week
// (a week-52 column in an early-January bulletin belongs to the year
// before). With neither date the period is left alone.
func inferWeek(p model.ReportPeriod, columnWeek int, filename string) model.ReportPeriod {
	if p.HasWeek() || columnWeek <= 0 {
		return p
	}
	anchor := p.Reference
	if !p.HasReference() {
		m := filenameDate.FindStringSubmatch(filename)
		if m == nil {
			return p
		}
		t, ok := model.ParseDate(m[1] + "-" + m[2] + "-" + m[3])
		if !ok {
			return p
		}
		anchor = t
	}

	year, week := anchor.ISOWeek()
	switch {
	case columnWeek-week > 26:
		year--
	case week-columnWeek > 26:
		year++
	}
	if columnWeek > model.ISOWeeksInYear(year) {
		return p
	}
	p.Year, p.Week = year, columnWeek
	return p
}

// Extractor runs strategies in priority order over documents.
type Extractor struct {
	strategies []Strategy
	maxWorkers int
}

// NewExtractor creates an Extractor. maxWorkers bounds concurrent documents.
func NewExtractor(maxWorkers int, strategies ...Strategy) *Extractor {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &Extractor{strategies: strategies, maxWorkers: maxWorkers}
}

// Extract tries each strategy until one yields records. The returned
// Result names the strategy that succeeded, or carries the last failure.
func (e *Extractor) Extract(ctx context.Context, doc model.Document) Result {
	var lastErr error = ErrNoTable
	for _, s := range e.strategies {
		if err := ctx.Err(); err != nil {
			return Result{Document: doc.Name, Err: err}
		}

		res, err := s.Extract(ctx, doc)
		if err == nil && len(res.Records) > 0 {
			res.Document = doc.Name
			res.Strategy = s.Name()
			zap.L().Info("extract: document extracted",
				zap.String("document", doc.Name),
				zap.String("strategy", s.Name()),
				zap.Int("records", len(res.Records)),
				zap.Int("score", res.Score),
				zap.String("period_matcher", res.Period.Matcher),
			)
			return res
		}
		if err == nil {
			err = ErrNoRecords
		}
		lastErr = err

		fields := []zap.Field{
			zap.String("document", doc.Name),
			zap.String("strategy", s.Name()),
			zap.Error(err),
		}
		if eris.Is(err, ErrNoTable) || eris.Is(err, ErrNoRecords) {
			zap.L().Warn("extract: strategy found nothing", fields...)
		} else {
			zap.L().Warn("extract: strategy failed", fields...)
		}
	}
	return Result{Document: doc.Name, Err: lastErr}
}

// ExtractBatch extracts docs concurrently and pools their records in
// document order. Documents that yield nothing are reported in results,
// not as an error; only cancellation of ctx fails the batch.
func (e *Extractor) ExtractBatch(ctx context.Context, docs []model.Document) ([]model.SurveillanceRecord, []Result, error) {
	results := make([]Result, len(docs))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxWorkers)

	for i, doc := range docs {
		g.Go(func() error {
			results[i] = e.Extract(gCtx, doc)
			return gCtx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, results, eris.Wrap(err, "extract: batch")
	}

	var records []model.SurveillanceRecord
	for _, r := range results {
		records = append(records, r.Records...)
	}
	return records, results, nil
}
