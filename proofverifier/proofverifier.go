package proofverifier

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Config is everything one run needs. The engine owns nothing global: two
// engines with different configs can run side by side.
type Config struct {
	DLPID string
	RunID string

	Roster        *Roster
	Recoverer     SignatureRecoverer
	RecovererName string
	Duplicates    DuplicationChecker

	// Zero values select the package defaults.
	Weights           *Weights
	ValidityThreshold *float64
	MinQualitySize    *float64
	SizeField         string
	DedupField        string
	MaxWorkers        int

	Logger *zap.Logger
}

// Engine scores exactly one batch: Init -> Scanning -> Aggregating -> Done.
type Engine struct {
	dlpID         string
	runID         string
	recovererName string

	checker    *ThresholdChecker
	duplicates DuplicationChecker

	weights        Weights
	threshold      float64
	minQualitySize float64
	sizeField      string
	dedupField     string
	maxWorkers     int

	logger *zap.Logger
	used   atomic.Bool
}

// New validates the configuration. Any failure here invalidates the whole run,
// so it is reported once instead of per entry.
func New(cfg Config) (*Engine, error) {
	if cfg.Roster.Size() == 0 {
		return nil, ErrEmptyRoster
	}
	if cfg.Recoverer == nil {
		return nil, ErrNoRecoverer
	}
	if cfg.Duplicates == nil {
		return nil, ErrNoDuplicationChecker
	}

	weights := DefaultWeights()
	if cfg.Weights != nil {
		weights = *cfg.Weights
	}
	if err := validateWeights(weights); err != nil {
		return nil, err
	}

	threshold := ValidityThreshold
	if cfg.ValidityThreshold != nil {
		threshold = *cfg.ValidityThreshold
	}
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidThreshold, threshold)
	}

	minSize := MinQualitySize
	if cfg.MinQualitySize != nil {
		minSize = *cfg.MinQualitySize
	}

	l := cfg.Logger
	if l == nil {
		l = logger
	}
	if cfg.RunID != "" {
		l = l.With(zap.String("run_id", cfg.RunID))
	}

	checker := NewThresholdChecker(cfg.Roster, cfg.Recoverer)
	checker.logger = l

	e := &Engine{
		dlpID:          cfg.DLPID,
		runID:          cfg.RunID,
		recovererName:  cfg.RecovererName,
		checker:        checker,
		duplicates:     cfg.Duplicates,
		weights:        weights,
		threshold:      threshold,
		minQualitySize: minSize,
		sizeField:      orDefault(cfg.SizeField, DefaultSizeField),
		dedupField:     orDefault(cfg.DedupField, DefaultDedupField),
		maxWorkers:     cfg.MaxWorkers,
		logger:         l,
	}
	if e.maxWorkers <= 0 {
		e.maxWorkers = DefaultMaxWorkers
	}
	return e, nil
}

func validateWeights(w Weights) error {
	for _, v := range []float64{w.Quality, w.Ownership, w.Uniqueness} {
		if math.IsNaN(v) || v < 0 {
			return fmt.Errorf("%w: %+v", ErrInvalidWeights, w)
		}
	}
	if math.Abs(w.Quality+w.Ownership+w.Uniqueness-1) > 1e-9 {
		return fmt.Errorf("%w: %+v", ErrInvalidWeights, w)
	}
	return nil
}

// Quorum of the configured roster.
func (e *Engine) Quorum() int {
	return e.checker.Quorum()
}

type entryResult struct {
	signatures SignatureVerdict
	quality    bool
}

// Generate scores entries and returns the proof. Bad entries and failing
// remote services only lower the score; the only error is cancellation, in
// which case no record is returned at all.
func (e *Engine) Generate(ctx context.Context, entries []Entry) (*ProofRecord, error) {
	if !e.used.CompareAndSwap(false, true) {
		return nil, ErrEngineUsed
	}

	e.logger.Info("Starting proof generation",
		zap.String("component", "Engine"),
		zap.String("dlp_id", e.dlpID),
		zap.Int("entries", len(entries)),
		zap.Int("roster_size", e.checker.roster.Size()),
		zap.Int("quorum", e.Quorum()))

	// Duplication keys depend only on data, so the lookup runs alongside the scan.
	ids := collectDuplicationKeys(entries, e.dedupField)
	dupResult := make(chan float64, 1)
	go func() {
		dupResult <- e.duplicates.CheckDuplicates(ctx, ids)
	}()

	results := make([]entryResult, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxWorkers)
	for i := range entries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = e.evaluate(gctx, entries[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.logger.Warn("Proof generation canceled during scan", zap.String("component", "Engine"), zap.Error(err))
		return nil, err
	}

	var duplicatePct float64
	select {
	case duplicatePct = <-dupResult:
	case <-ctx.Done():
		e.logger.Warn("Proof generation canceled during duplication check", zap.String("component", "Engine"))
		return nil, ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	record := e.aggregate(results, duplicatePct, len(ids))
	e.logger.Info("Proof generation complete",
		zap.String("component", "Engine"),
		zap.Float64("score", record.Score),
		zap.Bool("valid", record.Valid))
	return record, nil
}

func (e *Engine) evaluate(ctx context.Context, entry Entry) entryResult {
	l := e.logger.With(zap.String("entry_id", entry.ID))

	if entry.Data == nil {
		l.Warn("Entry has no data, scoring it as zero", zap.String("component", "Engine"), zap.Int("offset", entry.Offset))
		return entryResult{}
	}

	var res entryResult
	size, ok := numericField(entry.Data, e.sizeField)
	if !ok {
		l.Warn("Invalid quantity in entry", zap.String("component", "Engine"), zap.String("field", e.sizeField))
	}
	res.quality = size >= e.minQualitySize

	msg, err := Canonicalize(entry.Data)
	if err != nil {
		l.Warn("Entry data cannot be canonicalized, skipping signature check", zap.String("component", "Engine"), zap.Error(err))
		return res
	}

	res.signatures = e.checker.Check(ctx, msg, entry.Signatures)
	if res.signatures.Passed {
		l.Info("Signature check passed", zap.String("component", "Engine"), zap.Strings("signers", res.signatures.Signers))
	} else {
		l.Warn("Signature check failed",
			zap.String("component", "Engine"),
			zap.Strings("signers", res.signatures.Signers),
			zap.Strings("unauthorized", res.signatures.Unauthorized),
			zap.Int("recovery_failures", len(res.signatures.Failures)),
			zap.Int("quorum", e.Quorum()))
	}
	return res
}

func (e *Engine) aggregate(results []entryResult, duplicatePct float64, idCount int) *ProofRecord {
	total := len(results)
	var validCount, qualityCount, failures int
	for _, r := range results {
		if r.signatures.Passed {
			validCount++
		}
		if r.quality {
			qualityCount++
		}
		failures += len(r.signatures.Failures)
	}

	quality := ratio(qualityCount, total)
	authenticity := ratio(validCount, total)
	ownership := authenticity
	uniqueness := 1 - duplicatePct/100
	score := e.weights.Quality*quality + e.weights.Ownership*ownership + e.weights.Uniqueness*uniqueness

	metadata := map[string]any{
		"dlp_id": e.dlpID,
	}
	if e.runID != "" {
		metadata["run_id"] = e.runID
	}
	if e.recovererName != "" {
		metadata["recoverer"] = e.recovererName
	}

	return &ProofRecord{
		DLPID:        e.dlpID,
		Valid:        score >= e.threshold,
		Score:        score,
		Authenticity: authenticity,
		Ownership:    ownership,
		Quality:      quality,
		Uniqueness:   uniqueness,
		Attributes: map[string]any{
			"total_entries":        total,
			"valid_signatures":     validCount,
			"quality_entries":      qualityCount,
			"duplicate_percentage": duplicatePct,
			"duplication_ids":      idCount,
			"quorum":               e.Quorum(),
			"roster_size":          e.checker.roster.Size(),
			"recovery_failures":    failures,
		},
		Metadata: metadata,
	}
}

func ratio(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}

// numericField reads data[key] as a number. Missing or non-numeric values are 0;
// ok is false only when a value is present but unusable.
func numericField(data map[string]any, key string) (float64, bool) {
	v, present := data[key]
	if !present || v == nil {
		return 0, true
	}
	var f float64
	var err error
	switch n := v.(type) {
	case json.Number:
		f, err = n.Float64()
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		return 0, false
	}
	if err != nil || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// collectDuplicationKeys returns the dedup key of every entry that has one, in input order.
func collectDuplicationKeys(entries []Entry, field string) []string {
	var ids []string
	for _, entry := range entries {
		if entry.Data == nil {
			continue
		}
		switch v := entry.Data[field].(type) {
		case string:
			if v = strings.TrimSpace(v); v != "" {
				ids = append(ids, v)
			}
		case json.Number:
			ids = append(ids, v.String())
		case float64:
			ids = append(ids, strconv.FormatFloat(v, 'f', -1, 64))
		case int:
			ids = append(ids, strconv.Itoa(v))
		case int64:
			ids = append(ids, strconv.FormatInt(v, 10))
		}
	}
	return ids
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
