package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eruption-duration/backend/internal/activity"
	"github.com/eruption-duration/backend/internal/features"
	"github.com/eruption-duration/backend/internal/metrics"
	"github.com/eruption-duration/backend/internal/model"
	"github.com/eruption-duration/backend/internal/storage/models"
	"github.com/eruption-duration/backend/internal/survival"
	"github.com/eruption-duration/backend/internal/volcano"
	"github.com/eruption-duration/backend/pkg/circuitbreaker"
	"github.com/eruption-duration/backend/pkg/logger"
	"github.com/eruption-duration/backend/pkg/utils"
)

// ErrHistoryDisabled is returned by history queries when no store is wired.
var ErrHistoryDisabled = errors.New("plot history is disabled")

type ModelProvider interface {
	Get(id string) (model.Predictor, error)
}

// namedPredictor is implemented by models that record their training
// feature order.
type namedPredictor interface {
	FeatureNames() []string
}

// versionedPredictor is implemented by models that carry an artifact version.
// The version is part of the plot cache key.
type versionedPredictor interface {
	Version() string
}

type HistoryStore interface {
	InsertPlotRecord(ctx context.Context, rec *models.PlotRecord) error
	ListPlotRecords(ctx context.Context, userID string, limit int) ([]models.PlotRecord, error)
	KindStats(ctx context.Context) ([]models.KindStats, error)
}

type PlotCache interface {
	GetPlot(ctx context.Context, hash string, out interface{}) (bool, error)
	SetPlot(ctx context.Context, hash string, plot interface{}, ttl time.Duration) error
	InvalidatePlots(ctx context.Context) (int, error)
}

type Engine struct {
	table    *volcano.Table
	models   ModelProvider
	history  HistoryStore
	cache    PlotCache
	cacheTTL time.Duration
	breaker  *circuitbreaker.CircuitBreaker
}

type Option func(*Engine)

func WithHistory(h HistoryStore) Option {
	return func(e *Engine) {
		e.history = h
	}
}

// WithCache puts c in front of inference. Cache failures trip breaker and
// never fail a request.
func WithCache(c PlotCache, ttl time.Duration, breaker *circuitbreaker.CircuitBreaker) Option {
	return func(e *Engine) {
		e.cache = c
		e.cacheTTL = ttl
		e.breaker = breaker
	}
}

func NewEngine(table *volcano.Table, provider ModelProvider, opts ...Option) *Engine {
	e := &Engine{
		table:  table,
		models: provider,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cache != nil && e.breaker == nil {
		e.breaker = circuitbreaker.New("plot-cache", circuitbreaker.Config{Logger: logger.Named("breaker")})
	}

	for _, kind := range activity.Kinds() {
		if snap, err := table.ForKind(kind); err == nil {
			metrics.VolcanoesAvailable.WithLabelValues(string(kind)).Set(float64(snap.Len()))
		}
	}
	return e
}

type PlotRequest struct {
	Kind    string
	Volcano string
	// Inputs holds the categorical selector values keyed by input name.
	Inputs map[string]string
	UserID string
}

type PlotResponse struct {
	ID        string          `json:"id"`
	Kind      activity.Kind   `json:"kind"`
	Volcano   string          `json:"volcano"`
	ModelID   string          `json:"model_id"`
	Features  features.Vector `json:"features"`
	Plot      survival.Plot   `json:"plot"`
	Cached    bool            `json:"cached"`
	LatencyMS int             `json:"latency_ms"`
}

// Generate runs one plot request end to end. Any error aborts the request;
// nothing is retried.
func (e *Engine) Generate(ctx context.Context, req PlotRequest) (*PlotResponse, error) {
	start := time.Now()
	resp := &PlotResponse{ID: uuid.New().String(), Volcano: req.Volcano}

	err := e.generate(ctx, req, resp)
	resp.LatencyMS = int(time.Since(start).Milliseconds())

	kindLabel := string(resp.Kind)
	if kindLabel == "" {
		kindLabel = "unknown"
	}
	status := models.StatusOK
	if err != nil {
		status = models.StatusError
	}
	metrics.PlotRequests.WithLabelValues(kindLabel, status).Inc()
	metrics.PlotDuration.WithLabelValues(kindLabel).Observe(time.Since(start).Seconds())

	e.record(ctx, req, resp, err)

	if err != nil {
		logger.Warn("Plot request failed",
			zap.String("request_id", resp.ID),
			zap.String("kind", req.Kind),
			zap.String("volcano", req.Volcano),
			zap.String("error_kind", ErrorKind(err)),
			zap.Error(err),
		)
		return nil, err
	}

	logger.Info("Plot generated",
		zap.String("request_id", resp.ID),
		zap.String("kind", kindLabel),
		zap.String("volcano", resp.Volcano),
		zap.Int("points", len(resp.Plot.Points)),
		zap.Bool("cached", resp.Cached),
		zap.Int("latency_ms", resp.LatencyMS),
	)
	return resp, nil
}

func (e *Engine) generate(ctx context.Context, req PlotRequest, resp *PlotResponse) error {
	kind, err := activity.ParseKind(req.Kind)
	if err != nil {
		return err
	}
	resp.Kind = kind

	schema, err := activity.Lookup(kind)
	if err != nil {
		return err
	}
	resp.ModelID = schema.ModelID

	snap, err := e.table.ForKind(kind)
	if err != nil {
		return err
	}

	vec, err := features.Map(schema, snap, features.Selection{Volcano: req.Volcano, Inputs: req.Inputs})
	if err != nil {
		return err
	}
	resp.Features = vec
	if rec, err := snap.Lookup(req.Volcano); err == nil {
		resp.Volcano = volcano.DisplayName(rec.Name)
	}

	predictor, err := e.models.Get(schema.ModelID)
	if err != nil {
		return err
	}
	if err := features.CheckWidth(vec, predictor.NumFeatures()); err != nil {
		return fmt.Errorf("model %s: %w", schema.ModelID, err)
	}
	if named, ok := predictor.(namedPredictor); ok {
		if err := features.CheckNames(schema, named.FeatureNames()); err != nil {
			return fmt.Errorf("model %s: %w", schema.ModelID, err)
		}
	}

	version := ""
	if v, ok := predictor.(versionedPredictor); ok {
		version = v.Version()
	}
	key := utils.CacheKey(string(kind), schema.ModelID, version, vec.String())
	if e.cachedPlot(ctx, key, &resp.Plot) {
		resp.Cached = true
		return nil
	}

	curve, err := survival.Predict(predictor, vec)
	if err != nil {
		return fmt.Errorf("model %s: %w", schema.ModelID, err)
	}
	metrics.CurvePoints.Observe(float64(curve.Len()))

	resp.Plot = survival.Render(schema, curve)
	e.storePlot(ctx, key, resp.Plot)
	return nil
}

func (e *Engine) cachedPlot(ctx context.Context, key string, out *survival.Plot) bool {
	if e.cache == nil {
		return false
	}

	var found bool
	err := e.breaker.Execute(func() error {
		var err error
		found, err = e.cache.GetPlot(ctx, key, out)
		return err
	})
	if err != nil {
		logger.Debug("Plot cache lookup skipped", zap.Error(err))
		return false
	}
	if found {
		metrics.CacheHits.WithLabelValues("plot").Inc()
	} else {
		metrics.CacheMisses.WithLabelValues("plot").Inc()
	}
	return found
}

func (e *Engine) storePlot(ctx context.Context, key string, plot survival.Plot) {
	if e.cache == nil {
		return
	}
	err := e.breaker.Execute(func() error {
		return e.cache.SetPlot(ctx, key, plot, e.cacheTTL)
	})
	if err != nil {
		logger.Debug("Plot cache store skipped", zap.Error(err))
	}
}

func (e *Engine) record(ctx context.Context, req PlotRequest, resp *PlotResponse, genErr error) {
	if e.history == nil {
		return
	}

	rec := &models.PlotRecord{
		ID:        resp.ID,
		UserID:    req.UserID,
		Kind:      string(resp.Kind),
		Volcano:   resp.Volcano,
		Inputs:    req.Inputs,
		Features:  resp.Features,
		ModelID:   resp.ModelID,
		Status:    models.StatusOK,
		Points:    len(resp.Plot.Points),
		Cached:    resp.Cached,
		LatencyMS: resp.LatencyMS,
		CreatedAt: time.Now(),
	}
	if rec.Kind == "" {
		rec.Kind = req.Kind
	}
	if genErr != nil {
		rec.Status = models.StatusError
		rec.ErrorKind = ErrorKind(genErr)
		rec.Error = genErr.Error()
		rec.Points = 0
	}

	if err := e.history.InsertPlotRecord(ctx, rec); err != nil {
		logger.Error("Failed to record plot request", zap.String("request_id", rec.ID), zap.Error(err))
	}
}

// ErrorKind classifies err for logs, history and API responses.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, activity.ErrUnknownKind), errors.Is(err, features.ErrInvalidInput):
		return "validation"
	case errors.Is(err, features.ErrVolcanoNotFound):
		return "lookup"
	case errors.Is(err, features.ErrSchemaMismatch):
		return "configuration"
	case errors.Is(err, model.ErrModelLoad):
		return "model_load"
	case errors.Is(err, model.ErrInference):
		return "inference"
	case errors.Is(err, ErrHistoryDisabled):
		return "unavailable"
	default:
		return "internal"
	}
}

type KindInfo struct {
	Kind       activity.Kind `json:"kind"`
	ModelID    string        `json:"model_id"`
	Inputs     []InputInfo   `json:"inputs"`
	Covariates []string      `json:"covariates"`
	XAxis      survival.Axis `json:"x_axis"`
	YAxis      survival.Axis `json:"y_axis"`
	Volcanoes  int           `json:"volcanoes"`
}

type InputInfo struct {
	activity.Input
	Options []string `json:"options"`
}

// Kinds describes the selector controls for every kind.
func (e *Engine) Kinds() []KindInfo {
	out := make([]KindInfo, 0, len(activity.Kinds()))
	for _, kind := range activity.Kinds() {
		schema, err := activity.Lookup(kind)
		if err != nil {
			continue
		}
		info := KindInfo{
			Kind:       kind,
			ModelID:    schema.ModelID,
			Covariates: schema.Covariates,
		}
		for _, in := range schema.Inputs {
			info.Inputs = append(info.Inputs, InputInfo{Input: in, Options: in.Options()})
		}
		// axis layout does not depend on the curve
		empty := survival.Render(schema, model.StepFunction{})
		info.XAxis, info.YAxis = empty.XAxis, empty.YAxis
		if snap, err := e.table.ForKind(kind); err == nil {
			info.Volcanoes = snap.Len()
		}
		out = append(out, info)
	}
	return out
}

// Volcanoes returns selector labels for kind, optionally filtered by a
// case-insensitive substring.
func (e *Engine) Volcanoes(kind, contains string) ([]string, error) {
	k, err := activity.ParseKind(kind)
	if err != nil {
		return nil, err
	}
	snap, err := e.table.ForKind(k)
	if err != nil {
		return nil, err
	}

	names := snap.Names()
	if contains == "" {
		return names, nil
	}
	needle := strings.ToLower(contains)
	filtered := make([]string, 0)
	for _, n := range names {
		if strings.Contains(strings.ToLower(n), needle) {
			filtered = append(filtered, n)
		}
	}
	return filtered, nil
}

func (e *Engine) History(ctx context.Context, userID string, limit int) ([]models.PlotRecord, error) {
	if e.history == nil {
		return nil, ErrHistoryDisabled
	}
	return e.history.ListPlotRecords(ctx, userID, limit)
}

func (e *Engine) Stats(ctx context.Context) ([]models.KindStats, error) {
	if e.history == nil {
		return nil, ErrHistoryDisabled
	}
	stats, err := e.history.KindStats(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Kind < stats[j].Kind })
	return stats, nil
}

// InvalidateCache drops cached plots. It is a no-op without a cache.
func (e *Engine) InvalidateCache(ctx context.Context) (int, error) {
	if e.cache == nil {
		return 0, nil
	}
	return e.cache.InvalidatePlots(ctx)
}
