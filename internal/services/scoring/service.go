package scoring

import (
	"context"
	"time"

	"github.com/google/uuid"

	"airquality/internal/domain/features"
	"airquality/internal/domain/prediction"
	"airquality/internal/metrics"
	"airquality/internal/ml"
	"airquality/pkg/errors"
	"airquality/pkg/logger"
)

// Sources a prediction can arrive from
const (
	SourceHTTP  = "http"
	SourceKafka = "kafka"
	SourceCLI   = "cli"
)

// Runner executes one vector against a handle
type Runner interface {
	Run(ctx context.Context, h *ml.Handle, v features.Vector) (float32, error)
}

// Deps are the collaborators of a Service. Cache, Repository and Publisher are optional.
type Deps struct {
	Schema     *features.Schema
	Handles    []*ml.Handle
	Runner     Runner
	Cache      prediction.Cache
	Repository prediction.Repository
	Publisher  prediction.Publisher
}

// Options describe where a request came from
type Options struct {
	Source    string
	ReadingID string
}

// Outcome is one served prediction
type Outcome struct {
	Result prediction.Result
	Record prediction.Record
}

// Service runs the shared encoding pipeline for every enabled model. Both
// modes go through the same schema and differ only in their interpreter.
type Service struct {
	schema       *features.Schema
	handles      map[prediction.Mode]*ml.Handle
	modes        []prediction.Mode
	runner       Runner
	interpreters map[prediction.Mode]prediction.Interpreter

	cache     prediction.Cache
	repo      prediction.Repository
	publisher prediction.Publisher

	log *logger.Logger
}

// NewService wires the pipeline. Handles must cover distinct modes.
func NewService(deps Deps) (*Service, error) {
	if deps.Schema == nil {
		return nil, errors.Wrap(errors.ErrConfig, "scoring service requires a schema")
	}
	if deps.Runner == nil {
		return nil, errors.Wrap(errors.ErrConfig, "scoring service requires a runner")
	}
	if len(deps.Handles) == 0 {
		return nil, errors.Wrap(errors.ErrConfig, "scoring service requires at least one model")
	}

	s := &Service{
		schema:       deps.Schema,
		handles:      make(map[prediction.Mode]*ml.Handle, len(deps.Handles)),
		runner:       deps.Runner,
		interpreters: make(map[prediction.Mode]prediction.Interpreter, len(deps.Handles)),
		cache:        deps.Cache,
		repo:         deps.Repository,
		publisher:    deps.Publisher,
		log:          logger.Get().With("component", "scoring_service"),
	}

	for _, h := range deps.Handles {
		mode := h.Mode()
		if _, dup := s.handles[mode]; dup {
			return nil, errors.Wrapf(errors.ErrConfig, "duplicate %s model", mode)
		}
		interp, err := prediction.InterpreterFor(mode)
		if err != nil {
			return nil, errors.Mark(err, errors.ErrConfig)
		}
		s.handles[mode] = h
		s.interpreters[mode] = interp
		s.modes = append(s.modes, mode)
	}

	return s, nil
}

// Schema returns the encoding contract in use
func (s *Service) Schema() *features.Schema { return s.schema }

// Modes returns the enabled modes in registration order
func (s *Service) Modes() []prediction.Mode {
	return append([]prediction.Mode(nil), s.modes...)
}

// LoadAll starts the background load of every model
func (s *Service) LoadAll() {
	for _, mode := range s.modes {
		s.handles[mode].Load()
	}
}

// WaitReady blocks until every load attempt finished and reports the first failure
func (s *Service) WaitReady(ctx context.Context) error {
	var errs errors.MultiError
	for _, mode := range s.modes {
		errs.Add(s.handles[mode].Wait(ctx))
	}
	return errs.ToError()
}

// Reload restarts loading for mode. It returns false when the model is
// already loading or ready.
func (s *Service) Reload(mode prediction.Mode) (bool, error) {
	h, err := s.handle(mode)
	if err != nil {
		return false, err
	}
	return h.Load(), nil
}

// Ready reports whether every enabled model can serve
func (s *Service) Ready() bool {
	for _, mode := range s.modes {
		if !s.handles[mode].Ready() {
			return false
		}
	}
	return true
}

// ModelStatus is what users see about one model
type ModelStatus struct {
	Mode     prediction.Mode `json:"mode"`
	State    string          `json:"state"`
	Message  string          `json:"message"`
	Path     string          `json:"path"`
	LoadedAt *time.Time      `json:"loaded_at,omitempty"`
}

// Status returns one line per enabled model
func (s *Service) Status() []ModelStatus {
	out := make([]ModelStatus, 0, len(s.modes))
	for _, mode := range s.modes {
		h := s.handles[mode]
		st := ModelStatus{
			Mode:    mode,
			State:   h.State().String(),
			Message: h.StatusText(),
			Path:    h.Path(),
		}
		if at := h.LoadedAt(); !at.IsZero() && h.Ready() {
			st.LoadedAt = &at
		}
		out = append(out, st)
	}
	return out
}

// ModelSnapshots implements metrics.StatusSource
func (s *Service) ModelSnapshots() []metrics.ModelSnapshot {
	out := make([]metrics.ModelSnapshot, 0, len(s.modes))
	for _, mode := range s.modes {
		h := s.handles[mode]
		out = append(out, metrics.ModelSnapshot{
			Mode:     mode.String(),
			Ready:    h.Ready(),
			LoadedAt: h.LoadedAt(),
		})
	}
	return out
}

// SchemaVersion implements metrics.StatusSource
func (s *Service) SchemaVersion() string {
	return s.schema.Version()
}

// Predict scores the five raw form fields. Readiness is checked before the
// input is parsed, so a loading model always answers "still loading".
func (s *Service) Predict(ctx context.Context, mode prediction.Mode, in features.RawInput, opts Options) (*Outcome, error) {
	start := time.Now()

	h, err := s.handle(mode)
	if err == nil {
		err = checkServing(h)
	}
	if err != nil {
		s.record(ctx, mode, opts, start, err)
		return nil, err
	}

	reading, err := features.ParseReading(in)
	if err != nil {
		s.record(ctx, mode, opts, start, err)
		return nil, err
	}

	return s.score(ctx, h, reading, opts, start)
}

// PredictReading scores an already parsed reading
func (s *Service) PredictReading(ctx context.Context, mode prediction.Mode, reading features.Reading, opts Options) (*Outcome, error) {
	start := time.Now()

	h, err := s.handle(mode)
	if err == nil {
		err = checkServing(h)
	}
	if err != nil {
		s.record(ctx, mode, opts, start, err)
		return nil, err
	}

	return s.score(ctx, h, reading, opts, start)
}

func (s *Service) score(ctx context.Context, h *ml.Handle, reading features.Reading, opts Options, start time.Time) (*Outcome, error) {
	mode := h.Mode()

	vector, err := s.schema.Assemble(reading)
	if err != nil {
		s.record(ctx, mode, opts, start, err)
		return nil, err
	}

	category := s.schema.CategoryOf(reading.Country)
	if category == s.schema.Fallback() && reading.Country != category {
		metrics.RecordFallback(mode.String())
	}

	// a reloaded artifact must not be answered from the previous model's entries
	key := vector.Key() + ":" + h.Fingerprint()
	result, cached := s.lookup(ctx, mode, key)

	if !cached {
		raw, err := s.runner.Run(ctx, h, vector)
		if err != nil {
			s.record(ctx, mode, opts, start, err)
			return nil, err
		}

		result, err = s.interpreters[mode].Interpret(raw)
		if err != nil {
			s.record(ctx, mode, opts, start, err)
			return nil, err
		}

		if s.cache != nil {
			if err := s.cache.Set(ctx, mode, key, result); err != nil {
				s.log.Warnw("Failed to cache prediction", "mode", mode, "error", err)
			}
		}
	}

	rec := prediction.Record{
		ID:            uuid.New(),
		ReadingID:     opts.ReadingID,
		Mode:          mode,
		SchemaVersion: s.schema.Version(),
		Reading:       reading,
		Category:      category,
		Vector:        vector.Values(),
		Raw:           result.Raw,
		Display:       result.Display,
		Cached:        cached,
		Latency:       time.Since(start),
		CreatedAt:     time.Now().UTC(),
	}

	s.persist(ctx, &rec)
	s.record(ctx, mode, opts, start, nil)

	return &Outcome{Result: result, Record: rec}, nil
}

// lookup never fails the request; a broken cache is just a miss
func (s *Service) lookup(ctx context.Context, mode prediction.Mode, key string) (prediction.Result, bool) {
	if s.cache == nil {
		return prediction.Result{}, false
	}

	res, err := s.cache.Get(ctx, mode, key)
	switch {
	case err != nil:
		metrics.RecordCacheLookup(mode.String(), "error")
		s.log.Warnw("Prediction cache lookup failed", "mode", mode, "error", err)
		return prediction.Result{}, false
	case res == nil:
		metrics.RecordCacheLookup(mode.String(), "miss")
		return prediction.Result{}, false
	default:
		metrics.RecordCacheLookup(mode.String(), "hit")
		return *res, true
	}
}

func (s *Service) persist(ctx context.Context, rec *prediction.Record) {
	if s.repo != nil {
		if err := s.repo.Store(ctx, rec); err != nil {
			s.log.Warnw("Failed to store prediction", "id", rec.ID, "error", err)
		}
	}
	if s.publisher != nil {
		if err := s.publisher.PublishPrediction(ctx, rec); err != nil {
			s.log.Warnw("Failed to publish prediction", "id", rec.ID, "error", err)
		}
	}
}

func (s *Service) record(ctx context.Context, mode prediction.Mode, opts Options, start time.Time, err error) {
	status := statusOf(err)
	metrics.RecordPrediction(mode.String(), opts.Source, status, time.Since(start))

	if status == "error" {
		s.log.ErrorWithContext(ctx, errors.Wrapf(err, "%s prediction", mode), map[string]string{
			"mode":   mode.String(),
			"source": opts.Source,
		})
	}
}

func (s *Service) handle(mode prediction.Mode) (*ml.Handle, error) {
	h, ok := s.handles[mode]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "%s model is not enabled", mode)
	}
	return h, nil
}

// checkServing maps the handle state to ErrNotReady or the stored load error
func checkServing(h *ml.Handle) error {
	switch h.State() {
	case ml.StateReady:
		return nil
	case ml.StateFailed:
		return h.Err()
	default:
		return errors.Wrapf(errors.ErrNotReady, "%s model is %s", h.Mode(), h.State())
	}
}

// Close releases every model after in-flight runs finish
func (s *Service) Close() {
	for _, mode := range s.modes {
		s.handles[mode].Close()
	}
}

func statusOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, errors.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, errors.ErrNotReady):
		return "not_ready"
	case errors.Is(err, errors.ErrLoad), errors.Is(err, errors.ErrNotFound):
		return "unavailable"
	default:
		return "error"
	}
}
