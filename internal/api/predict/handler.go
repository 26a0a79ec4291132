package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"mime"
	"net/http"
	"strconv"

	"golang.org/x/time/rate"

	"airquality/internal/domain/features"
	"airquality/internal/domain/prediction"
	"airquality/internal/services/scoring"
	"airquality/pkg/errors"
	"airquality/pkg/logger"
)

const maxBodyBytes = 64 << 10

// Scorer is the part of the scoring service the HTTP surface needs
type Scorer interface {
	Predict(ctx context.Context, mode prediction.Mode, in features.RawInput, opts scoring.Options) (*scoring.Outcome, error)
	Reload(mode prediction.Mode) (bool, error)
	Status() []scoring.ModelStatus
}

// Handler serves predictions and model status
type Handler struct {
	scorer  Scorer
	history prediction.Repository
	limiter *rate.Limiter
	log     *logger.Logger
}

// Config tunes the handler
type Config struct {
	RateLimit float64 // requests per second across all clients, 0 disables limiting
	Burst     int
	// History serves GET /predictions/{mode}; optional
	History prediction.Repository
}

// New creates a prediction handler
func New(scorer Scorer, cfg Config) *Handler {
	h := &Handler{
		scorer:  scorer,
		history: cfg.History,
		log:     logger.Get().With("component", "predict_handler"),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return h
}

// Register mounts the routes on mux
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /predict/{mode}", h.HandlePredict)
	mux.HandleFunc("GET /models", h.HandleModels)
	mux.HandleFunc("POST /models/{mode}/reload", h.HandleReload)
	if h.history != nil {
		mux.HandleFunc("GET /predictions/{mode}", h.HandleRecent)
	}
}

// Response is the body of POST /predict/{mode}
type Response struct {
	ID          string          `json:"id,omitempty"`
	Mode        prediction.Mode `json:"mode"`
	Output      string          `json:"output"`
	Label       string          `json:"label,omitempty"`
	Probability *float64        `json:"probability,omitempty"`
	Value       *float64        `json:"value,omitempty"`
	Raw         *float32        `json:"raw,omitempty"`
	Category    string          `json:"category,omitempty"`
	Cached      bool            `json:"cached,omitempty"`
}

// HandlePredict accepts the five fields as a form or a JSON object
func (h *Handler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	mode := prediction.Mode(r.PathValue("mode"))

	if h.limiter != nil && !h.limiter.Allow() {
		writeJSON(w, http.StatusTooManyRequests, Response{Mode: mode, Output: "Too many requests. Please retry shortly."})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	in, err := decodeInput(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Mode: mode, Output: prediction.UserMessage(err)})
		return
	}

	out, err := h.scorer.Predict(r.Context(), mode, in, scoring.Options{Source: scoring.SourceHTTP})
	if err != nil {
		writeJSON(w, statusFor(err), Response{Mode: mode, Output: prediction.UserMessage(err)})
		return
	}

	writeJSON(w, http.StatusOK, toResponse(out))
}

// HandleModels lists the status line of every enabled model
func (h *Handler) HandleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"models": h.scorer.Status()})
}

// HandleReload restarts loading of a failed or unloaded model
func (h *Handler) HandleReload(w http.ResponseWriter, r *http.Request) {
	mode := prediction.Mode(r.PathValue("mode"))

	started, err := h.scorer.Reload(mode)
	if err != nil {
		writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
		return
	}

	code := http.StatusAccepted
	if !started {
		code = http.StatusOK
	}
	h.log.Infow("Model reload requested", "mode", mode, "started", started)
	writeJSON(w, code, map[string]interface{}{"mode": mode, "started": started})
}

// HandleRecent returns the latest logged predictions for a mode
func (h *Handler) HandleRecent(w http.ResponseWriter, r *http.Request) {
	mode := prediction.Mode(r.PathValue("mode"))
	if !mode.Valid() {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown mode"})
		return
	}

	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > 1000 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be between 1 and 1000"})
			return
		}
		limit = n
	}

	records, err := h.history.GetRecent(r.Context(), mode, limit)
	if err != nil {
		h.log.Errorf("Failed to load recent predictions: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load predictions"})
		return
	}
	if records == nil {
		records = []prediction.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"predictions": records})
}

func toResponse(out *scoring.Outcome) Response {
	res := out.Result
	raw := res.Raw
	resp := Response{
		ID:       out.Record.ID.String(),
		Mode:     res.Mode,
		Output:   res.Display,
		Raw:      &raw,
		Category: out.Record.Category,
		Cached:   out.Record.Cached,
	}
	if c := res.Classification; c != nil {
		p := c.Probability
		resp.Probability = &p
		resp.Label = c.Label
	}
	if reg := res.Regression; reg != nil {
		v := reg.Value
		resp.Value = &v
	}
	return resp
}

// decodeInput reads a JSON object when the body says so, form values otherwise.
// JSON values may be strings or numbers; both go through the same parser.
func decodeInput(r *http.Request) (features.RawInput, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct != "application/json" {
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			return features.RawInput{}, errors.Mark(errors.Wrap(err, "read form"), errors.ErrInvalidInput)
		}
		return features.RawInput{
			CO:      r.FormValue(features.FieldCO),
			Ozone:   r.FormValue(features.FieldOzone),
			NO2:     r.FormValue(features.FieldNO2),
			PM25:    r.FormValue(features.FieldPM25),
			Country: r.FormValue(features.FieldCountry),
		}, nil
	}

	var body map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return features.RawInput{}, errors.Mark(errors.Wrap(err, "decode json"), errors.ErrInvalidInput)
	}

	var errs errors.MultiError
	field := func(name string) string {
		s, err := scalar(name, body[name])
		errs.Add(err)
		return s
	}

	in := features.RawInput{
		CO:      field(features.FieldCO),
		Ozone:   field(features.FieldOzone),
		NO2:     field(features.FieldNO2),
		PM25:    field(features.FieldPM25),
		Country: field(features.FieldCountry),
	}
	return in, errs.ToError()
}

// scalar renders a JSON string or number as text. Absent and null become "".
func scalar(name string, raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", errors.NewValidationError(name, "must be a string or number", string(raw))
		}
		return s, nil
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		return string(raw), nil
	default:
		return "", errors.NewValidationError(name, "must be a string or number", string(raw))
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errors.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, errors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errors.ErrNotReady), errors.Is(err, errors.ErrLoad):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
