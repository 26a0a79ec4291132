package prediction

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"airquality/pkg/errors"
)

const (
	classifyThreshold   = 0.5
	probabilityDecimals = 4
	aqiDecimals         = 2
)

// Interpreter turns the model's raw scalar into a Result
type Interpreter interface {
	Mode() Mode
	Interpret(raw float32) (Result, error)
}

// Classifier reads the raw output as a logit
type Classifier struct{}

func (Classifier) Mode() Mode { return ModeClassify }

// Interpret applies the logistic function; p >= 0.5 is "Good (or better)".
func (Classifier) Interpret(raw float32) (Result, error) {
	if err := checkFinite(raw); err != nil {
		return Result{}, err
	}
	p := Sigmoid(float64(raw))

	label := LabelNotGood
	if p >= classifyThreshold {
		label = LabelGood
	}

	return Result{
		Mode:           ModeClassify,
		Raw:            raw,
		Classification: &Classification{Probability: p, Label: label},
		Display:        label + " (Probability: " + FormatFixed(p, probabilityDecimals) + ")",
	}, nil
}

// Regressor reads the raw output as the AQI value itself
type Regressor struct{}

func (Regressor) Mode() Mode { return ModeRegress }

func (Regressor) Interpret(raw float32) (Result, error) {
	if err := checkFinite(raw); err != nil {
		return Result{}, err
	}
	v := float64(raw)
	return Result{
		Mode:       ModeRegress,
		Raw:        raw,
		Regression: &Regression{Value: v},
		Display:    FormatFixed(v, aqiDecimals),
	}, nil
}

func checkFinite(raw float32) error {
	f := float64(raw)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return errors.Wrapf(errors.ErrInferenceRuntime, "model returned non-finite output %v", raw)
	}
	return nil
}

// InterpreterFor returns the strategy for mode
func InterpreterFor(mode Mode) (Interpreter, error) {
	switch mode {
	case ModeClassify:
		return Classifier{}, nil
	case ModeRegress:
		return Regressor{}, nil
	}
	return nil, errors.NewValidationError("mode", "must be classify or regress", mode)
}

// Sigmoid is 1 / (1 + e^-x)
func Sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// FormatFixed rounds half away from zero to places digits after the point.
// The value goes through its shortest decimal form first, so 42.567 -> "42.57"
// even when 42.567 is not exactly representable. A negative value keeps its
// sign when it rounds to zero: -0.001 -> "-0.00".
func FormatFixed(v float64, places int32) string {
	s := decimal.NewFromFloat(v).StringFixed(places)
	if v < 0 && !strings.HasPrefix(s, "-") {
		s = "-" + s
	}
	return s
}
