package prediction

import (
	"airquality/pkg/errors"
)

// User-facing status strings
const (
	MessageNotReady        = "Model is still loading. Please wait."
	MessagePredictionError = "Prediction Error"
	MessageUnavailable     = "Model unavailable. Reload to try again."
	MessageUnknownModel    = "Unknown or disabled model."
)

// UserMessage converts any pipeline error into the text shown to the user.
// It never returns an empty string for a non-nil error.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var verr *errors.ValidationError
	switch {
	case errors.Is(err, errors.ErrNotReady):
		return MessageNotReady
	case errors.Is(err, errors.ErrLoad):
		return MessageUnavailable
	case errors.Is(err, errors.ErrNotFound):
		return MessageUnknownModel
	case errors.Is(err, errors.ErrInvalidInput) && errors.As(err, &verr):
		return "Invalid input: " + verr.Field + " " + verr.Message
	case errors.Is(err, errors.ErrInvalidInput):
		return "Invalid input"
	default:
		return MessagePredictionError
	}
}
