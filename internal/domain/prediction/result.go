package prediction

// Classification labels
const (
	LabelGood    = "Good (or better)"
	LabelNotGood = "Not Good (Moderate to Unhealthy)"
)

// Classification is the outcome of the binary model
type Classification struct {
	Probability float64 `json:"probability"`
	Label       string  `json:"label"`
}

// Regression is the outcome of the AQI regressor
type Regression struct {
	Value float64 `json:"value"`
}

// Result is an interpreted model output. Exactly one of Classification or
// Regression is set, matching Mode.
type Result struct {
	Mode           Mode            `json:"mode"`
	Raw            float32         `json:"raw"`
	Classification *Classification `json:"classification,omitempty"`
	Regression     *Regression     `json:"regression,omitempty"`
	// Display is the user-facing text
	Display string `json:"output"`
}
