package prediction

// Mode selects which model a request goes to and how its output is read
type Mode string

const (
	ModeClassify Mode = "classify"
	ModeRegress  Mode = "regress"
)

// Valid checks if mode is known
func (m Mode) Valid() bool {
	switch m {
	case ModeClassify, ModeRegress:
		return true
	}
	return false
}

// String returns string representation
func (m Mode) String() string {
	return string(m)
}

// Noun is the human name used in status text ("classification model")
func (m Mode) Noun() string {
	switch m {
	case ModeClassify:
		return "classification"
	case ModeRegress:
		return "regression"
	}
	return string(m)
}

// Modes lists every mode in display order
func Modes() []Mode {
	return []Mode{ModeClassify, ModeRegress}
}
