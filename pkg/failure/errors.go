package failure

type Severity int

// scheduler control flow
const (
	SeverityFatal Severity = iota
	SeverityRecoverable
)

func (s Severity) String() string {
	switch s {
	case SeverityFatal:
		return "fatal"
	case SeverityRecoverable:
		return "recoverable"
	default:
		return "unknown"
	}
}

type ClassifiedError interface {
	error
	Severity() Severity
}

// IsFatal reports whether err must stop the whole run.
// A nil error is never fatal.
func IsFatal(err ClassifiedError) bool {
	return err != nil && err.Severity() == SeverityFatal
}
