package report

import (
	"fmt"
	"strings"
)

// Enumeration of type-fault kinds.  These are the user-reachable failures of
// static compilation: a caller-side policy may inspect the kind to decide
// whether a retry under more permissive typing is worthwhile.
const (
	FaultUnbound     = iota // read of a variable with no live definition
	FaultUnpromotable       // no common type exists for the operands
	FaultAmbiguous          // overload resolution produced an exact tie
	FaultUnsupported        // static typing cannot proceed on this construct
)

// faultKindStrings maps fault kinds to their display names.
var faultKindStrings = map[int]string{
	FaultUnbound:      "Unbound Variable",
	FaultUnpromotable: "Unpromotable Type",
	FaultAmbiguous:    "Ambiguous Overload",
	FaultUnsupported:  "Unsupported Construct",
}

// TypeFault is a structured typing failure.  It is an error value, never a
// bare string: it carries the fault kind, the position of the offending
// instruction, and the representations of the types involved so that callers
// and the display layer can act on it.
type TypeFault struct {
	// Kind is one of the Fault* constants.
	Kind int

	// Message is the human-readable description of the fault.
	Message string

	// Loc is the position of the offending instruction.  May be nil.
	Loc *InstLoc

	// Types holds the string representations of the types involved in the
	// fault (eg. both operand types of an unpromotable binary operation).
	Types []string
}

func (tf *TypeFault) Error() string {
	sb := strings.Builder{}
	sb.WriteString(faultKindStrings[tf.Kind])
	sb.WriteString(" at ")
	sb.WriteString(tf.Loc.String())
	sb.WriteString(": ")
	sb.WriteString(tf.Message)

	if len(tf.Types) > 0 {
		sb.WriteString(" [")
		sb.WriteString(strings.Join(tf.Types, ", "))
		sb.WriteRune(']')
	}

	return sb.String()
}

// RaiseFault creates a new type fault.
func RaiseFault(kind int, loc *InstLoc, typeReprs []string, msg string, args ...interface{}) *TypeFault {
	return &TypeFault{
		Kind:    kind,
		Message: fmt.Sprintf(msg, args...),
		Loc:     loc,
		Types:   typeReprs,
	}
}

// -----------------------------------------------------------------------------

// InternalError is an internal compiler error: a bug or unexpected condition
// inside the compiler itself.  These are never user-reachable if the earlier
// stages are correct and always indicate the pipeline must stop.
type InternalError struct {
	Message string
}

func (ie *InternalError) Error() string {
	return "internal compiler error: " + ie.Message
}

// ReportICE raises an internal compiler error.  It panics: the panic bubbles
// up to the nearest CatchErrors and becomes an *InternalError returned from
// the compilation session.
// NB: This function never returns.
func ReportICE(msg string, args ...interface{}) {
	panic(&InternalError{Message: fmt.Sprintf(msg, args...)})
}

// CatchErrors recovers any error raised by a `panic` during a stage of
// compilation and stores it into *err.  In effect, this handler determines
// where "unrecoverable" errors within the pipeline stop bubbling.
// NB: This function must ALWAYS be deferred.
func CatchErrors(err *error) {
	if x := recover(); x != nil {
		switch v := x.(type) {
		case *InternalError:
			*err = v
		case *TypeFault:
			*err = v
		case error:
			*err = v
		default:
			*err = &InternalError{Message: fmt.Sprint(x)}
		}
	}
}
