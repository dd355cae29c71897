package manifest

import "fmt"

// ErrorKind discriminates the taxonomy of manifest-load failures named in
// the error contract: invalid version, schema violation, invalid
// identifier, dangling component reference, duplicate id, or an
// unresolvable component source.
type ErrorKind int

const (
	InvalidVersion ErrorKind = iota
	Schema
	InvalidIdentifier
	UnknownComponentRef
	DuplicateID
	UnresolvableSource
)

func (k ErrorKind) String() string {
	switch k {
	case InvalidVersion:
		return "InvalidVersion"
	case Schema:
		return "Schema"
	case InvalidIdentifier:
		return "InvalidId"
	case UnknownComponentRef:
		return "UnknownComponentRef"
	case DuplicateID:
		return "DuplicateId"
	case UnresolvableSource:
		return "UnresolvableSource"
	default:
		return "Unknown"
	}
}

// Error is the fatal, load-time error type returned by Parse and by the
// locking pipeline in internal/lockedapp. It is always reported with the
// offending identifier (when one exists) and a human-readable reason.
type Error struct {
	Kind   ErrorKind
	ID     string
	Reason string
}

func (e *Error) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s(%q): %s", e.Kind, e.ID, e.Reason)
}

func errSchema(reason string, args ...any) error {
	return &Error{Kind: Schema, Reason: fmt.Sprintf(reason, args...)}
}

func errInvalidID(id, reason string) error {
	return &Error{Kind: InvalidIdentifier, ID: id, Reason: reason}
}

func errDuplicateID(id string) error {
	return &Error{Kind: DuplicateID, ID: id, Reason: "duplicate identifier"}
}

func errUnknownRef(id string) error {
	return &Error{Kind: UnknownComponentRef, ID: id, Reason: "trigger references a component id that does not exist"}
}
