package failure

import "errors"

// Kind identifies a category of handler failure.
// Kinds are compared by identity and form a tree through their parent link:
// every kind descends from Any. A Kind is immutable once created.
type Kind struct {
	name   string
	parent *Kind
}

var (
	// Any is the wildcard kind. Every other kind descends from it, and a bucket
	// holding Any matches every failure in both match modes.
	Any = &Kind{name: "any"}
	// Unknown is assigned to errors that do not carry a kind.
	Unknown = NewKind("unknown", Any)
	// Panic is assigned to panics recovered from a guarded handler.
	Panic = NewKind("panic", Any)
)

// NewKind creates a kind with the given parent. A nil parent means Any.
func NewKind(name string, parent *Kind) *Kind {
	if parent == nil {
		parent = Any
	}
	return &Kind{name: name, parent: parent}
}

// Name returns the display name of the kind.
func (k *Kind) Name() string {
	if k == nil {
		return ""
	}
	return k.name
}

// Parent returns the parent kind, or nil for Any.
func (k *Kind) Parent() *Kind {
	if k == nil {
		return nil
	}
	return k.parent
}

// String implements fmt.Stringer.
func (k *Kind) String() string { return k.Name() }

// Is reports whether k is target or one of its descendants.
func (k *Kind) Is(target *Kind) bool {
	if target == nil {
		return false
	}
	for cur := k; cur != nil; cur = cur.parent {
		if cur == target {
			return true
		}
	}
	return false
}

// Kinded is implemented by errors that declare their failure kind.
type Kinded interface {
	FailureKind() *Kind
}

// KindOf returns the kind of the first error in err's chain that declares one.
// Errors without a declared kind are Unknown.
func KindOf(err error) *Kind {
	var k Kinded
	if errors.As(err, &k) {
		if kind := k.FailureKind(); kind != nil {
			return kind
		}
	}
	return Unknown
}

// Error is an error tagged with a failure kind.
type Error struct {
	Kind *Kind
	Msg  string
	Err  error
}

// New returns an error of the given kind.
func New(kind *Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap tags err with the given kind. It returns nil when err is nil.
func Wrap(kind *Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return e.Msg + ": " + e.Err.Error()
	case e.Err != nil:
		return e.Err.Error()
	case e.Msg != "":
		return e.Msg
	default:
		return e.Kind.Name()
	}
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error { return e.Err }

// FailureKind implements Kinded.
func (e *Error) FailureKind() *Kind { return e.Kind }
