// Package fault defines the closed set of failures the recorder reports to
// its callers. Every engine operation returns either nil or an error that
// unwraps to a *fault.Error, so consumers switch on Kind instead of matching
// message strings.
package fault

import (
	"errors"
	"fmt"
)

// Kind identifies one failure variant.
type Kind int

const (
	Unknown Kind = iota
	NotAuthenticated
	Upstream
	NoDegree
	RoomConfigMissing
	InvalidRoomConfig
	InvalidArchiveName
	EmptyArchive
	DuplicatedArchive
	ArchiveNotFound
	RoomInfoNotFound
	MalformedLog
	Storage
	RoomDir
	SaveRoomConfig
	Consistency
)

var kindNames = map[Kind]string{
	Unknown:            "unknown",
	NotAuthenticated:   "not authenticated",
	Upstream:           "degree query failed",
	NoDegree:           "response has no degree",
	RoomConfigMissing:  "room config missing",
	InvalidRoomConfig:  "invalid room config",
	InvalidArchiveName: "invalid archive name",
	EmptyArchive:       "archive is empty",
	DuplicatedArchive:  "duplicated archive name",
	ArchiveNotFound:    "archive not found",
	RoomInfoNotFound:   "room info not found",
	MalformedLog:       "malformed records",
	Storage:            "storage failure",
	RoomDir:            "room dir unavailable",
	SaveRoomConfig:     "saving room config failed",
	Consistency:        "archive commit left inconsistent state",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error satisfies the error interface so a bare Kind can be used as an
// errors.Is target: errors.Is(err, fault.EmptyArchive).
func (k Kind) Error() string { return k.String() }

// Category groups kinds into the coarse classes callers act on.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryTransient
	CategoryNotAuthenticated
	CategoryValidation
	CategoryStorage
	CategoryConsistency
)

func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryNotAuthenticated:
		return "not-authenticated"
	case CategoryValidation:
		return "validation"
	case CategoryStorage:
		return "storage"
	case CategoryConsistency:
		return "consistency"
	default:
		return "unknown"
	}
}

// Category returns the class k belongs to.
func (k Kind) Category() Category {
	switch k {
	case Upstream, NoDegree, RoomInfoNotFound:
		return CategoryTransient
	case NotAuthenticated:
		return CategoryNotAuthenticated
	case RoomConfigMissing, InvalidRoomConfig, InvalidArchiveName, EmptyArchive, DuplicatedArchive, ArchiveNotFound:
		return CategoryValidation
	case MalformedLog, Storage, RoomDir, SaveRoomConfig:
		return CategoryStorage
	case Consistency:
		return CategoryConsistency
	default:
		return CategoryUnknown
	}
}

// Error is the tagged failure value. Op names the operation that failed,
// Msg carries optional detail (e.g. the upstream's message) and Err the cause.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	s := e.Kind.String()
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error or a bare Kind with the same Kind.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case Kind:
		return e.Kind == t
	case *Error:
		return e.Kind == t.Kind
	}
	return false
}

// New returns an *Error of kind k for op.
func New(k Kind, op string) *Error {
	return &Error{Kind: k, Op: op}
}

// Wrap returns an *Error of kind k for op caused by err. A nil err yields nil.
func Wrap(k Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: k, Op: op, Err: err}
}

// Newf returns an *Error of kind k carrying a formatted detail message.
func Newf(k Kind, op, format string, args ...any) *Error {
	return &Error{Kind: k, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// KindOf reports the Kind of the first *Error in err's chain, or Unknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return Unknown
}

// CategoryOf is shorthand for KindOf(err).Category().
func CategoryOf(err error) Category {
	return KindOf(err).Category()
}
