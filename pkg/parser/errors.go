package parser

import (
	"errors"
	"fmt"

	goerrors "gopkg.in/src-d/go-errors.v1"
)

var (
	// ErrNotVOTable is returned when the root element is not VOTABLE.
	ErrNotVOTable = goerrors.NewKind("not a VOTable document: root element %s")

	// ErrTableNotFound is returned by StreamTable when the document has fewer tables.
	ErrTableNotFound = goerrors.NewKind("table %d not found")

	// ErrStructure reports elements in places the format does not allow.
	ErrStructure = goerrors.NewKind("malformed VOTable: %s")

	// ErrHref is returned when a STREAM href cannot be opened or decoded.
	ErrHref = goerrors.NewKind("cannot read stream %q")

	// ErrNoFITSReader is returned for FITS data when Options.FITS is nil.
	ErrNoFITSReader = errors.New("parser: no FITS reader configured")
)

// errStop ends a parse early without error.
var errStop = errors.New("stop")

// TableError is a failure confined to one table. Other tables of the document are
// unaffected.
type TableError struct {
	Index int // position of the TABLE in document order, from 0
	Name  string
	Err   error
}

func (e *TableError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("table %d (%s): %v", e.Index, e.Name, e.Err)
	}
	return fmt.Sprintf("table %d: %v", e.Index, e.Err)
}

func (e *TableError) Unwrap() error { return e.Err }
