package parser

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ssargent/votable/pkg/tabular"
)

// Namespacing controls how element names are matched against the VOTable vocabulary.
type Namespacing int

const (
	// NamespacingNone matches qualified names as written. A prefixed element is never
	// recognized.
	NamespacingNone Namespacing = iota
	// NamespacingLax ignores prefixes and namespaces.
	NamespacingLax
	// NamespacingStrict recognizes elements in a versioned VOTable namespace, or in no
	// namespace at all.
	NamespacingStrict
)

func (n Namespacing) String() string {
	switch n {
	case NamespacingNone:
		return "none"
	case NamespacingLax:
		return "lax"
	case NamespacingStrict:
		return "strict"
	}
	return fmt.Sprintf("Namespacing(%d)", int(n))
}

// ParseNamespacing reads a policy name. The empty string selects lax.
func ParseNamespacing(s string) (Namespacing, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return NamespacingNone, nil
	case "", "lax":
		return NamespacingLax, nil
	case "strict":
		return NamespacingStrict, nil
	}
	return NamespacingLax, fmt.Errorf("unknown namespacing policy %q", s)
}

const (
	DefaultPipeDepth  = 16
	DefaultQueueDepth = 4
)

// Options configures a parse. The zero value is usable.
type Options struct {
	Logger      logrus.FieldLogger
	Namespacing Namespacing

	// SystemID is where the document came from. Relative STREAM hrefs are resolved
	// against it.
	SystemID string

	// Resolver opens STREAM hrefs. Defaults to a DefaultResolver.
	Resolver Resolver

	// FITS reads FITS payloads. Tables stored as FITS fail without it.
	FITS FITSReader

	// PipeDepth is the number of decoded chunks of inline binary data buffered ahead of
	// the row decoder.
	PipeDepth int

	// QueueDepth is the number of finished tables StreamTables buffers ahead of the
	// caller.
	QueueDepth int

	// Collector returns the store that receives a table's rows in ParseStored and
	// StreamTables. Defaults to an in-memory tabular.RowStore.
	Collector func(meta tabular.TableMeta) (tabular.Collector, error)
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	if o.Resolver == nil {
		o.Resolver = &DefaultResolver{}
	}
	if o.PipeDepth <= 0 {
		o.PipeDepth = DefaultPipeDepth
	}
	if o.QueueDepth <= 0 {
		o.QueueDepth = DefaultQueueDepth
	}
	if o.Collector == nil {
		o.Collector = MemoryCollector
	}
	return o
}

// MemoryCollector keeps rows in a tabular.RowStore.
func MemoryCollector(meta tabular.TableMeta) (tabular.Collector, error) {
	return tabular.NewRowStore(meta), nil
}
