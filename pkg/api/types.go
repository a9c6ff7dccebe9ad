package api

import (
	"github.com/segmentio/ksuid"

	"github.com/ssargent/votable/pkg/parser"
	"github.com/ssargent/votable/pkg/serialize"
	"github.com/ssargent/votable/pkg/storage"
	"github.com/ssargent/votable/pkg/tabular"
)

// DefaultMaxUpload is the largest request body accepted when ServerConfig leaves it unset.
const DefaultMaxUpload = 256 << 20

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ServerConfig holds configuration for the API server
type ServerConfig struct {
	Bind   string
	Port   int
	APIKey string

	// MaxUploadBytes limits request bodies. Defaults to DefaultMaxUpload.
	MaxUploadBytes int64

	// Parser configures how uploads are read. Its Collector is replaced by the spool
	// when the server has one.
	Parser parser.Options
	// Writer holds the default version and format for conversions.
	Writer serialize.Options
}

func (c ServerConfig) maxUpload() int64 {
	if c.MaxUploadBytes > 0 {
		return c.MaxUploadBytes
	}
	return DefaultMaxUpload
}

// TableSpool is the part of the disk spool the server uses.
type TableSpool interface {
	Collector(meta tabular.TableMeta) (tabular.Collector, error)
	Tables() ([]ksuid.KSUID, error)
	Table(id ksuid.KSUID) (*storage.SpoolTable, error)
	Delete(id ksuid.KSUID) error
}

var _ TableSpool = (*storage.Spool)(nil)

// ColumnSummary describes one column of an uploaded table
type ColumnSummary struct {
	Name      string `json:"name"`
	Datatype  string `json:"datatype,omitempty"`
	Arraysize string `json:"arraysize,omitempty"`
	Unit      string `json:"unit,omitempty"`
	UCD       string `json:"ucd,omitempty"`
	Class     string `json:"class"`
}

// ParamSummary describes a table parameter
type ParamSummary struct {
	Name  string      `json:"name"`
	Value interface{} `json:"value"`
	Unit  string      `json:"unit,omitempty"`
}

// TableSummary describes an uploaded or spooled table
type TableSummary struct {
	Index   int             `json:"index"`
	ID      string          `json:"id,omitempty"`
	Name    string          `json:"name,omitempty"`
	Rows    int64           `json:"rows"`
	Columns []ColumnSummary `json:"columns"`
	Params  []ParamSummary  `json:"params,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// DocumentSummary is the response to a table upload
type DocumentSummary struct {
	Version   string         `json:"version,omitempty"`
	Container string         `json:"container"`
	Tables    []TableSummary `json:"tables"`
}

// SniffResult reports what kind of file an upload is
type SniffResult struct {
	VOTable     bool `json:"votable"`
	FITS        bool `json:"fits"`
	FitsPlus    bool `json:"fits_plus"`
	ColfitsPlus bool `json:"colfits_plus"`
}
