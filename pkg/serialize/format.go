package serialize

import (
	"fmt"
	"strings"
)

// DataFormat selects the element a table's rows are written in.
type DataFormat int

const (
	TableData DataFormat = iota
	Binary
	Binary2
	FITS
)

var formatNames = []string{"TABLEDATA", "BINARY", "BINARY2", "FITS"}

// ParseDataFormat accepts a format name in any case.
func ParseDataFormat(s string) (DataFormat, error) {
	for i, n := range formatNames {
		if strings.EqualFold(s, n) {
			return DataFormat(i), nil
		}
	}
	return 0, fmt.Errorf("unknown data format %q", s)
}

// String returns the element name of the format.
func (f DataFormat) String() string {
	if int(f) < 0 || int(f) >= len(formatNames) {
		return fmt.Sprintf("DataFormat(%d)", int(f))
	}
	return formatNames[f]
}

// Version is a VOTable schema version such as "1.4".
type Version string

const (
	V11 Version = "1.1"
	V12 Version = "1.2"
	V13 Version = "1.3"
	V14 Version = "1.4"
	V15 Version = "1.5"

	DefaultVersion = V14
)

var versions = []Version{V11, V12, V13, V14, V15}

// ParseVersion accepts "1.4" or "v1.4". An empty string gives DefaultVersion.
func ParseVersion(s string) (Version, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "v")
	if s == "" {
		return DefaultVersion, nil
	}
	for _, v := range versions {
		if string(v) == s {
			return v, nil
		}
	}
	return "", fmt.Errorf("unsupported VOTable version %q", s)
}

// Namespace returns the XML namespace of the version.
func (v Version) Namespace() string {
	return "http://www.ivoa.net/xml/VOTable/v" + string(v)
}

// SchemaLocation returns the xsi:schemaLocation value for the version.
func (v Version) SchemaLocation() string {
	return v.Namespace() + " http://www.ivoa.net/xml/VOTable/VOTable-" + string(v) + ".xsd"
}

// Supports reports whether documents of this version may use format f. BINARY2 appeared
// in 1.3.
func (v Version) Supports(f DataFormat) bool {
	if f == Binary2 {
		return v != V11 && v != V12
	}
	return true
}
