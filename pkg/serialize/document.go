package serialize

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/ssargent/votable/pkg/tabular"
)

// DataMode says where a table's rows go.
type DataMode int

const (
	// Inline writes rows inside the document.
	Inline DataMode = iota
	// Href writes rows to a separate stream referenced from the document.
	Href
	// NoData writes only the table metadata.
	NoData
)

// ParseDataMode accepts "inline", "href" or "none".
func ParseDataMode(s string) (DataMode, error) {
	switch s {
	case "", "inline":
		return Inline, nil
	case "href":
		return Href, nil
	case "none":
		return NoData, nil
	}
	return 0, fmt.Errorf("unknown data mode %q", s)
}

// StreamOpener creates the external stream for table index and returns the href the
// document should use for it.
type StreamOpener func(index int, t tabular.Table) (href string, w io.WriteCloser, err error)

// Info is an INFO element written under the RESOURCE.
type Info struct {
	Name    string
	Value   string
	Content string
}

// Options configures a DocumentWriter.
type Options struct {
	Version     Version
	Format      DataFormat
	Mode        DataMode
	FITS        FITSWriter
	Streams     StreamOpener
	Description string
	Infos       []Info
	Logger      logrus.FieldLogger
}

// DocumentWriter writes tables as a VOTable document with one RESOURCE.
type DocumentWriter struct {
	opts Options
	log  logrus.FieldLogger
}

// NewDocumentWriter checks opts and returns a writer.
func NewDocumentWriter(opts Options) (*DocumentWriter, error) {
	if opts.Version == "" {
		opts.Version = DefaultVersion
	}
	if _, err := ParseVersion(string(opts.Version)); err != nil {
		return nil, err
	}
	if !opts.Version.Supports(opts.Format) {
		return nil, fmt.Errorf("%s requires VOTable 1.3 or later, not %s", opts.Format, opts.Version)
	}
	if opts.Format == FITS && opts.FITS == nil {
		return nil, ErrNoFITSWriter
	}
	if opts.Mode == Href {
		if opts.Format == TableData {
			return nil, ErrNoHref
		}
		if opts.Streams == nil {
			return nil, fmt.Errorf("serialize: href mode needs a StreamOpener")
		}
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &DocumentWriter{opts: opts, log: log}, nil
}

// Write writes the document to w.
func (d *DocumentWriter) Write(w io.Writer, tables ...tabular.Table) error {
	x := newXMLWriter(w)
	v := d.opts.Version
	x.raw("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	x.open("VOTABLE",
		"version", string(v),
		"xmlns:xsi", "http://www.w3.org/2001/XMLSchema-instance",
		"xmlns", v.Namespace(),
		"xsi:schemaLocation", v.SchemaLocation())
	x.raw("\n")
	if d.opts.Description != "" {
		x.raw(indent(1))
		x.element("DESCRIPTION", d.opts.Description)
		x.raw("\n")
	}
	x.raw(indent(1) + "<RESOURCE>\n")
	for _, info := range d.opts.Infos {
		x.raw(indent(2))
		if info.Content == "" {
			x.empty("INFO", "name", info.Name, "value", info.Value)
		} else {
			x.open("INFO", "name", info.Name, "value", info.Value)
			x.text(info.Content)
			x.close("INFO")
		}
		x.raw("\n")
	}
	if x.err != nil {
		return x.err
	}

	for i, t := range tables {
		if err := d.writeTable(x, i, t); err != nil {
			return fmt.Errorf("table %d (%q): %w", i, t.Name(), err)
		}
	}
	x.raw(indent(1) + "</RESOURCE>\n")
	x.raw("</VOTABLE>\n")
	return x.flush()
}

func (d *DocumentWriter) writeTable(x *xmlWriter, index int, t tabular.Table) error {
	s, err := NewSerializer(t, d.opts.Format, d.opts.FITS)
	if err != nil {
		return err
	}
	s.Indent = 3

	var nrows string
	if n := t.RowCount(); n >= 0 && d.opts.Mode != NoData {
		nrows = strconv.FormatInt(n, 10)
	}
	x.raw(indent(2))
	x.open("TABLE", "name", t.Name(), "nrows", nrows)
	x.raw("\n")
	if x.err != nil {
		return x.err
	}

	if err := s.WriteParams(x.w); err != nil {
		return err
	}
	if err := s.WriteFields(x.w); err != nil {
		return err
	}

	switch d.opts.Mode {
	case Inline:
		err = s.WriteInlineData(x.w)
	case Href:
		err = d.writeHref(x, s, index, t)
	}
	if err != nil {
		return err
	}

	x.raw(indent(2) + "</TABLE>\n")
	d.log.WithFields(logrus.Fields{
		"table":  t.Name(),
		"format": d.opts.Format.String(),
	}).Debug("table written")
	return x.err
}

func (d *DocumentWriter) writeHref(x *xmlWriter, s *Serializer, index int, t tabular.Table) (err error) {
	href, stream, err := d.opts.Streams(index, t)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := stream.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	bw := bufio.NewWriterSize(stream, WriteBufSize)
	if err := s.WriteHrefData(x.w, href, bw); err != nil {
		return err
	}
	return bw.Flush()
}

// DirStreams returns a StreamOpener creating one file per table in dir, named
// prefix-N.ext with ext following the format. The href is the file name, relative to
// a document written in the same directory.
func DirStreams(dir, prefix string, format DataFormat) StreamOpener {
	ext := "bin"
	if format == FITS {
		ext = "fits"
	}
	return func(index int, _ tabular.Table) (string, io.WriteCloser, error) {
		name := fmt.Sprintf("%s-%d.%s", prefix, index+1, ext)
		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			return "", nil, err
		}
		return name, f, nil
	}
}
