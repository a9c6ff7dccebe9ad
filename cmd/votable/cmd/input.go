package cmd

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"

	"github.com/ssargent/votable/pkg/config"
	"github.com/ssargent/votable/pkg/fits"
	"github.com/ssargent/votable/pkg/parser"
	"github.com/ssargent/votable/pkg/storage"
	"github.com/ssargent/votable/pkg/tabular"
)

// Containers an input can arrive in
const (
	containerVOTable     = "votable"
	containerFitsPlus    = "fits-plus"
	containerColfitsPlus = "colfits-plus"
)

// document is a parsed input file.
type document struct {
	container string
	version   string
	tables    []tabular.Table
	// errs holds failures confined to single tables, indexed like tables.
	errs []error
}

// session holds what the commands share while reading inputs.
type session struct {
	cfg   *config.Config
	spool *storage.Spool
}

// newSession opens the spool when the storage policy asks for one.
func newSession(cfg *config.Config) (*session, error) {
	s := &session{cfg: cfg}
	if cfg.Storage.Policy == config.StorageDisk {
		spool, err := storage.Open(cfg.Storage.SpoolDir, log)
		if err != nil {
			return nil, fmt.Errorf("failed to open spool: %w", err)
		}
		s.spool = spool
	}
	return s, nil
}

func (s *session) Close() error {
	if s.spool != nil {
		return s.spool.Close()
	}
	return nil
}

func (s *session) parserOptions(path string) (parser.Options, error) {
	opts, err := s.cfg.ParserOptions(log)
	if err != nil {
		return opts, err
	}
	opts.FITS = fits.BinTable{}
	if path != "-" {
		opts.SystemID = path
	}
	if s.spool != nil {
		opts.Collector = s.spool.Collector
	}
	return opts, nil
}

// inputOpener returns an Opener for path, or for stdin when path is "-". Standard input
// is read into memory since fits-plus needs more than one pass. Gzipped input is
// decompressed.
func inputOpener(path string, stdin io.Reader) (tabular.Opener, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read standard input: %w", err)
		}
		return func() (io.ReadCloser, error) {
			return maybeGunzip(io.NopCloser(bytes.NewReader(data)))
		}, nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return func() (io.ReadCloser, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		return maybeGunzip(f)
	}, nil
}

type gzipReadCloser struct {
	*gzip.Reader
	under io.Closer
}

func (g *gzipReadCloser) Close() error {
	return errors.Join(g.Reader.Close(), g.under.Close())
}

type bufferedReadCloser struct {
	*bufio.Reader
	io.Closer
}

func maybeGunzip(rc io.ReadCloser) (io.ReadCloser, error) {
	br := bufio.NewReader(rc)
	magic, _ := br.Peek(2)
	if len(magic) < 2 || magic[0] != 0x1f || magic[1] != 0x8b {
		return bufferedReadCloser{br, rc}, nil
	}
	zr, err := gzip.NewReader(br)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("corrupt gzip input: %w", err)
	}
	return &gzipReadCloser{Reader: zr, under: rc}, nil
}

// sniffContainer peeks at the first FITS block of r.
func sniffContainer(r *bufio.Reader) string {
	head, _ := r.Peek(fits.BlockSize)
	switch {
	case fits.IsColfitsPlus(head):
		return containerColfitsPlus
	case fits.IsFitsPlus(head):
		return containerFitsPlus
	}
	return containerVOTable
}

// read parses the document at path following the storage policy.
func (s *session) read(ctx context.Context, path string, stdin io.Reader) (*document, error) {
	open, err := inputOpener(path, stdin)
	if err != nil {
		return nil, err
	}
	rc, err := open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	br := bufio.NewReaderSize(rc, fits.BlockSize)

	if container := sniffContainer(br); container != containerVOTable {
		plus, err := fits.ReadPlus(ctx, open, fits.BinTable{}, fits.PlusOptions{Logger: log})
		if err != nil {
			return nil, err
		}
		return &document{container: container, version: plus.Doc.Version(), tables: plus.Tables}, nil
	}

	opts, err := s.parserOptions(path)
	if err != nil {
		return nil, err
	}
	doc := &document{container: containerVOTable}

	if s.cfg.Storage.Policy == config.StorageTree {
		parsed, err := parser.Parse(ctx, br, opts)
		if err != nil {
			return nil, err
		}
		doc.version = parsed.Version()
		for _, t := range parsed.Tables() {
			doc.tables = append(doc.tables, t.AsTable())
			doc.errs = append(doc.errs, t.DataErr())
		}
		return doc, nil
	}

	parsed, err := parser.ParseStored(ctx, br, opts)
	if parsed == nil {
		return nil, err
	}
	doc.version = parsed.Version()
	for _, t := range parsed.Tables() {
		doc.tables = append(doc.tables, t.AsTable())
	}
	doc.errs = make([]error, len(doc.tables))
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			var te *parser.TableError
			if errors.As(e, &te) && te.Index < len(doc.errs) {
				doc.errs[te.Index] = te.Err
			}
		}
	}
	return doc, nil
}

// tableErr returns the error of table i, if it had one.
func (d *document) tableErr(i int) error {
	if i < len(d.errs) {
		return d.errs[i]
	}
	return nil
}

// failed joins the table errors.
func (d *document) failed() error {
	var errs []error
	for i, err := range d.errs {
		if err != nil {
			errs = append(errs, fmt.Errorf("table %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
