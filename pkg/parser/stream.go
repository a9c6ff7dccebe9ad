package parser

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/ssargent/votable/pkg/codec"
	"github.com/ssargent/votable/pkg/tabular"
	"github.com/ssargent/votable/pkg/votable"
)

// Resolver opens the resource named by a STREAM href. base is the SystemID of the
// document holding the reference.
type Resolver interface {
	Open(ctx context.Context, href, base string) (io.ReadCloser, error)
}

// FITSReader reads the BINTABLE in HDU extnum of a FITS stream. The table returned must
// not read from r after ReadTable returns.
type FITSReader interface {
	ReadTable(ctx context.Context, r io.Reader, extnum int) (tabular.Table, error)
}

// DefaultResolver opens local files and http(s) URLs.
type DefaultResolver struct {
	// Client is used for http and https. Defaults to http.DefaultClient.
	Client *http.Client
	// BaseDir resolves relative paths of documents that have no SystemID.
	BaseDir string
}

func (r *DefaultResolver) Open(ctx context.Context, href, base string) (io.ReadCloser, error) {
	loc, err := resolveHref(href, base, r.BaseDir)
	if err != nil {
		return nil, err
	}

	switch loc.Scheme {
	case "http", "https":
		return r.get(ctx, loc.String())
	case "file", "":
		return os.Open(filepath.FromSlash(loc.Path))
	}
	return nil, fmt.Errorf("unsupported scheme %q", loc.Scheme)
}

func (r *DefaultResolver) get(ctx context.Context, u string) (io.ReadCloser, error) {
	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: %s", u, resp.Status)
	}
	return resp.Body, nil
}

// resolveHref makes href absolute. URLs are resolved against a URL base, paths against
// the directory of a file base or against dir.
func resolveHref(href, base, dir string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return nil, err
	}
	if u.IsAbs() && len(u.Scheme) > 1 {
		return u, nil
	}
	if b, err := url.Parse(base); base != "" && err == nil && len(b.Scheme) > 1 {
		return b.ResolveReference(u), nil
	}

	if base != "" {
		dir = filepath.Dir(base)
	}
	path := filepath.FromSlash(href)
	if !filepath.IsAbs(path) && dir != "" {
		path = filepath.Join(dir, path)
	}
	return &url.URL{Path: filepath.ToSlash(path)}, nil
}

// openStream opens an href and undoes its STREAM encoding.
func openStream(ctx context.Context, res Resolver, href, base, encoding string) (io.ReadCloser, error) {
	rc, err := res.Open(ctx, href, base)
	if err != nil {
		return nil, ErrHref.Wrap(err, href)
	}
	dec, err := decodeStream(rc, encoding)
	if err != nil {
		rc.Close()
		return nil, ErrHref.Wrap(err, href)
	}
	return dec, nil
}

var gzipMagic = []byte{0x1f, 0x8b}

func decodeStream(rc io.ReadCloser, encoding string) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "none":
		return rc, nil
	case "base64":
		return &stackedReader{
			Reader:  base64.NewDecoder(base64.StdEncoding, &spaceFilter{r: rc}),
			closers: []io.Closer{rc},
		}, nil
	case "gzip":
		return gunzip(rc, rc)
	case "dynamic":
		br := bufio.NewReader(rc)
		if magic, _ := br.Peek(2); string(magic) == string(gzipMagic) {
			return gunzip(br, rc)
		}
		return &stackedReader{Reader: br, closers: []io.Closer{rc}}, nil
	}
	return nil, fmt.Errorf("unsupported STREAM encoding %q", encoding)
}

func gunzip(r io.Reader, c io.Closer) (io.ReadCloser, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, err
	}
	return &stackedReader{Reader: zr, closers: []io.Closer{zr, c}}, nil
}

// stackedReader reads from a decoding reader and closes it and what it wraps.
type stackedReader struct {
	io.Reader
	closers []io.Closer
}

func (s *stackedReader) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// spaceFilter drops the whitespace that wraps base64 text.
type spaceFilter struct {
	r io.Reader
}

func (f *spaceFilter) Read(b []byte) (int, error) {
	for {
		n, err := f.r.Read(b)
		j := 0
		for _, c := range b[:n] {
			switch c {
			case ' ', '\t', '\n', '\r':
			default:
				b[j] = c
				j++
			}
		}
		if j > 0 || err != nil {
			return j, err
		}
	}
}

func (p *parser) readHref(href, encoding string, consume func(io.Reader) error) error {
	p.log.WithField("href", href).Debug("reading external stream")
	rc, err := openStream(p.ctx, p.opts.Resolver, href, p.opts.SystemID, encoding)
	if err != nil {
		return err
	}
	defer rc.Close()
	return consume(rc)
}

// consumer returns the function that reads a table's rows from its decoded stream.
func (p *parser) consumer(format votable.Tag, decoders []codec.Decoder, h tabular.TableHandler, extnum int) func(io.Reader) error {
	if format == votable.TagBinary || format == votable.TagBinary2 {
		binary2 := format == votable.TagBinary2
		return func(r io.Reader) error {
			_, err := tabular.ReadBinaryRows(r, decoders, binary2, h)
			return err
		}
	}

	fits := p.opts.FITS
	ctx := p.ctx
	return func(r io.Reader) error {
		if fits == nil {
			return ErrNoFITSReader
		}
		t, err := fits.ReadTable(ctx, r, extnum)
		if err != nil {
			return fmt.Errorf("FITS extension %d: %w", extnum, err)
		}
		seq, err := t.Rows()
		if err != nil {
			return err
		}
		defer seq.Close()
		_, err = tabular.PipeRows(seq, h)
		return err
	}
}

// linker gives documents from Parse access to external and FITS data.
type linker struct {
	ctx  context.Context
	opts Options
}

func newLinker(ctx context.Context, opts Options) *linker {
	return &linker{ctx: context.WithoutCancel(ctx), opts: opts}
}

func (l *linker) OpenStream(doc *votable.Document, href, encoding string) (io.ReadCloser, error) {
	return openStream(l.ctx, l.opts.Resolver, href, doc.SystemID, encoding)
}

func (l *linker) ReadFITS(open tabular.Opener, extnum int) (tabular.Table, error) {
	if l.opts.FITS == nil {
		return nil, ErrNoFITSReader
	}
	rc, err := open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return l.opts.FITS.ReadTable(l.ctx, rc, extnum)
}
