package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/go-chi/chi/v5"
	"github.com/segmentio/ksuid"
	"github.com/sirupsen/logrus"

	"github.com/ssargent/votable/pkg/arrowconv"
	"github.com/ssargent/votable/pkg/fits"
	"github.com/ssargent/votable/pkg/parser"
	"github.com/ssargent/votable/pkg/serialize"
	"github.com/ssargent/votable/pkg/storage"
	"github.com/ssargent/votable/pkg/tabular"
)

// Content types of converted documents
const (
	ContentTypeVOTable = "application/x-votable+xml"
	ContentTypeFITS    = "application/fits"
	ContentTypeArrow   = "application/vnd.apache.arrow.stream"
)

// Server holds the API server state
type Server struct {
	spool   TableSpool
	config  ServerConfig
	metrics *Metrics
	log     logrus.FieldLogger
}

// NewServer creates a new API server. spool may be nil, in which case uploads cannot be
// kept.
func NewServer(spool TableSpool, config ServerConfig, metrics *Metrics, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{
		spool:   spool,
		config:  config,
		metrics: metrics,
		log:     log,
	}
}

// upload is a parsed request body.
type upload struct {
	container string
	version   string
	tables    []tabular.Table
	errs      []error
}

// readBody reads the whole request body, answering the request itself on failure.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.maxUpload()))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			sendError(w, fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge)
			return nil, false
		}
		sendError(w, "Failed to read request body", http.StatusBadRequest)
		return nil, false
	}
	if len(body) == 0 {
		sendError(w, "Request body is empty", http.StatusBadRequest)
		return nil, false
	}
	s.metrics.RecordUpload(len(body))
	return body, true
}

func (s *Server) parserOptions(keep bool) parser.Options {
	opts := s.config.Parser
	if opts.Logger == nil {
		opts.Logger = s.log
	}
	if opts.FITS == nil {
		opts.FITS = fits.BinTable{}
	}
	opts.Collector = nil
	if keep && s.spool != nil {
		opts.Collector = s.spool.Collector
	}
	return opts
}

// load reads a VOTable document or a fits-plus file.
func (s *Server) load(ctx context.Context, body []byte, keep bool) (*upload, error) {
	if fits.IsFitsPlus(body) || fits.IsColfitsPlus(body) {
		container := "fits-plus"
		if fits.IsColfitsPlus(body) {
			container = "colfits-plus"
		}
		open := func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
		plus, err := fits.ReadPlus(ctx, open, fits.BinTable{}, fits.PlusOptions{Logger: s.log})
		if err != nil {
			s.metrics.RecordTable(container, false)
			return nil, err
		}
		u := &upload{container: container, version: plus.Doc.Version(), tables: plus.Tables}
		if keep {
			if err := s.keep(u); err != nil {
				return nil, err
			}
		}
		for range u.tables {
			s.metrics.RecordTable(container, true)
		}
		return u, nil
	}

	doc, err := parser.ParseStored(ctx, bytes.NewReader(body), s.parserOptions(keep))
	if doc == nil {
		s.metrics.RecordTable("votable", false)
		return nil, err
	}
	u := &upload{container: "votable", version: doc.Version()}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		u.errs = joined.Unwrap()
	} else if err != nil {
		u.errs = []error{err}
	}
	for _, t := range doc.Tables() {
		u.tables = append(u.tables, t.AsTable())
		s.metrics.RecordTable("votable", t.DataErr() == nil)
	}
	return u, nil
}

// keep copies tables that were not streamed into the spool.
func (s *Server) keep(u *upload) error {
	for i, t := range u.tables {
		c, err := s.spool.Collector(tabular.MetaOf(t))
		if err != nil {
			return err
		}
		if _, err := tabular.PipeTable(t, c); err != nil {
			return err
		}
		kept, err := c.Result()
		if err != nil {
			return err
		}
		u.tables[i] = kept
	}
	return nil
}

func summarize(index int, t tabular.Table) TableSummary {
	ts := TableSummary{Index: index, Name: t.Name(), Rows: t.RowCount()}
	if st, ok := t.(*storage.SpoolTable); ok {
		ts.ID = st.ID().String()
	}
	for _, c := range t.Columns() {
		ts.Columns = append(ts.Columns, ColumnSummary{
			Name:      c.Name,
			Datatype:  c.Datatype,
			Arraysize: c.Arraysize,
			Unit:      c.Unit,
			UCD:       c.UCD,
			Class:     c.Class.String(),
		})
	}
	for _, p := range t.Params() {
		ts.Params = append(ts.Params, ParamSummary{Name: p.Name, Value: p.Value, Unit: p.Unit})
	}
	return ts
}

// spoolTable finds the table whose data was spooled, looking through the wrapper the
// parser adds.
func spoolTable(t tabular.Table) tabular.Table {
	if ext, ok := t.(*tabular.ExternalTable); ok {
		if st, ok := ext.Data.(*storage.SpoolTable); ok {
			return st
		}
	}
	return t
}

// handleHealth godoc
//
//	@Summary		Health check
//	@Description	Get the health status of the API
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	map[string]string
//	@Router			/health [get]
//	@Security		ApiKeyAuth
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.metrics.RecordHealthCheck(true)
	sendSuccess(w, map[string]string{"status": "healthy"})
}

// handleTables godoc
//
//	@Summary		Describe an uploaded document
//	@Description	Read a VOTable or fits-plus upload and describe its tables
//	@Tags			tables
//	@Accept			xml,octet-stream
//	@Produce		json
//	@Param			keep	query		bool	false	"Keep the tables in the spool"
//	@Success		200		{object}	DocumentSummary
//	@Failure		400		{object}	APIResponse
//	@Security		ApiKeyAuth
//	@Router			/tables [post]
func (s *Server) handleTables(w http.ResponseWriter, r *http.Request) {
	keep, _ := strconv.ParseBool(r.URL.Query().Get("keep"))
	if keep && s.spool == nil {
		sendError(w, "Server has no spool", http.StatusBadRequest)
		return
	}
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}

	u, err := s.load(r.Context(), body, keep)
	if err != nil {
		sendError(w, fmt.Sprintf("Failed to read document: %v", err), http.StatusBadRequest)
		return
	}

	summary := DocumentSummary{Version: u.version, Container: u.container, Tables: []TableSummary{}}
	for i, t := range u.tables {
		if keep {
			t = spoolTable(t)
		}
		summary.Tables = append(summary.Tables, summarize(i, t))
	}
	for _, err := range u.errs {
		var te *parser.TableError
		if errors.As(err, &te) && te.Index < len(summary.Tables) {
			summary.Tables[te.Index].Error = te.Err.Error()
		}
	}
	if keep {
		s.refreshSpoolStats()
	}
	sendSuccess(w, summary)
}

// handleConvert godoc
//
//	@Summary		Convert a document
//	@Description	Re-serialize an upload as a VOTable with the given data format, or as fits-plus
//	@Tags			tables
//	@Accept			xml,octet-stream
//	@Produce		xml,octet-stream
//	@Param			format	query	string	false	"tabledata, binary, binary2, fits, fits-plus or colfits-plus"
//	@Param			version	query	string	false	"VOTable version of the output"
//	@Success		200
//	@Failure		400	{object}	APIResponse
//	@Security		ApiKeyAuth
//	@Router			/convert [post]
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(r.URL.Query().Get("format"))
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	u, err := s.load(r.Context(), body, false)
	if err != nil {
		sendError(w, fmt.Sprintf("Failed to read document: %v", err), http.StatusBadRequest)
		return
	}
	if len(u.errs) > 0 {
		sendError(w, fmt.Sprintf("Failed to read table data: %v", errors.Join(u.errs...)), http.StatusUnprocessableEntity)
		return
	}
	s.writeTables(w, r, format, u.tables)
}

// writeTables answers with tables in the requested format.
func (s *Server) writeTables(w http.ResponseWriter, r *http.Request, format string, tables []tabular.Table) {
	var rows int64
	for _, t := range tables {
		if n := t.RowCount(); n > 0 {
			rows += n
		}
	}

	var buf bytes.Buffer
	contentType := ContentTypeVOTable
	switch format {
	case "fits-plus", "colfits-plus":
		contentType = ContentTypeFITS
		opts := fits.PlusOptions{Colfits: format == "colfits-plus", Logger: s.log}
		if v := r.URL.Query().Get("version"); v != "" {
			version, err := serialize.ParseVersion(v)
			if err != nil {
				sendError(w, err.Error(), http.StatusBadRequest)
				return
			}
			opts.Version = version
		}
		if err := fits.WritePlus(&buf, tables, fits.BinTable{}, opts); err != nil {
			s.metrics.RecordConversion(format, 0, false)
			sendError(w, fmt.Sprintf("Failed to write %s: %v", format, err), http.StatusUnprocessableEntity)
			return
		}

	default:
		opts, err := s.writerOptions(r, format)
		if err != nil {
			sendError(w, err.Error(), http.StatusBadRequest)
			return
		}
		format = strings.ToLower(opts.Format.String())
		dw, err := serialize.NewDocumentWriter(opts)
		if err != nil {
			sendError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := dw.Write(&buf, tables...); err != nil {
			s.metrics.RecordConversion(format, 0, false)
			sendError(w, fmt.Sprintf("Failed to write VOTable: %v", err), http.StatusUnprocessableEntity)
			return
		}
	}

	s.metrics.RecordConversion(format, rows, true)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *Server) writerOptions(r *http.Request, format string) (serialize.Options, error) {
	opts := s.config.Writer
	opts.Mode = serialize.Inline
	opts.Streams = nil
	opts.FITS = fits.BinTable{}
	if opts.Logger == nil {
		opts.Logger = s.log
	}
	if format != "" {
		f, err := serialize.ParseDataFormat(format)
		if err != nil {
			return opts, err
		}
		opts.Format = f
	}
	if v := r.URL.Query().Get("version"); v != "" {
		version, err := serialize.ParseVersion(v)
		if err != nil {
			return opts, err
		}
		opts.Version = version
	}
	return opts, nil
}

// handleArrow godoc
//
//	@Summary		Export a table as Arrow
//	@Description	Stream one table of a VOTable upload as an Arrow IPC stream
//	@Tags			tables
//	@Accept			xml
//	@Produce		octet-stream
//	@Param			table	query	int	false	"Index of the table, counting from 0"
//	@Success		200
//	@Failure		400	{object}	APIResponse
//	@Failure		404	{object}	APIResponse
//	@Security		ApiKeyAuth
//	@Router			/arrow [post]
func (s *Server) handleArrow(w http.ResponseWriter, r *http.Request) {
	index := 0
	if v := r.URL.Query().Get("table"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			sendError(w, "Invalid table index", http.StatusBadRequest)
			return
		}
		index = n
	}

	rb := arrowconv.NewRecordBuilder(nil)
	defer rb.Release()
	body := http.MaxBytesReader(w, r.Body, s.config.maxUpload())
	err := parser.StreamTable(r.Context(), body, index, rb, s.parserOptions(false))
	if err != nil {
		status := http.StatusBadRequest
		if parser.ErrTableNotFound.Is(err) {
			status = http.StatusNotFound
		}
		s.metrics.RecordConversion("arrow", 0, false)
		sendError(w, fmt.Sprintf("Failed to read table %d: %v", index, err), status)
		return
	}
	rec, err := rb.Record()
	if err != nil {
		sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer rec.Release()

	var buf bytes.Buffer
	iw := ipc.NewWriter(&buf, ipc.WithSchema(rec.Schema()))
	if err := iw.Write(rec); err != nil {
		sendError(w, fmt.Sprintf("Failed to write arrow stream: %v", err), http.StatusInternalServerError)
		return
	}
	if err := iw.Close(); err != nil {
		sendError(w, fmt.Sprintf("Failed to write arrow stream: %v", err), http.StatusInternalServerError)
		return
	}

	s.metrics.RecordConversion("arrow", rec.NumRows(), true)
	w.Header().Set("Content-Type", ContentTypeArrow)
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// handleSniff godoc
//
//	@Summary		Identify an upload
//	@Description	Report whether an upload looks like a VOTable, FITS, fits-plus or colfits-plus file
//	@Tags			tables
//	@Accept			octet-stream
//	@Produce		json
//	@Success		200	{object}	SniffResult
//	@Security		ApiKeyAuth
//	@Router			/sniff [post]
func (s *Server) handleSniff(w http.ResponseWriter, r *http.Request) {
	head := make([]byte, fits.BlockSize)
	n, err := io.ReadFull(io.LimitReader(r.Body, fits.BlockSize), head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		sendError(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	sendSuccess(w, Sniff(head[:n]))
}

// Sniff identifies a file from its first FITS block.
func Sniff(head []byte) SniffResult {
	text := strings.TrimLeft(string(head), "\ufeff \t\r\n")
	return SniffResult{
		VOTable:     strings.HasPrefix(text, "<") && strings.Contains(text, "VOTABLE"),
		FITS:        bytes.HasPrefix(head, []byte("SIMPLE  =")),
		FitsPlus:    fits.IsFitsPlus(head),
		ColfitsPlus: fits.IsColfitsPlus(head),
	}
}

func (s *Server) spoolID(w http.ResponseWriter, r *http.Request) (ksuid.KSUID, bool) {
	if s.spool == nil {
		sendError(w, "Server has no spool", http.StatusNotFound)
		return ksuid.Nil, false
	}
	id, err := ksuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		sendError(w, "Invalid table id", http.StatusBadRequest)
		return ksuid.Nil, false
	}
	return id, true
}

func (s *Server) refreshSpoolStats() {
	if s.spool == nil {
		return
	}
	ids, err := s.spool.Tables()
	if err != nil {
		s.log.WithError(err).Warn("listing spooled tables failed")
		return
	}
	s.metrics.UpdateSpoolStats(len(ids))
}

// handleListSpool godoc
//
//	@Summary		List spooled tables
//	@Tags			spool
//	@Produce		json
//	@Success		200	{array}		TableSummary
//	@Failure		404	{object}	APIResponse
//	@Security		ApiKeyAuth
//	@Router			/spool [get]
func (s *Server) handleListSpool(w http.ResponseWriter, r *http.Request) {
	if s.spool == nil {
		sendError(w, "Server has no spool", http.StatusNotFound)
		return
	}
	ids, err := s.spool.Tables()
	if err != nil {
		sendError(w, fmt.Sprintf("Failed to list tables: %v", err), http.StatusInternalServerError)
		return
	}
	out := make([]TableSummary, 0, len(ids))
	for i, id := range ids {
		t, err := s.spool.Table(id)
		if err != nil {
			sendError(w, fmt.Sprintf("Failed to open table %s: %v", id, err), http.StatusInternalServerError)
			return
		}
		out = append(out, summarize(i, t))
	}
	s.metrics.UpdateSpoolStats(len(ids))
	sendSuccess(w, out)
}

// handleGetSpool godoc
//
//	@Summary		Download a spooled table
//	@Description	Write a spooled table as a VOTable
//	@Tags			spool
//	@Produce		xml
//	@Param			id		path	string	true	"Table id"
//	@Param			format	query	string	false	"tabledata, binary, binary2 or fits"
//	@Success		200
//	@Failure		404	{object}	APIResponse
//	@Security		ApiKeyAuth
//	@Router			/spool/{id} [get]
func (s *Server) handleGetSpool(w http.ResponseWriter, r *http.Request) {
	id, ok := s.spoolID(w, r)
	if !ok {
		return
	}
	t, err := s.spool.Table(id)
	if errors.Is(err, storage.ErrUnknownTable) {
		sendError(w, "Table not found", http.StatusNotFound)
		return
	}
	if err != nil {
		sendError(w, fmt.Sprintf("Failed to open table: %v", err), http.StatusInternalServerError)
		return
	}
	s.writeTables(w, r, strings.ToLower(r.URL.Query().Get("format")), []tabular.Table{t})
}

// handleDeleteSpool godoc
//
//	@Summary		Delete a spooled table
//	@Tags			spool
//	@Produce		json
//	@Param			id	path		string	true	"Table id"
//	@Success		200	{object}	map[string]string
//	@Failure		404	{object}	APIResponse
//	@Security		ApiKeyAuth
//	@Router			/spool/{id} [delete]
func (s *Server) handleDeleteSpool(w http.ResponseWriter, r *http.Request) {
	id, ok := s.spoolID(w, r)
	if !ok {
		return
	}
	if _, err := s.spool.Table(id); errors.Is(err, storage.ErrUnknownTable) {
		sendError(w, "Table not found", http.StatusNotFound)
		return
	}
	if err := s.spool.Delete(id); err != nil {
		sendError(w, fmt.Sprintf("Failed to delete table: %v", err), http.StatusInternalServerError)
		return
	}
	s.refreshSpoolStats()
	sendSuccess(w, map[string]string{"message": "Table deleted"})
}
