package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ssargent/votable/pkg/codec"
	"github.com/ssargent/votable/pkg/fits"
	"github.com/ssargent/votable/pkg/parser"
	"github.com/ssargent/votable/pkg/tabular"
)

var errLimit = errors.New("row limit reached")

// rowPrinter writes rows as tab separated text.
type rowPrinter struct {
	w       *bufio.Writer
	header  bool
	limit   int64
	classes []codec.Class
	rows    int64
}

func newRowPrinter(w io.Writer, header bool, limit int64) *rowPrinter {
	return &rowPrinter{w: bufio.NewWriter(w), header: header, limit: limit}
}

func (p *rowPrinter) StartTable(meta tabular.TableMeta) error {
	p.classes = make([]codec.Class, len(meta.Columns))
	names := make([]string, len(meta.Columns))
	for i, c := range meta.Columns {
		p.classes[i] = c.Class
		names[i] = c.Name
	}
	if p.header {
		_, err := fmt.Fprintln(p.w, strings.Join(names, "\t"))
		return err
	}
	return nil
}

func (p *rowPrinter) Row(row []any) error {
	if p.limit > 0 && p.rows >= p.limit {
		return errLimit
	}
	cells := make([]string, len(row))
	for i, v := range row {
		c := codec.Class{}
		if i < len(p.classes) {
			c = p.classes[i]
		}
		cells[i] = formatCell(v, c)
	}
	p.rows++
	_, err := fmt.Fprintln(p.w, strings.Join(cells, "\t"))
	return err
}

func (p *rowPrinter) EndTable() error {
	return p.w.Flush()
}

// catCmd represents the cat command
var catCmd = &cobra.Command{
	Use:   "cat <file>",
	Short: "Print the rows of a table",
	Long: `Print the rows of one table as tab separated text. VOTable input is streamed,
so only the rows of the chosen table are decoded.

Examples:
  votable cat survey.vot
  votable cat --table 2 --limit 10 survey.vot`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, _ := cmd.Flags().GetInt("table")
		limit, _ := cmd.Flags().GetInt64("limit")
		noHeader, _ := cmd.Flags().GetBool("no-header")
		if index < 0 {
			return fmt.Errorf("--table must not be negative")
		}

		s, err := newSession(settings(cmd))
		if err != nil {
			return err
		}
		defer s.Close()

		p := newRowPrinter(cmd.OutOrStdout(), !noHeader, limit)
		err = s.streamTable(cmd, args[0], index, p)
		if errors.Is(err, errLimit) {
			return p.w.Flush()
		}
		return err
	},
}

// streamTable sends table index of the input at path to h.
func (s *session) streamTable(cmd *cobra.Command, path string, index int, h tabular.TableHandler) error {
	open, err := inputOpener(path, cmd.InOrStdin())
	if err != nil {
		return err
	}
	rc, err := open()
	if err != nil {
		return err
	}
	defer rc.Close()
	br := bufio.NewReaderSize(rc, fits.BlockSize)

	if sniffContainer(br) != containerVOTable {
		plus, err := fits.ReadPlus(cmd.Context(), open, fits.BinTable{}, fits.PlusOptions{Logger: log})
		if err != nil {
			return err
		}
		if index >= len(plus.Tables) {
			return parser.ErrTableNotFound.New(index)
		}
		_, err = tabular.PipeTable(plus.Tables[index], h)
		return err
	}

	opts, err := s.parserOptions(path)
	if err != nil {
		return err
	}
	return parser.StreamTable(cmd.Context(), br, index, h, opts)
}

func init() {
	rootCmd.AddCommand(catCmd)
	catCmd.Flags().IntP("table", "t", 0, "Index of the table, counting from 0")
	catCmd.Flags().Int64P("limit", "n", 0, "Stop after this many rows (0 prints all)")
	catCmd.Flags().Bool("no-header", false, "Do not print the column names")
}
