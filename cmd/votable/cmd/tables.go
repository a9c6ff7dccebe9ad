package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ssargent/votable/pkg/api"
	"github.com/ssargent/votable/pkg/codec"
)

// tablesCmd represents the tables command
var tablesCmd = &cobra.Command{
	Use:   "tables <file>",
	Short: "List the tables of a document",
	Long: `List the tables of a VOTable document or fits-plus file with their row counts
and columns. Use - to read standard input.

Examples:
  votable tables survey.vot
  votable tables --columns survey.fits
  votable tables --json survey.vot`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		showColumns, _ := cmd.Flags().GetBool("columns")

		s, err := newSession(settings(cmd))
		if err != nil {
			return err
		}
		defer s.Close()

		doc, err := s.read(cmd.Context(), args[0], cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}

		summary := summarizeDocument(doc)
		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		}
		return printSummary(cmd.OutOrStdout(), args[0], doc, summary, showColumns)
	},
}

func summarizeDocument(doc *document) api.DocumentSummary {
	out := api.DocumentSummary{Version: doc.version, Container: doc.container, Tables: []api.TableSummary{}}
	for i, t := range doc.tables {
		ts := api.TableSummary{Index: i, Name: t.Name(), Rows: t.RowCount()}
		for _, c := range t.Columns() {
			ts.Columns = append(ts.Columns, api.ColumnSummary{
				Name:      c.Name,
				Datatype:  c.Datatype,
				Arraysize: c.Arraysize,
				Unit:      c.Unit,
				UCD:       c.UCD,
				Class:     c.Class.String(),
			})
		}
		for _, p := range t.Params() {
			ts.Params = append(ts.Params, api.ParamSummary{Name: p.Name, Value: p.Value, Unit: p.Unit})
		}
		if err := doc.tableErr(i); err != nil {
			ts.Error = err.Error()
		}
		out.Tables = append(out.Tables, ts)
	}
	return out
}

func formatRows(n int64) string {
	if n < 0 {
		return "?"
	}
	return humanize.Comma(n)
}

func printSummary(w io.Writer, path string, doc *document, summary api.DocumentSummary, showColumns bool) error {
	fmt.Fprintf(w, "%s: %s", path, summary.Container)
	if summary.Version != "" {
		fmt.Fprintf(w, ", VOTable %s", summary.Version)
	}
	if path != "-" {
		if fi, err := os.Stat(path); err == nil {
			fmt.Fprintf(w, ", %s", humanize.Bytes(uint64(fi.Size())))
		}
	}
	fmt.Fprintln(w)

	if len(summary.Tables) == 0 {
		fmt.Fprintln(w, "No tables found")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tNAME\tROWS\tCOLUMNS\tERROR")
	for _, t := range summary.Tables {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", t.Index, t.Name, formatRows(t.Rows), len(t.Columns), t.Error)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if !showColumns {
		return nil
	}
	for i, t := range summary.Tables {
		fmt.Fprintf(w, "\nTable %d (%s)\n", t.Index, t.Name)
		for _, p := range doc.tables[i].Params() {
			fmt.Fprintf(w, "  PARAM %s = %s %s\n", p.Name, formatCell(p.Value, p.Class), p.Unit)
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  NAME\tDATATYPE\tARRAYSIZE\tUNIT\tUCD")
		for _, c := range t.Columns {
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\n", c.Name, c.Datatype, c.Arraysize, c.Unit, c.UCD)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// formatCell renders a cell of class c for terminal output.
func formatCell(v any, c codec.Class) string {
	if v == nil {
		return ""
	}
	if c == codec.ClassRune {
		if r, ok := v.(rune); ok {
			return string(r)
		}
	}
	switch x := v.(type) {
	case string:
		return x
	case []string:
		return strings.Join(x, ",")
	}
	return strings.Trim(fmt.Sprint(v), "[]")
}

func init() {
	rootCmd.AddCommand(tablesCmd)
	tablesCmd.Flags().Bool("json", false, "Print the summary as JSON")
	tablesCmd.Flags().Bool("columns", false, "List the columns and params of each table")
}
