package cmd

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/segmentio/ksuid"
	"github.com/spf13/cobra"

	"github.com/ssargent/votable/pkg/config"
	"github.com/ssargent/votable/pkg/storage"
	"github.com/ssargent/votable/pkg/tabular"
)

// spoolCmd represents the spool command
var spoolCmd = &cobra.Command{
	Use:   "spool",
	Short: "Manage tables kept in the disk spool",
	Long: `Add, list, print and delete tables kept in the spool directory named by
storage.spool_dir in the configuration.`,
}

var spoolAddCmd = &cobra.Command{
	Use:   "add <file>",
	Short: "Read a document into the spool",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSpool(cmd, func(s *session) error {
			doc, err := s.read(cmd.Context(), args[0], cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			for i, t := range doc.tables {
				if err := doc.tableErr(i); err != nil {
					cmd.PrintErrf("table %d (%s) not added: %v\n", i, t.Name(), err)
					continue
				}
				kept, err := spooled(s.spool, t)
				if err != nil {
					return err
				}
				cmd.Printf("%s\t%s\t%s rows\n", kept.ID(), kept.Name(), formatRows(kept.RowCount()))
			}
			return nil
		})
	},
}

var spoolListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List spooled tables",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSpool(cmd, func(s *session) error {
			return listSpool(cmd.OutOrStdout(), s.spool)
		})
	},
}

var spoolCatCmd = &cobra.Command{
	Use:   "cat <id>",
	Short: "Print the rows of a spooled table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt64("limit")
		return withSpool(cmd, func(s *session) error {
			t, err := spoolTable(s.spool, args[0])
			if err != nil {
				return err
			}
			p := newRowPrinter(cmd.OutOrStdout(), true, limit)
			if _, err := tabular.PipeTable(t, p); err != nil && !errors.Is(err, errLimit) {
				return err
			}
			return p.w.Flush()
		})
	},
}

var spoolRmCmd = &cobra.Command{
	Use:     "rm <id>...",
	Aliases: []string{"delete"},
	Short:   "Delete spooled tables",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSpool(cmd, func(s *session) error {
			for _, arg := range args {
				t, err := spoolTable(s.spool, arg)
				if err != nil {
					return err
				}
				if err := s.spool.Delete(t.ID()); err != nil {
					return err
				}
				cmd.Printf("Deleted %s\n", t.ID())
			}
			return nil
		})
	},
}

// withSpool runs fn with a session whose reads go to the spool, whatever the storage
// policy says.
func withSpool(cmd *cobra.Command, fn func(s *session) error) error {
	cfg := *settings(cmd)
	cfg.Storage.Policy = config.StorageDisk
	if cfg.Storage.SpoolDir == "" {
		return fmt.Errorf("storage.spool_dir is not set")
	}
	s, err := newSession(&cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

// spooled returns the spool table holding the rows of t, copying them in if the parser
// did not already.
func spooled(spool *storage.Spool, t tabular.Table) (*storage.SpoolTable, error) {
	if ext, ok := t.(*tabular.ExternalTable); ok {
		if st, ok := ext.Data.(*storage.SpoolTable); ok {
			return st, nil
		}
	}
	w, err := spool.Create(tabular.MetaOf(t))
	if err != nil {
		return nil, err
	}
	if _, err := tabular.PipeTable(t, w); err != nil {
		_ = w.Discard()
		return nil, err
	}
	res, err := w.Result()
	if err != nil {
		return nil, err
	}
	return res.(*storage.SpoolTable), nil
}

func spoolTable(spool *storage.Spool, arg string) (*storage.SpoolTable, error) {
	id, err := ksuid.Parse(arg)
	if err != nil {
		return nil, fmt.Errorf("invalid table id %q: %w", arg, err)
	}
	return spool.Table(id)
}

func listSpool(w io.Writer, spool *storage.Spool) error {
	ids, err := spool.Tables()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintln(w, "No tables spooled")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tROWS\tCOLUMNS\tADDED")
	for _, id := range ids {
		t, err := spool.Table(id)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", id, t.Name(), formatRows(t.RowCount()), t.ColumnCount(), humanize.Time(id.Time()))
	}
	return tw.Flush()
}

func init() {
	rootCmd.AddCommand(spoolCmd)
	spoolCmd.AddCommand(spoolAddCmd, spoolListCmd, spoolCatCmd, spoolRmCmd)
	spoolCatCmd.Flags().Int64P("limit", "n", 0, "Stop after this many rows (0 prints all)")
}
