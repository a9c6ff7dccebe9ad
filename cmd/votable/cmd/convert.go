package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ssargent/votable/pkg/config"
	"github.com/ssargent/votable/pkg/fits"
	"github.com/ssargent/votable/pkg/serialize"
	"github.com/ssargent/votable/pkg/tabular"
)

// convertCmd represents the convert command
var convertCmd = &cobra.Command{
	Use:   "convert <input> [output]",
	Short: "Rewrite a document in another serialization",
	Long: `Read a VOTable document or fits-plus file and write its tables out again. The
output is a VOTable using the TABLEDATA, BINARY, BINARY2 or FITS serialization, or a
fits-plus file. Without an output path the result goes to standard output.

With --mode href the table data of a VOTable is written to files next to the output,
named after it, and referenced from STREAM elements.

Examples:
  votable convert --format binary2 survey.vot survey-b2.vot
  votable convert --format fits-plus survey.vot survey.fits
  votable convert --format binary --mode href survey.vot out/survey.vot
  votable convert --version 1.2 survey.fits > survey.vot`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := *settings(cmd)
		if v, _ := cmd.Flags().GetString("format"); v != "" {
			cfg.Write.Format = v
		}
		if v, _ := cmd.Flags().GetString("version"); v != "" {
			cfg.Write.Version = v
		}
		if v, _ := cmd.Flags().GetString("mode"); v != "" {
			cfg.Write.Mode = v
		}
		description, _ := cmd.Flags().GetString("description")

		out := "-"
		if len(args) == 2 {
			out = args[1]
		}

		s, err := newSession(&cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		doc, err := s.read(cmd.Context(), args[0], cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}
		if err := doc.failed(); err != nil {
			return fmt.Errorf("failed to read table data of %s: %w", args[0], err)
		}

		n, err := writeOutput(cmd, &cfg, out, description, doc.tables)
		if err != nil {
			return err
		}
		log.WithFields(logrus.Fields{
			"input":  args[0],
			"output": out,
			"tables": len(doc.tables),
			"size":   humanize.Bytes(uint64(n)),
		}).Info("converted")
		return nil
	},
}

// countingWriter counts the bytes written through it.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(b []byte) (int, error) {
	n, err := c.w.Write(b)
	c.n += int64(n)
	return n, err
}

// writeOutput writes tables to out, or standard output for "-", and returns the number
// of bytes written.
func writeOutput(cmd *cobra.Command, cfg *config.Config, out, description string, tables []tabular.Table) (int64, error) {
	format := strings.ToLower(cfg.Write.Format)
	plus := format == "fits-plus" || format == "colfits-plus"

	var opts serialize.Options
	if !plus {
		if err := cfg.Validate(); err != nil {
			return 0, err
		}
		var err error
		opts, err = cfg.WriterOptions(log)
		if err != nil {
			return 0, err
		}
		opts.FITS = fits.BinTable{}
		opts.Description = description
		if opts.Mode == serialize.Href {
			if out == "-" {
				return 0, fmt.Errorf("href mode needs an output file")
			}
			prefix := strings.TrimSuffix(filepath.Base(out), filepath.Ext(out))
			opts.Streams = serialize.DirStreams(filepath.Dir(out), prefix, opts.Format)
		}
	}

	var dst io.Writer = cmd.OutOrStdout()
	if out != "-" {
		f, err := os.Create(out)
		if err != nil {
			return 0, err
		}
		defer f.Close()
		dst = f
	}
	bw := bufio.NewWriter(dst)
	cw := &countingWriter{w: bw}

	if plus {
		version, err := serialize.ParseVersion(cfg.Write.Version)
		if err != nil {
			return 0, err
		}
		err = fits.WritePlus(cw, tables, fits.BinTable{}, fits.PlusOptions{
			Colfits: format == "colfits-plus",
			Version: version,
			Logger:  log,
		})
		if err != nil {
			return 0, err
		}
	} else {
		dw, err := serialize.NewDocumentWriter(opts)
		if err != nil {
			return 0, err
		}
		if err := dw.Write(cw, tables...); err != nil {
			return 0, err
		}
	}
	if err := bw.Flush(); err != nil {
		return 0, err
	}
	return cw.n, nil
}

func init() {
	rootCmd.AddCommand(convertCmd)
	convertCmd.Flags().StringP("format", "f", "", "tabledata, binary, binary2, fits, fits-plus or colfits-plus")
	convertCmd.Flags().StringP("version", "V", "", "VOTable version to write")
	convertCmd.Flags().StringP("mode", "m", "", "inline, href or none")
	convertCmd.Flags().String("description", "", "DESCRIPTION of the written document")
}
