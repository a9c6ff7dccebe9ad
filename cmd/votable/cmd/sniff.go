package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ssargent/votable/pkg/api"
	"github.com/ssargent/votable/pkg/fits"
)

// sniffCmd represents the sniff command
var sniffCmd = &cobra.Command{
	Use:   "sniff <file>...",
	Short: "Identify VOTable and fits-plus files",
	Long: `Look at the start of each file and report whether it is a VOTable document,
a FITS file, or a fits-plus or colfits-plus file. Gzipped files are looked into.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, path := range args {
			kind, err := sniffFile(path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", path, kind)
		}
		return nil
	},
}

func sniffFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	rc, err := maybeGunzip(f)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	head := make([]byte, fits.BlockSize)
	n, err := io.ReadFull(rc, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	return describeSniff(api.Sniff(head[:n])), nil
}

func describeSniff(r api.SniffResult) string {
	switch {
	case r.ColfitsPlus:
		return "colfits-plus"
	case r.FitsPlus:
		return "fits-plus"
	case r.FITS:
		return "FITS"
	case r.VOTable:
		return "VOTable"
	}
	return "unknown"
}

func init() {
	rootCmd.AddCommand(sniffCmd)
}
