package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/eradb/internal/bytesize"
)

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Reclaim space held by overwritten and deleted keys",
	Long: `Rewrite the data file so that it only holds live keys.

Pending eras are not flushed first. The data file keeps its capacity; the
reclaimed space is reused by later flushes instead of growing the file.`,
	Args: cobra.NoArgs,
	RunE: runCompact,
}

func runCompact(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd, sessionOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	reclaimed, err := s.db.Compact(cmd.Context())
	if err != nil {
		return err
	}
	if reclaimed == 0 {
		s.printer.Println("Nothing to compact")
		return nil
	}
	p := s.db.Properties()
	s.printer.Printf("Reclaimed %s, %s of %s used\n",
		bytesize.ByteSize(reclaimed), bytesize.ByteSize(p.UsedMemory), bytesize.ByteSize(p.Capacity))
	return nil
}
