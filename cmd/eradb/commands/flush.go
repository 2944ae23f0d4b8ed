package commands

import (
	"github.com/spf13/cobra"
)

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Merge the journal into the data file",
	Long: `Merge every pending era into the data file.

The merge is staged as a virtual commit first, so an interrupted flush is
completed or discarded the next time the database is opened.`,
	Args: cobra.NoArgs,
	RunE: runFlush,
}

func runFlush(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd, sessionOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	before := s.db.Properties()
	if err := s.db.Flush(cmd.Context()); err != nil {
		return err
	}
	after := s.db.Properties()

	if before.PendingEras == 0 {
		s.printer.Println("Nothing to flush")
		return nil
	}
	s.printer.Printf("Flushed %d era(s), version %d (%d live keys)\n",
		before.PendingEras, after.Version, after.LiveKeys)
	return nil
}
