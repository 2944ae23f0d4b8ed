package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/eradb/pkg/batch"
)

var deleteFlush bool

var deleteCmd = &cobra.Command{
	Use:     "delete KEY [KEY...]",
	Aliases: []string{"del", "rm"},
	Short:   "Delete keys",
	Long: `Commit one batch deleting every KEY.

Deleting a key that does not exist is not an error.

Examples:
  eradb delete user:42
  eradb delete a b c --flush`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().BoolVar(&deleteFlush, "flush", false, "Flush the journal after committing")
}

func runDelete(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd, sessionOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	keys, err := s.decodeArgs(args)
	if err != nil {
		return err
	}

	b := batch.New()
	for _, k := range keys {
		b.Delete(k)
	}
	return s.commit(cmd, b, deleteFlush)
}

// commit commits b and optionally flushes.
func (s *session) commit(cmd *cobra.Command, b *batch.Batch, flush bool) error {
	ctx := cmd.Context()
	if err := s.db.Commit(ctx, b); err != nil {
		return err
	}
	if flush {
		if err := s.db.Flush(ctx); err != nil {
			return err
		}
	}

	p := s.db.Properties()
	s.printer.Printf("Committed %d operation(s) (sequence %d, %d pending era(s))\n",
		b.Len(), p.LastSequence, p.PendingEras)
	return nil
}
