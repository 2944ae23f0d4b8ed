package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/eradb/internal/cli/prompt"
	"github.com/marmos91/eradb/pkg/engine"
)

var rollbackYes bool

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Undo the most recent unflushed commit",
	Long: `Remove the newest era from the journal, undoing the last commit.

Only commits that have not been flushed can be rolled back.`,
	Args: cobra.NoArgs,
	RunE: runRollback,
}

func init() {
	rollbackCmd.Flags().BoolVarP(&rollbackYes, "yes", "y", false, "Skip confirmation")
}

func runRollback(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd, sessionOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	p := s.db.Properties()
	if p.PendingEras == 0 {
		return engine.ErrNothingToRollback
	}

	ok, err := prompt.ConfirmWithForce(fmt.Sprintf("Roll back commit %d", p.LastSequence), rollbackYes)
	if err != nil {
		if errors.Is(err, prompt.ErrAborted) {
			return nil
		}
		return err
	}
	if !ok {
		s.printer.Println("Aborted")
		return nil
	}

	if err := s.db.Rollback(cmd.Context()); err != nil {
		return err
	}
	s.printer.Printf("Rolled back commit %d (%d pending era(s) left)\n",
		p.LastSequence, s.db.Properties().PendingEras)
	return nil
}
