package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/eradb/pkg/batch"
)

var putFlush bool

var putCmd = &cobra.Command{
	Use:   "put KEY VALUE [KEY VALUE...]",
	Short: "Insert or overwrite keys",
	Long: `Commit one batch setting each KEY to its VALUE.

All pairs are written atomically as a single era of the journal. With
--flush the journal is merged into the data file right after the commit.

Examples:
  eradb put user:42 alice
  eradb put a 1 b 2 c 3 --flush
  eradb put --encoding base64 a2V5 dmFsdWU=`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 || len(args)%2 != 0 {
			return fmt.Errorf("expected KEY VALUE pairs, got %d argument(s)", len(args))
		}
		return nil
	},
	RunE: runPut,
}

func init() {
	putCmd.Flags().BoolVar(&putFlush, "flush", false, "Flush the journal after committing")
}

func runPut(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd, sessionOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	pairs, err := s.decodeArgs(args)
	if err != nil {
		return err
	}

	b := batch.New()
	for i := 0; i < len(pairs); i += 2 {
		b.Put(pairs[i], pairs[i+1])
	}
	return s.commit(cmd, b, putFlush)
}
