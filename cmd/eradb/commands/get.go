package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/marmos91/eradb/internal/cli/output"
)

// ErrKeyNotFound is returned by get for a key with no live value.
var ErrKeyNotFound = errors.New("key not found")

type getResult struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

var getCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Print the value of a key",
	Long: `Print the value stored under KEY.

The lookup sees every committed batch, flushed or not. The command fails
when the key does not exist.

Examples:
  eradb get user:42
  eradb get --encoding hex 757365723a3432
  eradb get user:42 -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

func runGet(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd, sessionOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	keys, err := s.decodeArgs(args)
	if err != nil {
		return err
	}

	value, found, err := s.db.Get(cmd.Context(), keys[0])
	if err != nil {
		return err
	}
	if !found {
		return ErrKeyNotFound
	}

	if s.printer.Format() == output.FormatTable {
		s.printer.Println(s.encoding.Encode(value))
		return nil
	}
	return s.printer.Print(getResult{
		Key:   s.encoding.Encode(keys[0]),
		Value: s.encoding.Encode(value),
	})
}
