package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/eradb/internal/cli/output"
)

var (
	scanLimit    int
	scanKeysOnly bool
)

type scanEntry struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value,omitempty" yaml:"value,omitempty"`
}

type scanResult []scanEntry

func (r scanResult) Headers() []string {
	return []string{"Key", "Value"}
}

func (r scanResult) Rows() [][]string {
	rows := make([][]string, len(r))
	for i, e := range r {
		rows[i] = []string{e.Key, e.Value}
	}
	return rows
}

var scanCmd = &cobra.Command{
	Use:   "scan [PREFIX]",
	Short: "List keys in order",
	Long: `List live keys in ascending byte order, optionally restricted to keys
starting with PREFIX.

Examples:
  eradb scan
  eradb scan user: --limit 10
  eradb scan --keys-only -o json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().IntVarP(&scanLimit, "limit", "n", 0, "Maximum number of keys to list (0 = all)")
	scanCmd.Flags().BoolVar(&scanKeysOnly, "keys-only", false, "Omit values")
}

func runScan(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd, sessionOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	prefixes, err := s.decodeArgs(args)
	if err != nil {
		return err
	}
	var prefix []byte
	if len(prefixes) == 1 {
		prefix = prefixes[0]
	}

	result := scanResult{}
	err = s.db.Scan(cmd.Context(), prefix, func(key, value []byte) bool {
		e := scanEntry{Key: s.encoding.Encode(key)}
		if !scanKeysOnly {
			e.Value = s.encoding.Encode(value)
		}
		result = append(result, e)
		return scanLimit <= 0 || len(result) < scanLimit
	})
	if err != nil {
		return err
	}

	if s.printer.Format() == output.FormatTable && scanKeysOnly {
		for _, e := range result {
			s.printer.Println(e.Key)
		}
		return nil
	}
	return s.printer.Print(result)
}
