package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/eradb/internal/cli/output"
	"github.com/marmos91/eradb/pkg/engine"
)

type recoverResult struct {
	VirtualCommit string `json:"virtual_commit" yaml:"virtual_commit"`
	FlushID       string `json:"flush_id,omitempty" yaml:"flush_id,omitempty"`
	AppliedKeys   int    `json:"applied_keys" yaml:"applied_keys"`
	CorruptEras   int    `json:"corrupt_eras" yaml:"corrupt_eras"`
	DroppedEras   int    `json:"dropped_eras" yaml:"dropped_eras"`
	RetainedEras  int    `json:"retained_eras" yaml:"retained_eras"`
	NextSequence  uint64 `json:"next_sequence" yaml:"next_sequence"`
	Version       uint32 `json:"version" yaml:"version"`
	DurationMs    int64  `json:"duration_ms" yaml:"duration_ms"`
}

func newRecoverResult(r *engine.RecoveryReport) recoverResult {
	return recoverResult{
		VirtualCommit: string(r.VirtualCommit),
		FlushID:       r.FlushID,
		AppliedKeys:   r.AppliedKeys,
		CorruptEras:   r.CorruptEras,
		DroppedEras:   r.DroppedEras,
		RetainedEras:  r.RetainedEras,
		NextSequence:  r.NextSequence,
		Version:       r.Version,
		DurationMs:    r.Duration.Milliseconds(),
	}
}

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Recover the database and report what was repaired",
	Long: `Open the database, which completes or discards an interrupted flush and
removes corrupt eras, then report what recovery did.

Recovery also runs implicitly before every other command; this command only
makes its outcome visible.`,
	Args: cobra.NoArgs,
	RunE: runRecover,
}

func runRecover(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd, sessionOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	report := s.db.LastRecovery()
	result := newRecoverResult(report)
	if s.printer.Format() != output.FormatTable {
		return s.printer.Print(result)
	}

	if !report.Changed() {
		s.printer.Println("Database is consistent, nothing to recover")
	}
	pairs := [][2]string{
		{"Virtual commit", result.VirtualCommit},
		{"Applied keys", fmt.Sprint(result.AppliedKeys)},
		{"Corrupt eras removed", fmt.Sprint(result.CorruptEras)},
		{"Flushed eras dropped", fmt.Sprint(result.DroppedEras)},
		{"Pending eras", fmt.Sprint(result.RetainedEras)},
		{"Next sequence", fmt.Sprint(result.NextSequence)},
		{"Version", fmt.Sprint(result.Version)},
	}
	if result.FlushID != "" {
		pairs = append(pairs, [2]string{"Flush ID", result.FlushID})
	}
	return output.PrintPairs(s.printer.Writer(), pairs)
}
