package commands

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/eradb/internal/logger"
	"github.com/marmos91/eradb/pkg/batch"
	"github.com/marmos91/eradb/pkg/flusher"
)

var (
	importFile      string
	importBatchSize int
	importNoFlush   bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load keys from tab separated lines",
	Long: `Read lines of the form KEY<TAB>VALUE and commit them in batches. A line
holding only KEY deletes it. Keys and values are decoded with --encoding.

A background flusher merges the journal while the import runs, on the
interval and high-water mark of the flusher configuration, and flushes once
more when the input ends.

Examples:
  eradb import --file dump.tsv
  cat dump.tsv | eradb import --batch-size 500`,
	Args: cobra.NoArgs,
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVarP(&importFile, "file", "f", "-", "Input file (- for stdin)")
	importCmd.Flags().IntVar(&importBatchSize, "batch-size", 1000, "Operations per commit")
	importCmd.Flags().BoolVar(&importNoFlush, "no-flush", false, "Leave the imported eras in the journal")
}

type importStats struct {
	Lines   int
	Commits int
	Puts    int
	Deletes int
}

func runImport(cmd *cobra.Command, args []string) error {
	if importBatchSize < 1 {
		return fmt.Errorf("--batch-size must be at least 1")
	}

	in := cmd.InOrStdin()
	if importFile != "-" {
		f, err := os.Open(importFile)
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		defer func() { _ = f.Close() }()
		in = f
	}

	s, err := openSession(cmd, sessionOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	fcfg := s.cfg.Flusher
	if importNoFlush {
		fcfg.Interval = 0
		fcfg.HighWater = 0
		fcfg.FlushOnStop = false
	}
	f := flusher.New(s.db, fcfg)
	f.Start(cmd.Context())

	start := time.Now()
	stats, err := s.importLines(cmd, in, f)
	f.Stop(time.Minute)
	if err != nil {
		return err
	}

	fs := f.Stats()
	logger.Info("Import completed",
		"lines", stats.Lines,
		"commits", stats.Commits,
		"flushes", fs.Flushes,
		"duration_ms", logger.Duration(start))
	if fs.LastError != nil {
		return fmt.Errorf("background flush failed: %w", fs.LastError)
	}

	s.printer.Printf("Imported %d put(s) and %d delete(s) in %d commit(s), %d flush(es)\n",
		stats.Puts, stats.Deletes, stats.Commits, fs.Flushes)
	return nil
}

func (s *session) importLines(cmd *cobra.Command, in io.Reader, f *flusher.Flusher) (importStats, error) {
	var stats importStats
	ctx := cmd.Context()

	commit := func(b *batch.Batch) error {
		if b.Len() == 0 {
			return nil
		}
		if err := s.db.Commit(ctx, b); err != nil {
			return fmt.Errorf("commit after line %d: %w", stats.Lines, err)
		}
		stats.Commits++
		f.Notify()
		return nil
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), batch.MaxValueSize+batch.MaxKeySize+1)

	b := batch.New()
	for scanner.Scan() {
		stats.Lines++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		rawKey, rawValue, isPut := bytes.Cut(line, []byte{'\t'})
		key, err := s.encoding.Decode(string(rawKey))
		if err != nil {
			return stats, fmt.Errorf("line %d: %w", stats.Lines, err)
		}
		if isPut {
			value, err := s.encoding.Decode(string(rawValue))
			if err != nil {
				return stats, fmt.Errorf("line %d: %w", stats.Lines, err)
			}
			b.Put(key, value)
			stats.Puts++
		} else {
			b.Delete(key)
			stats.Deletes++
		}

		if b.Len() >= importBatchSize {
			if err := commit(b); err != nil {
				return stats, err
			}
			b = batch.New()
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("failed to read input: %w", err)
	}
	return stats, commit(b)
}
