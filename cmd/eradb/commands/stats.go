package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/eradb/internal/bytesize"
	"github.com/marmos91/eradb/internal/cli/output"
	"github.com/marmos91/eradb/pkg/metrics"
)

var statsMetrics bool

type statsResult struct {
	Path         string      `json:"path" yaml:"path"`
	Version      uint32      `json:"version" yaml:"version"`
	UsedBytes    uint64      `json:"used_bytes" yaml:"used_bytes"`
	Capacity     uint64      `json:"capacity_bytes" yaml:"capacity_bytes"`
	PendingEras  int         `json:"pending_eras" yaml:"pending_eras"`
	MaxEras      int         `json:"max_eras" yaml:"max_eras"`
	LastSequence uint64      `json:"last_sequence" yaml:"last_sequence"`
	LiveKeys     uint64      `json:"live_keys" yaml:"live_keys"`
	LiveBytes    uint64      `json:"live_bytes" yaml:"live_bytes"`
	FlushState   string      `json:"flush_state" yaml:"flush_state"`
	Cache        *cacheStats `json:"cache,omitempty" yaml:"cache,omitempty"`
}

type cacheStats struct {
	Hits   uint64 `json:"hits" yaml:"hits"`
	Misses uint64 `json:"misses" yaml:"misses"`
	Keys   uint64 `json:"keys" yaml:"keys"`
	Cost   uint64 `json:"cost_bytes" yaml:"cost_bytes"`
}

func (r statsResult) pairs() [][2]string {
	pairs := [][2]string{
		{"Path", r.Path},
		{"Version", fmt.Sprint(r.Version)},
		{"Used", fmt.Sprintf("%s of %s (%.1f%%)", bytesize.ByteSize(r.UsedBytes), bytesize.ByteSize(r.Capacity), percent(r.UsedBytes, r.Capacity))},
		{"Pending eras", fmt.Sprintf("%d of %d", r.PendingEras, r.MaxEras)},
		{"Last sequence", fmt.Sprint(r.LastSequence)},
		{"Live keys", fmt.Sprint(r.LiveKeys)},
		{"Live bytes", bytesize.ByteSize(r.LiveBytes).String()},
		{"Flush state", r.FlushState},
	}
	if r.Cache != nil {
		pairs = append(pairs,
			[2]string{"Cache hits", fmt.Sprint(r.Cache.Hits)},
			[2]string{"Cache misses", fmt.Sprint(r.Cache.Misses)},
			[2]string{"Cache size", bytesize.ByteSize(r.Cache.Cost).String()},
		)
	}
	return pairs
}

func percent(n, of uint64) float64 {
	if of == 0 {
		return 0
	}
	return float64(n) * 100 / float64(of)
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database properties",
	Long: `Show the state of the database: data file version and usage, pending
eras, live keys and the flush state.

With --metrics the Prometheus metrics gathered while opening the database
are printed in the text exposition format instead.`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().BoolVar(&statsMetrics, "metrics", false, "Print Prometheus metrics")
}

func runStats(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd, sessionOptions{forceMetrics: statsMetrics})
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	if statsMetrics {
		return metrics.WriteText(s.printer.Writer())
	}

	p := s.db.Properties()
	result := statsResult{
		Path:         s.db.Dir(),
		Version:      p.Version,
		UsedBytes:    p.UsedMemory,
		Capacity:     p.Capacity,
		PendingEras:  p.PendingEras,
		MaxEras:      s.db.Options().MaxJournalEras,
		LastSequence: p.LastSequence,
		LiveKeys:     p.LiveKeys,
		LiveBytes:    p.LiveBytes,
		FlushState:   p.FlushState,
	}
	if cs, ok := s.db.CacheStats(); ok {
		result.Cache = &cacheStats{Hits: cs.Hits, Misses: cs.Misses, Keys: cs.Keys, Cost: cs.Cost}
	}

	if s.printer.Format() == output.FormatTable {
		return output.PrintPairs(s.printer.Writer(), result.pairs())
	}
	return s.printer.Print(result)
}
