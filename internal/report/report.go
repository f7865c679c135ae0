// Package report renders simulation results as plain or colored text.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/tgsachse/prisoners/internal/model"
	"github.com/tgsachse/prisoners/internal/stats"
)

const defaultMarker = "X"

type Options struct {
	// Bars prints one line per generation with a bar of Marker characters.
	Bars   bool
	Color  bool
	Marker string
}

// RunHeader describes a finished run for the one-line summary.
type RunHeader struct {
	RunID        string
	Players      int
	Generations  int
	Interactions int
	Seed         int64
	Dominant     string
	Elapsed      time.Duration
}

var palette = []color.Attribute{
	color.FgCyan,
	color.FgMagenta,
	color.FgYellow,
	color.FgGreen,
	color.FgBlue,
	color.FgRed,
	color.FgWhite,
}

// Render prints the per-generation count of every strategy.
func Render(w io.Writer, series []model.FrequencySeries, opts Options) error {
	marker := opts.Marker
	if marker == "" {
		marker = defaultMarker
	}
	if _, err := fmt.Fprintln(w, "Results:"); err != nil {
		return err
	}
	for i, item := range series {
		name := paint(opts, i, item.Strategy)
		if !opts.Bars {
			if _, err := fmt.Fprintf(w, "%s: %s\n", name, formatCounts(item.Counts)); err != nil {
				return err
			}
			continue
		}
		if _, err := fmt.Fprintf(w, "%s:\n", name); err != nil {
			return err
		}
		for gen, count := range item.Counts {
			bar := paint(opts, i, strings.Repeat(marker, count))
			if _, err := fmt.Fprintf(w, "gen %3d, count %-3d | %s\n", gen+1, count, bar); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}

// RenderSweep prints one aligned row per strategy of a replicate sweep.
func RenderSweep(w io.Writer, summary stats.SweepSummary, opts Options) error {
	if _, err := fmt.Fprintf(w, "Replicates: %s\n", humanize.Comma(int64(summary.Replicates))); err != nil {
		return err
	}
	names := make([]string, 0, len(summary.Strategies))
	width := len("strategy")
	for i, row := range summary.Strategies {
		name := paint(opts, i, row.Strategy)
		names = append(names, name)
		if n := VisibleWidth(name); n > width {
			width = n
		}
	}
	header := fmt.Sprintf("%s  %8s  %8s  %5s  %5s  %8s  %9s", pad("strategy", width), "mean", "std", "min", "max", "survived", "dominated")
	if _, err := fmt.Fprintln(w, header); err != nil {
		return err
	}
	for i, row := range summary.Strategies {
		line := fmt.Sprintf("%s  %8.2f  %8.2f  %5d  %5d  %8d  %9d",
			pad(names[i], width), row.FinalMean, row.FinalStd, row.FinalMin, row.FinalMax, row.Survived, row.Dominated)
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// Summary prints a one-line description of a finished run.
func Summary(w io.Writer, header RunHeader) error {
	games := int64(header.Players) * int64(header.Interactions) * int64(header.Generations)
	_, err := fmt.Fprintf(w, "run %s: %s players, %s generations, %s games, seed %d, dominant %s (%s)\n",
		header.RunID,
		humanize.Comma(int64(header.Players)),
		humanize.Comma(int64(header.Generations)),
		humanize.Comma(games),
		header.Seed,
		header.Dominant,
		header.Elapsed.Round(time.Millisecond),
	)
	return err
}

// Runs lists indexed runs with their age relative to now.
func Runs(w io.Writer, entries []stats.RunIndexEntry, now time.Time) error {
	for _, entry := range entries {
		age := entry.CreatedAtUTC
		if created, err := time.Parse(time.RFC3339Nano, entry.CreatedAtUTC); err == nil {
			age = humanize.RelTime(created, now, "ago", "from now")
		}
		if _, err := fmt.Fprintf(w, "run_id=%s players=%d generations=%d seed=%d dominant=%s created=%q\n",
			entry.RunID, entry.Players, entry.Generations, entry.Seed, entry.Dominant, age); err != nil {
			return err
		}
	}
	return nil
}

// VisibleWidth is the printed width of s once color codes are removed.
func VisibleWidth(s string) int {
	return len(stripansi.Strip(s))
}

func pad(s string, width int) string {
	if n := VisibleWidth(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

func paint(opts Options, idx int, s string) string {
	if !opts.Color || s == "" {
		return s
	}
	c := color.New(palette[idx%len(palette)])
	c.EnableColor()
	return c.Sprint(s)
}

func formatCounts(counts []int) string {
	parts := make([]string, 0, len(counts))
	for _, count := range counts {
		parts = append(parts, strconv.Itoa(count))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
