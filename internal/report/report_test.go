package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/acarl005/stripansi"

	"github.com/tgsachse/prisoners/internal/model"
	"github.com/tgsachse/prisoners/internal/stats"
)

var sampleSeries = []model.FrequencySeries{
	{Strategy: "ALWAYS_DEFECT", Counts: []int{6, 7}},
	{Strategy: "ALWAYS_COOPERATE", Counts: []int{4, 3}},
}

func TestRenderListsCounts(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, sampleSeries, Options{}); err != nil {
		t.Fatalf("render: %v", err)
	}
	want := "Results:\nALWAYS_DEFECT: [6, 7]\nALWAYS_COOPERATE: [4, 3]\n"
	if buf.String() != want {
		t.Fatalf("unexpected output:\n%s", buf.String())
	}
}

func TestRenderBars(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, sampleSeries[:1], Options{Bars: true}); err != nil {
		t.Fatalf("render: %v", err)
	}
	want := "Results:\n" +
		"ALWAYS_DEFECT:\n" +
		"gen   1, count 6   | XXXXXX\n" +
		"gen   2, count 7   | XXXXXXX\n" +
		"\n"
	if buf.String() != want {
		t.Fatalf("unexpected output:\n%q", buf.String())
	}
}

func TestRenderColorOnlyAddsEscapes(t *testing.T) {
	var plain, colored bytes.Buffer
	if err := Render(&plain, sampleSeries, Options{Bars: true, Marker: "#"}); err != nil {
		t.Fatalf("render plain: %v", err)
	}
	if err := Render(&colored, sampleSeries, Options{Bars: true, Marker: "#", Color: true}); err != nil {
		t.Fatalf("render colored: %v", err)
	}
	if colored.String() == plain.String() {
		t.Fatal("expected color escapes in colored output")
	}
	if got := stripansi.Strip(colored.String()); got != plain.String() {
		t.Fatalf("colored output differs once stripped:\n%s", got)
	}
	if !strings.Contains(plain.String(), "| ######") {
		t.Fatalf("expected custom marker, got:\n%s", plain.String())
	}
}

func TestRenderSweepAlignsColoredNames(t *testing.T) {
	summary := stats.SummarizeReplicates(
		[]string{"GRUDGER", "ALWAYS_COOPERATE"},
		[]map[string]int{{"GRUDGER": 6, "ALWAYS_COOPERATE": 4}, {"GRUDGER": 8, "ALWAYS_COOPERATE": 2}},
	)
	var buf bytes.Buffer
	if err := RenderSweep(&buf, summary, Options{Color: true}); err != nil {
		t.Fatalf("render sweep: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(stripansi.Strip(buf.String())), "\n")
	if len(lines) != 4 || lines[0] != "Replicates: 2" {
		t.Fatalf("unexpected sweep output:\n%s", buf.String())
	}
	width := len(lines[1])
	for _, line := range lines[2:] {
		if len(line) != width {
			t.Fatalf("misaligned row %q (want width %d)", line, width)
		}
	}
	if !strings.HasPrefix(lines[2], "GRUDGER           ") || !strings.Contains(lines[2], "7.00") {
		t.Fatalf("unexpected grudger row: %q", lines[2])
	}
}

func TestSummaryHumanizesTotals(t *testing.T) {
	var buf bytes.Buffer
	err := Summary(&buf, RunHeader{
		RunID:        "run-1",
		Players:      50,
		Generations:  50,
		Interactions: 5000,
		Seed:         3,
		Dominant:     "TIT_FOR_TAT",
		Elapsed:      1500 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	want := "run run-1: 50 players, 50 generations, 12,500,000 games, seed 3, dominant TIT_FOR_TAT (1.5s)\n"
	if buf.String() != want {
		t.Fatalf("unexpected summary: %q", buf.String())
	}
}

func TestRunsShowsRelativeAge(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	err := Runs(&buf, []stats.RunIndexEntry{{
		RunID:        "run-1",
		Players:      10,
		Generations:  5,
		Seed:         1,
		Dominant:     "GRUDGER",
		CreatedAtUTC: now.Add(-2 * time.Hour).Format(time.RFC3339Nano),
	}}, now)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if !strings.Contains(buf.String(), `created="2 hours ago"`) {
		t.Fatalf("unexpected runs output: %q", buf.String())
	}
}
