package status

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/coinflipper/coinflipper/internal/aggregator"
	"github.com/coinflipper/coinflipper/internal/coinpb"
)

const (
	tableColumns = 4
	tableRows    = aggregator.Buckets / tableColumns
	columnGap    = "        "
)

var printer = message.NewPrinter(language.English)

func commify(v uint64) string { return printer.Sprintf("%d", v) }

// WriteText renders st for humans: totals, connected clients by speed, the
// time to the next power-of-ten milestone and the run-length table.
func WriteText(w io.Writer, st *coinpb.Coinstatus) error {
	bw := bufio.NewWriter(w)

	hist, _ := coinpb.HistogramFromFlips(st.Flips)

	var total uint64
	if st.TotalFlips > 0 {
		total = uint64(st.TotalFlips)
	}

	var fps uint64
	if st.FlipsPerSecond > 0 {
		fps = uint64(st.FlipsPerSecond)
	}

	totalStr, fpsStr := commify(total), commify(fps)
	width := max(len(totalStr), len(fpsStr))

	fmt.Fprintf(bw, "Total coins flipped: %*s\n", width, totalStr)
	fmt.Fprintf(bw, "Coins per second:    %*s\n", width, fpsStr)
	fmt.Fprintln(bw)

	writeClients(bw, st.Stats)

	if total > 0 && st.FlipsPerSecond > 0 {
		if rest, ok := untilMilestone(total); ok {
			fmt.Fprintf(bw, "Time remaining to next milestone: %s\n", timeify(uint64(float64(rest)/st.FlipsPerSecond)))
			fmt.Fprintln(bw)
		}
	}

	writeTable(bw, &hist)

	return bw.Flush()
}

func writeClients(w io.Writer, stats []coinpb.Coinstats) {
	if len(stats) == 0 {
		return
	}

	sorted := make([]coinpb.Coinstats, len(stats))
	copy(sorted, stats)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].FlipsPerSecond > sorted[j].FlipsPerSecond })

	speeds := make([]string, len(sorted))
	width := 0

	for i, s := range sorted {
		speeds[i] = commify(uint64(max(s.FlipsPerSecond, 0)))
		width = max(width, len(speeds[i]))
	}

	fmt.Fprintln(w, "Connected clients:")

	for i, s := range sorted {
		fmt.Fprintf(w, "%08x: %*s cps\n", uint64(s.Hash), width, speeds[i])
	}

	fmt.Fprintln(w)
}

// untilMilestone returns the distance from total to the next power of ten
// strictly above it.
func untilMilestone(total uint64) (uint64, bool) {
	p := uint64(1)
	for p <= total {
		if p > math.MaxUint64/10 {
			return 0, false
		}

		p *= 10
	}

	return p - total, true
}

func timeify(seconds uint64) string {
	days := seconds / (24 * 3600)
	seconds %= 24 * 3600
	hours := seconds / 3600
	seconds %= 3600
	minutes := seconds / 60
	seconds %= 60

	var parts []string

	for _, p := range []struct {
		n    uint64
		unit string
	}{{days, "days"}, {hours, "hours"}, {minutes, "minutes"}, {seconds, "seconds"}} {
		if p.n != 0 {
			parts = append(parts, fmt.Sprintf("%d %s", p.n, p.unit))
		}
	}

	if len(parts) == 0 {
		return "0 seconds"
	}

	return strings.Join(parts, " ")
}

func writeTable(w io.Writer, h *aggregator.Histogram) {
	var (
		cells  [tableColumns][tableRows]string
		widths [tableColumns]int
	)

	for i, v := range h {
		col, row := i/tableRows, i%tableRows
		cells[col][row] = commify(v)
		widths[col] = max(widths[col], len(cells[col][row]))
	}

	for row := range tableRows {
		for col := range tableColumns {
			fmt.Fprintf(w, "%3d: %*s", col*tableRows+row+1, widths[col], cells[col][row])

			if col < tableColumns-1 {
				io.WriteString(w, columnGap)
			}
		}

		fmt.Fprintln(w)
	}
}
