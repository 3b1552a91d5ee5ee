package prediction

import (
	"fmt"
	"io"
	"strings"
)

const maxBarWidth = 50

// PlotProbabilitiesTerminal writes a horizontal bar chart of the top n predictions, highest first.
func PlotProbabilitiesTerminal(w io.Writer, d DatePrediction, n int) {
	rows := d.Predictions
	if n > 0 && len(rows) > n {
		rows = rows[:n]
	}

	fmt.Fprintf(w, "\nRank 1 probability for %s (%d days ahead, %s confidence):\n", d.TargetDate, d.DaysAhead, d.Confidence)
	if len(rows) == 0 {
		fmt.Fprintln(w, "no predictions")
		return
	}
	fmt.Fprintln(w, "Netuid | Rank | Prob    | Bar Chart")
	fmt.Fprintln(w, "-------|------|---------|"+strings.Repeat("-", maxBarWidth))

	// bars are scaled against the leading probability so the top row is always full width
	top := rows[0].Probability
	for _, p := range rows {
		barWidth := 0
		if top > 0 {
			barWidth = int(p.Probability / top * maxBarWidth)
		}

		bar := strings.Repeat("█", barWidth)
		if barWidth == 0 {
			bar = "▏"
		}

		fmt.Fprintf(w, "%6s | %4d | %6.2f%% | %s %s\n", string(p.NetUID), p.CurrentRank, p.Probability*100, bar, p.SubnetName)
	}
}
