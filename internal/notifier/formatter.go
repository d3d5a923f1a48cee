package notifier

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"PortfolioPulse/internal/model"
)

// maxListedErrors bounds the failure list of a run summary.
const maxListedErrors = 10

// FormatRunReport formats an ingestion run summary into a Telegram message.
func FormatRunReport(r *model.RunReport) string {
	var b strings.Builder

	icon := "✅"
	switch {
	case r.Canceled:
		icon = "⏹"
	case r.Failed > 0:
		icon = "⚠️"
	}
	b.WriteString(fmt.Sprintf("%s <b>%s ingestion</b> | %s\n\n", icon, html.EscapeString(r.Job), r.Timestamp.Format("2006-01-02 15:04")))

	b.WriteString(fmt.Sprintf("Universe: %s tickers\n", humanize.Comma(int64(r.Universe))))
	b.WriteString(fmt.Sprintf("Attempted: %s | Succeeded: %s | Failed: %s\n",
		humanize.Comma(int64(r.Attempted)), humanize.Comma(int64(r.Succeeded)), humanize.Comma(int64(r.Failed))))
	b.WriteString(fmt.Sprintf("Rows written: %s\n", humanize.Comma(int64(r.Written))))
	if d := r.Duration(); d > 0 {
		b.WriteString(fmt.Sprintf("Duration: %s\n", d.Round(time.Second)))
	}
	if r.Canceled {
		b.WriteString(fmt.Sprintf("Canceled: %d tickers not attempted\n", r.Universe-r.Attempted))
	}

	if len(r.Errors) > 0 {
		b.WriteString("\n<b>Failures:</b>\n")
		for i, e := range r.Errors {
			if i == maxListedErrors {
				b.WriteString(fmt.Sprintf("  … and %d more\n", len(r.Errors)-maxListedErrors))
				break
			}
			b.WriteString(fmt.Sprintf("  %s: %s\n", html.EscapeString(e.Ticker), e.Kind))
		}
	}
	return b.String()
}

// FormatStatus summarizes the most recent run of each job. Missing runs
// are reported as such.
func FormatStatus(latest map[string]*model.RunReport, jobs []string) string {
	var b strings.Builder
	b.WriteString("📦 <b>Ingestion status</b>\n\n")
	for _, job := range jobs {
		r := latest[job]
		if r == nil {
			b.WriteString(fmt.Sprintf("%s: no runs yet\n", job))
			continue
		}
		b.WriteString(fmt.Sprintf("%s: %s, %d/%d succeeded, %s rows\n",
			job, humanize.Time(r.Timestamp), r.Succeeded, r.Attempted, humanize.Comma(int64(r.Written))))
	}
	return b.String()
}

// FormatRepeatFailures lists tickers that failed in at least two of the last
// runs of job, worst first. It returns "" when there are none.
func FormatRepeatFailures(job string, counts map[string]int, runs int) string {
	var tickers []string
	for t, c := range counts {
		if c >= 2 {
			tickers = append(tickers, t)
		}
	}
	if len(tickers) == 0 {
		return ""
	}
	sort.Slice(tickers, func(i, j int) bool {
		if counts[tickers[i]] != counts[tickers[j]] {
			return counts[tickers[i]] > counts[tickers[j]]
		}
		return tickers[i] < tickers[j]
	})
	var b strings.Builder
	b.WriteString(fmt.Sprintf("\n🔁 Repeat %s failures (last %d runs):\n", job, runs))
	for _, t := range tickers {
		b.WriteString(fmt.Sprintf("  %s ×%d\n", html.EscapeString(t), counts[t]))
	}
	return b.String()
}

// FormatSignal formats an analytics signal.
func FormatSignal(sig *model.Signal) string {
	var b strings.Builder
	ind := sig.Indicators
	b.WriteString(fmt.Sprintf("📊 <b>%s</b> | %s | %s\n\n", html.EscapeString(sig.Ticker), sig.Action, ind.AsOf.Format(model.DateLayout)))
	b.WriteString(fmt.Sprintf("Close: %.2f | SMA50: %.2f | SMA200: %.2f\n", ind.Close, ind.SMA50, ind.SMA200))
	b.WriteString(fmt.Sprintf("52w: %.2f – %.2f (%.0f%%)\n\n", ind.Low52w, ind.High52w, ind.Position52w*100))
	for _, f := range sig.Factors {
		b.WriteString(fmt.Sprintf("  %s (%s): %+.1f ×%.2f = %+.3f\n", f.Name, f.Commentary, f.RawScore, f.Weight, f.Weighted))
	}
	b.WriteString(fmt.Sprintf("  Score: %+.3f\n", sig.TotalScore))
	if sig.Warning != "" {
		b.WriteString(fmt.Sprintf("\n⚠️ %s\n", sig.Warning))
	}
	return b.String()
}
