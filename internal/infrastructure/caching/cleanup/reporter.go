package cleanup

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/caching/stores"
)

const (
	cyan        = "\033[38;2;86;182;194m"  // One Dark Cyan: #56B6C2
	cyanBright  = "\033[38;2;97;228;240m"  // Brighter Cyan: #61E4F0
	dimCyan     = "\033[38;2;47;91;102m"   // Dim Cyan: #2F5B66
	grey        = "\033[38;2;110;118;129m" // Brighter Grey: #6E7681
	dimGrey     = "\033[38;2;75;82;99m"    // Darker Grey: #4B5263
	success     = "\033[38;2;62;130;144m"  // Dim Cyan: #3E8290
	warning     = "\033[38;2;229;192;123m" // One Dark Yellow: #E5C07B
	errorRed    = "\033[38;2;224;108;117m" // One Dark Red: #E06C75
	white       = "\033[38;2;171;178;191m" // One Dark Foreground: #ABB2BF
	whiteBright = "\033[38;2;220;225;230m" // Brighter White
	purple      = "\033[38;2;198;120;221m" // One Dark Purple: #C678DD
	dimPurple   = "\033[38;2;142;87;158m"  // Dim Purple: #8E579E
	reset       = "\033[0m"
	bold        = "\033[1m"
)

// Reporter prints the colored console summaries of the cleanup sweep.
type Reporter struct {
	out io.Writer
}

func NewReporter(out io.Writer) *Reporter {
	if out == nil {
		out = io.Discard
	}
	return &Reporter{out: out}
}

func (r *Reporter) LogStage(message string, args ...any) {
	formattedMsg := fmt.Sprintf(message, args...)
	fmt.Fprintf(r.out, "%s%s✦ %s%s%s\n", success, bold, grey, formattedMsg, reset)
}

func (r *Reporter) LogSuccess(message string, args ...any) {
	formattedMsg := fmt.Sprintf(message, args...)
	fmt.Fprintf(r.out, "%s%s✦ %s%s%s\n", success, bold, white, formattedMsg, reset)
}

func (r *Reporter) LogWarning(message string, args ...any) {
	formattedMsg := fmt.Sprintf(message, args...)
	fmt.Fprintf(r.out, "%s%s⚠ WARNING: %s%s%s\n", bold, warning, grey, formattedMsg, reset)
}

func (r *Reporter) LogInfo(message string, args ...any) {
	formattedMsg := fmt.Sprintf(message, args...)
	fmt.Fprintf(r.out, "%s▶ %s%s%s\n", dimGrey, grey, formattedMsg, reset)
}

// WriteStoreReport prints occupancy, effectiveness and removal counters.
func (r *Reporter) WriteStoreReport(stats stores.Stats) {
	fmt.Fprint(r.out, GenerateStoreReport(stats))
}

// GenerateStoreReport renders stats as the three-line console block.
func GenerateStoreReport(stats stores.Stats) string {
	var report strings.Builder
	timestamp := time.Now().UTC().Format("2006-01-02 15:04:05 MST")

	report.WriteString(fmt.Sprintf("%s%s▓ %s | Cache store%s\n", bold, dimCyan, timestamp, reset))

	// Occupancy line, red once the store is full
	fill := 0.0
	if stats.MaxEntries > 0 {
		fill = float64(stats.EntryCount) / float64(stats.MaxEntries)
	}
	occupancyColor := cyanBright
	if stats.EntryCount >= stats.MaxEntries {
		occupancyColor = errorRed
	}
	report.WriteString(fmt.Sprintf("%s✦ occupancy:%s %s%d/%d%s (%.0f%%) %stags:%s%d %smemory:%s%s%s\n",
		cyanBright, reset,
		occupancyColor, stats.EntryCount, stats.MaxEntries, reset, fill*100,
		dimCyan, cyan, stats.TagCount,
		dimCyan, cyan, formatBytes(stats.MemoryEstimate), reset))

	// Effectiveness line
	hitColor := white
	if stats.Hits+stats.Misses > 0 && stats.HitRate < 0.5 {
		hitColor = warning
	}
	report.WriteString(fmt.Sprintf("%s✦ lookups:%s %shits:%s%d %smisses:%s%d %shit-rate:%s%.1f%%%s\n",
		purple, reset,
		dimPurple, white, stats.Hits,
		dimPurple, white, stats.Misses,
		dimPurple, hitColor, stats.HitRate*100, reset))

	formatRemoval := func(label string, count int64) string {
		if count > 0 {
			return fmt.Sprintf(" %s%s:%s%d", dimPurple, label, white, count)
		}
		return fmt.Sprintf(" %s%s:%s--", dimGrey, label, dimGrey)
	}

	var removals strings.Builder
	removals.WriteString(fmt.Sprintf("%s✦ removals:%s", purple, reset))
	removals.WriteString(formatRemoval("evicted", stats.Evictions))
	removals.WriteString(formatRemoval("expired", stats.Expirations))
	removals.WriteString(formatRemoval("invalidated", stats.Invalidations))
	removals.WriteString(formatRemoval("deleted", stats.Deletes))
	removals.WriteString(formatRemoval("cleared", stats.Clears))
	report.WriteString(removals.String() + reset + "\n")

	return report.String()
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1fMB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1fKB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%dB", n)
	}
}
