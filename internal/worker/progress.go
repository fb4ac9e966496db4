package worker

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// maxListedFailures caps the failed names printed in a summary.
const maxListedFailures = 5

// Failure names a task that did not render.
type Failure struct {
	Name  string
	Index int
	Err   error
}

// Report follows a batch as results arrive: it keeps a status line on a
// terminal and remembers which tasks failed and which render was slowest.
type Report struct {
	started  time.Time
	out      io.Writer
	live     bool
	total    int
	done     int
	busy     time.Duration
	slowest  Result
	failures []Failure
	mu       sync.Mutex
}

// NewReport creates a report for total tasks. With live set, every result
// redraws the status line on stderr.
func NewReport(total int, live bool) *Report {
	return &Report{
		started: time.Now(),
		out:     os.Stderr,
		live:    live,
		total:   total,
	}
}

// SetOutput redirects the status line.
func (r *Report) SetOutput(w io.Writer) {
	r.mu.Lock()
	r.out = w
	r.mu.Unlock()
}

// Observe records one finished task. Its signature matches ProgressFunc.
func (r *Report) Observe(res Result, completed, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.done = completed
	r.total = total
	r.busy += res.Elapsed
	if res.Err != nil {
		r.failures = append(r.failures, Failure{Name: label(res.Task), Index: res.Task.Index, Err: res.Err})
	} else if res.Elapsed > r.slowest.Elapsed {
		r.slowest = res
	}

	if r.live {
		fmt.Fprintf(r.out, "\r%s   ", r.lineLocked(res))
	}
}

// lineLocked renders the status line for the latest result.
func (r *Report) lineLocked(last Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%*d/%d rendered", len(fmt.Sprint(r.total)), r.done, r.total)
	if n := len(r.failures); n > 0 {
		fmt.Fprintf(&b, ", %d failed", n)
	}
	state := "ok"
	if last.Err != nil {
		state = "failed"
	}
	fmt.Fprintf(&b, " | %s %s", label(last.Task), state)
	if last.Err == nil {
		fmt.Fprintf(&b, " (%s, %s)", last.Task.Algorithm, last.Elapsed.Round(time.Millisecond))
	}
	return b.String()
}

// Finish ends the live status line.
func (r *Report) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.live && r.done > 0 {
		fmt.Fprintln(r.out)
	}
}

// Failures returns the failed tasks ordered by index.
func (r *Report) Failures() []Failure {
	r.mu.Lock()
	out := append([]Failure(nil), r.failures...)
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Summary describes the finished batch in one line, naming up to
// maxListedFailures failed tasks.
func (r *Report) Summary() string {
	failures := r.Failures()

	r.mu.Lock()
	defer r.mu.Unlock()

	wall := time.Since(r.started)
	var b strings.Builder
	fmt.Fprintf(&b, "Rendered %d of %d images in %s", r.done-len(failures), r.total, formatDuration(wall))
	if wall > 0 && r.busy > 0 {
		fmt.Fprintf(&b, ", %.1fx parallel", r.busy.Seconds()/wall.Seconds())
	}
	if r.slowest.Elapsed > 0 {
		fmt.Fprintf(&b, ", slowest %s (%s)", label(r.slowest.Task), r.slowest.Elapsed.Round(time.Millisecond))
	}
	if len(failures) > 0 {
		names := make([]string, 0, maxListedFailures)
		for i, f := range failures {
			if i == maxListedFailures {
				names = append(names, fmt.Sprintf("+%d more", len(failures)-maxListedFailures))
				break
			}
			names = append(names, f.Name)
		}
		fmt.Fprintf(&b, "; failed: %s", strings.Join(names, ", "))
	}
	return b.String()
}

// label names a task for humans, falling back to its position.
func label(t Task) string {
	if t.Name != "" {
		return t.Name
	}
	return fmt.Sprintf("#%d", t.Index+1)
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
