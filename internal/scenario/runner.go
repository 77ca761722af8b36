package scenario

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dyluth/tuplespace/internal/timespec"
	"github.com/dyluth/tuplespace/pkg/space"
)

// Result is the outcome of one step.
type Result struct {
	Index    int           `json:"index"`
	Label    string        `json:"label"`
	Action   string        `json:"action"`
	Passed   bool          `json:"passed"`
	Failures []string      `json:"failures,omitempty"`
	Elapsed  time.Duration `json:"elapsed_ns"`
}

// Report collects the results of a run.
type Report struct {
	Scenario string   `json:"scenario"`
	Results  []Result `json:"results"`
}

// Failed returns the number of failed steps.
func (r *Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if !res.Passed {
			n++
		}
	}
	return n
}

// Passed reports whether every step passed.
func (r *Report) Passed() bool { return r.Failed() == 0 }

// Runner executes scenarios against a space.
type Runner struct {
	space        *space.Space
	defaultLease time.Duration
	leases       map[string]*space.Lease
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithDefaultLease sets the lease of writes that do not name one.
func WithDefaultLease(d time.Duration) RunnerOption {
	return func(r *Runner) { r.defaultLease = d }
}

// NewRunner creates a runner for s. When s runs on a *space.ManualClock, sleep
// steps advance that clock instead of waiting.
func NewRunner(s *space.Space, opts ...RunnerOption) *Runner {
	r := &Runner{space: s, defaultLease: space.LeaseForever}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// outcome is what a step produced, before expectations are applied.
type outcome struct {
	found  bool
	tuple  *space.Tuple
	tuples []*space.Tuple
	count  int
	ok     bool
	err    error
}

// Run executes every step in order. Failed expectations are recorded in the
// report and do not stop the run; an error is returned only when ctx ends.
func (r *Runner) Run(ctx context.Context, sc *Scenario) (*Report, error) {
	r.leases = make(map[string]*space.Lease)
	report := &Report{Scenario: sc.Name}

	for i := range sc.Steps {
		step := &sc.Steps[i]
		start := time.Now()

		out := r.execute(ctx, step)
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		failures := r.check(step, out)
		report.Results = append(report.Results, Result{
			Index:    i,
			Label:    step.Label(i),
			Action:   step.Action(),
			Passed:   len(failures) == 0,
			Failures: failures,
			Elapsed:  time.Since(start),
		})
	}
	return report, nil
}

func (r *Runner) execute(ctx context.Context, step *Step) outcome {
	switch {
	case step.Write != nil:
		return r.write(step.Write)
	case step.Read != nil:
		return r.match(ctx, step.Read, false)
	case step.Take != nil:
		return r.match(ctx, step.Take, true)
	case step.Collect != nil:
		tmpl, err := step.Collect.template()
		if err != nil {
			return outcome{err: err}
		}
		tuples, err := r.space.Collect(tmpl)
		return outcome{tuples: tuples, count: len(tuples), found: len(tuples) > 0, err: err}
	case step.Renew != nil:
		lease, ok := r.leases[step.Renew.Lease]
		if !ok {
			return outcome{err: fmt.Errorf("unknown lease '%s'", step.Renew.Lease)}
		}
		d, err := timespec.ParseLease(step.Renew.Duration)
		if err != nil {
			return outcome{err: err}
		}
		return outcome{ok: lease.Renew(d)}
	case step.Cancel != nil:
		lease, ok := r.leases[step.Cancel.Lease]
		if !ok {
			return outcome{err: fmt.Errorf("unknown lease '%s'", step.Cancel.Lease)}
		}
		return outcome{ok: lease.Cancel()}
	case step.Sleep != "":
		d, err := time.ParseDuration(step.Sleep)
		if err != nil {
			return outcome{err: err}
		}
		return outcome{ok: true, err: r.sleep(ctx, d)}
	case step.Harvest:
		res := r.space.Harvest()
		return outcome{ok: true, count: res.Tuples}
	}
	return outcome{err: fmt.Errorf("step has no action")}
}

func (r *Runner) write(w *WriteStep) outcome {
	lease := r.defaultLease
	if w.Lease != "" {
		d, err := timespec.ParseLease(w.Lease)
		if err != nil {
			return outcome{err: err}
		}
		lease = d
	}

	l, err := r.space.Write(w.Tag, lease, w.Properties)
	if err != nil {
		return outcome{err: err}
	}
	if w.As != "" {
		r.leases[w.As] = l
	}
	return outcome{ok: true}
}

func (r *Runner) match(ctx context.Context, m *MatchStep, isTake bool) outcome {
	tmpl, err := m.template()
	if err != nil {
		return outcome{err: err}
	}

	var t *space.Tuple
	switch {
	case m.Timeout == "" && isTake:
		t, err = r.space.TakeIfExists(tmpl)
	case m.Timeout == "":
		t, err = r.space.ReadIfExists(tmpl)
	default:
		timeout, perr := time.ParseDuration(m.Timeout)
		if perr != nil {
			return outcome{err: perr}
		}
		if isTake {
			t, err = r.space.Take(ctx, tmpl, timeout)
		} else {
			t, err = r.space.Read(ctx, tmpl, timeout)
		}
	}
	if err != nil {
		return outcome{err: err}
	}
	return outcome{found: t != nil, tuple: t}
}

func (m *MatchStep) template() (*space.Template, error) {
	tmpl, err := space.NewTemplate(m.Tag, m.Fields)
	if err != nil {
		return nil, err
	}
	if m.Agent != "" {
		tmpl = tmpl.WithAgent(m.Agent)
	}
	return tmpl, nil
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) error {
	if mc, ok := r.space.Clock().(*space.ManualClock); ok {
		mc.Advance(d)
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// check applies the step's expectations. An unexpected error always fails.
func (r *Runner) check(step *Step, out outcome) []string {
	var failures []string
	exp := step.Expect
	if exp == nil {
		exp = &Expect{}
	}

	if exp.Error != "" {
		switch {
		case out.err == nil:
			failures = append(failures, fmt.Sprintf("expected error containing %q, got none", exp.Error))
		case !strings.Contains(out.err.Error(), exp.Error):
			failures = append(failures, fmt.Sprintf("expected error containing %q, got %q", exp.Error, out.err))
		}
	} else if out.err != nil && !errors.Is(out.err, context.Canceled) {
		failures = append(failures, fmt.Sprintf("unexpected error: %v", out.err))
	}

	if exp.Found != nil && out.found != *exp.Found {
		failures = append(failures, fmt.Sprintf("expected found=%t, got %t", *exp.Found, out.found))
	}

	if exp.Properties != nil {
		failures = append(failures, checkProperties(out, exp.Properties)...)
	}

	if exp.Count != nil && out.count != *exp.Count {
		failures = append(failures, fmt.Sprintf("expected count=%d, got %d", *exp.Count, out.count))
	}

	if exp.OK != nil && out.ok != *exp.OK {
		failures = append(failures, fmt.Sprintf("expected ok=%t, got %t", *exp.OK, out.ok))
	}

	if exp.Size != nil {
		if size := r.space.Size(); size != *exp.Size {
			failures = append(failures, fmt.Sprintf("expected size=%d, got %d", *exp.Size, size))
		}
	}

	return failures
}

// checkProperties requires the matched tuple (or, for collect, every tuple) to
// carry the expected properties.
func checkProperties(out outcome, want map[string]any) []string {
	tuples := out.tuples
	if out.tuple != nil {
		tuples = []*space.Tuple{out.tuple}
	}
	if len(tuples) == 0 {
		return []string{"expected properties, but no tuple matched"}
	}

	var failures []string
	for _, t := range tuples {
		tmpl, err := space.NewTemplate(t.Tag, want)
		if err != nil {
			return []string{fmt.Sprintf("invalid expected properties: %v", err)}
		}
		if !space.Matches(t.Properties, tmpl, true) {
			failures = append(failures, fmt.Sprintf("tuple %s does not carry %v", t, want))
		}
	}
	return failures
}
