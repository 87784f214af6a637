// Package mirror measures download mirrors concurrently and picks the
// best candidate without overriding an explicit user choice.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"gamedeck/internal/backend"
)

// DefaultTimeout bounds a probe batch when no timeout is configured.
const DefaultTimeout = 3 * time.Second

// ErrUnknownMirror is returned when selecting a URL outside the candidate set.
var ErrUnknownMirror = errors.New("mirror is not a candidate")

// Result is the outcome of probing a single URL.
type Result struct {
	URL       string `json:"url"`
	Label     string `json:"label"`
	LatencyMs *int64 `json:"latency_ms"`
	Reachable bool   `json:"reachable"`
}

// Options configures a Selector.
type Options struct {
	Timeout        time.Duration
	PriorityDomain string
	Logger         log.FieldLogger
}

// Selector holds the latest probe results and the current selection.
type Selector struct {
	tester         backend.MirrorTester
	timeout        time.Duration
	priorityDomain string
	logger         log.FieldLogger

	mu           sync.RWMutex
	candidates   []string
	results      []Result
	selected     string
	userSelected bool
}

// NewSelector creates a selector probing through tester.
func NewSelector(tester backend.MirrorTester, opts Options) *Selector {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	return &Selector{
		tester:         tester,
		timeout:        opts.Timeout,
		priorityDomain: strings.ToLower(strings.TrimSpace(opts.PriorityDomain)),
		logger:         opts.Logger,
	}
}

// Test probes every URL concurrently under one shared timeout and replaces
// the previous results wholesale. A probe that runs past the timeout or
// fails is recorded as unreachable with no latency; it never aborts the
// batch. The returned results follow the input order.
func (s *Selector) Test(ctx context.Context, urls []string) []Result {
	urls = dedupe(urls)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	results := make([]Result, len(urls))
	var g errgroup.Group
	for i, u := range urls {
		results[i] = Result{URL: u, Label: HostLabel(u)}
		g.Go(func() error {
			results[i] = s.probe(ctx, u)
			return nil
		})
	}
	_ = g.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.candidates = OrderCandidates(urls, s.priorityDomain)
	s.results = results

	if s.userSelected && contains(urls, s.selected) {
		s.logger.WithField("url", s.selected).Debug("keeping user selected mirror")
		return cloneResults(results)
	}

	s.userSelected = false
	s.selected = ""
	if best, ok := Pick(results); ok {
		s.selected = best
		s.logger.WithField("url", best).Info("mirror selected automatically")
	} else {
		s.logger.Warn("no mirror could be measured; manual selection required")
	}
	return cloneResults(results)
}

func (s *Selector) probe(ctx context.Context, u string) Result {
	res := Result{URL: u, Label: HostLabel(u)}

	type outcome struct {
		results []backend.LatencyResult
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		r, err := s.tester.TestMirrorLatencies(ctx, []string{u}, s.timeout)
		done <- outcome{results: r, err: err}
	}()

	select {
	case <-ctx.Done():
		s.logger.WithField("url", u).Debug("mirror probe timed out")
		return res
	case out := <-done:
		if out.err != nil {
			s.logger.WithField("url", u).Debugf("mirror probe failed: %v", out.err)
			return res
		}
		for _, r := range out.results {
			if r.URL != u {
				continue
			}
			res.Reachable = r.OK
			if r.LatencyMs != nil {
				ms := *r.LatencyMs
				res.LatencyMs = &ms
			}
			break
		}
		return res
	}
}

// Select records an explicit user choice. Later retests keep it while the
// URL remains a candidate.
func (s *Selector) Select(u string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !contains(s.candidates, u) {
		return fmt.Errorf("%w: %s", ErrUnknownMirror, u)
	}
	s.selected = u
	s.userSelected = true
	return nil
}

// ClearSelection drops the current selection, user made or automatic.
func (s *Selector) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = ""
	s.userSelected = false
}

// Selected returns the current selection and whether the user made it.
func (s *Selector) Selected() (selected string, byUser bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected, s.userSelected
}

// Results returns the latest results in probe order.
func (s *Selector) Results() []Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneResults(s.results)
}

// Candidates returns the candidate list with the priority domain first.
func (s *Selector) Candidates() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.candidates...)
}

// Ranked returns results ordered for display: reachable first, then by
// latency, with candidate order (priority domain first) breaking ties.
func (s *Selector) Ranked() []Result {
	s.mu.RLock()
	defer s.mu.RUnlock()

	position := make(map[string]int, len(s.candidates))
	for i, u := range s.candidates {
		position[u] = i
	}
	ranked := cloneResults(s.results)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Reachable != b.Reachable {
			return a.Reachable
		}
		if (a.LatencyMs == nil) != (b.LatencyMs == nil) {
			return a.LatencyMs != nil
		}
		if a.LatencyMs != nil && *a.LatencyMs != *b.LatencyMs {
			return *a.LatencyMs < *b.LatencyMs
		}
		return position[a.URL] < position[b.URL]
	})
	return ranked
}

// Pick applies the selection policy: the lowest latency among reachable
// results, otherwise the lowest latency among any measured result. Ties
// go to the earlier result. It reports false when nothing was measured.
func Pick(results []Result) (string, bool) {
	if u, ok := lowestLatency(results, true); ok {
		return u, true
	}
	return lowestLatency(results, false)
}

func lowestLatency(results []Result, reachableOnly bool) (string, bool) {
	var (
		best  string
		bestL int64
		found bool
	)
	for _, r := range results {
		if reachableOnly && !r.Reachable {
			continue
		}
		if r.LatencyMs == nil {
			continue
		}
		if !found || *r.LatencyMs < bestL {
			best, bestL, found = r.URL, *r.LatencyMs, true
		}
	}
	return best, found
}

// OrderCandidates moves URLs on the priority domain (or its subdomains) to
// the front, keeping relative order otherwise.
func OrderCandidates(urls []string, priorityDomain string) []string {
	ordered := append([]string(nil), urls...)
	if priorityDomain == "" {
		return ordered
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return onDomain(ordered[i], priorityDomain) && !onDomain(ordered[j], priorityDomain)
	})
	return ordered
}

func onDomain(u, domain string) bool {
	host := HostLabel(u)
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// HostLabel returns the host name of u for display, or u itself when it
// does not parse as a URL.
func HostLabel(u string) string {
	parsed, err := url.Parse(strings.TrimSpace(u))
	if err != nil || parsed.Hostname() == "" {
		return u
	}
	return strings.ToLower(parsed.Hostname())
}

func dedupe(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

func contains(list []string, v string) bool {
	if v == "" {
		return false
	}
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func cloneResults(in []Result) []Result {
	out := make([]Result, len(in))
	for i, r := range in {
		out[i] = r
		if r.LatencyMs != nil {
			ms := *r.LatencyMs
			out[i].LatencyMs = &ms
		}
	}
	return out
}
