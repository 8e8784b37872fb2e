// Package health performs synthetic HTTP probes against the local backends.
package health

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pv/devnet-panel/internal/transport"
)

// Target names a probed backend.
type Target string

const (
	TargetNode        Target = "node"
	TargetIndexer     Target = "indexer"
	TargetProofServer Target = "proofServer"
)

// Targets lists every probed backend in display order.
var Targets = []Target{TargetNode, TargetIndexer, TargetProofServer}

// Result is the outcome of one probe.
type Result struct {
	Healthy bool `json:"healthy"`
	// ResponseTimeMs is set whenever a request was attempted.
	ResponseTimeMs *int64 `json:"responseTimeMs,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Report holds one probe result per target.
type Report struct {
	Node        Result `json:"node"`
	Indexer     Result `json:"indexer"`
	ProofServer Result `json:"proofServer"`
	AllHealthy  bool   `json:"allHealthy"`
}

// Get returns the result for target.
func (r Report) Get(target Target) Result {
	switch target {
	case TargetNode:
		return r.Node
	case TargetIndexer:
		return r.Indexer
	default:
		return r.ProofServer
	}
}

// Endpoints are the base URLs of the probed backends.
type Endpoints struct {
	Node        string
	Indexer     string
	ProofServer string
}

// Checker probes the configured endpoints.
type Checker struct {
	urls       map[Target]string
	httpClient *http.Client
	timeout    time.Duration
	now        func() time.Time
}

// ProbeTimeout returns the per-probe timeout for a caller that bounds the
// whole CheckAll by fetchTimeout. Probes end first, so a hung target cannot
// consume the caller's deadline.
func ProbeTimeout(fetchTimeout time.Duration) time.Duration {
	return fetchTimeout * 4 / 5
}

// NewChecker creates a checker. Node is probed at /health, the indexer at its
// base URL and the proof server at /version. Each probe is bounded by timeout.
func NewChecker(ep Endpoints, timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = transport.DefaultTimeout
	}
	return &Checker{
		urls: map[Target]string{
			TargetNode:        strings.TrimSuffix(ep.Node, "/") + "/health",
			TargetIndexer:     ep.Indexer,
			TargetProofServer: strings.TrimSuffix(ep.ProofServer, "/") + "/version",
		},
		httpClient: transport.NewClient(timeout),
		timeout:    timeout,
		now:        time.Now,
	}
}

// Check probes a single target. It never returns an error: failures are
// reported through Result.
func (c *Checker) Check(ctx context.Context, target Target) Result {
	url, ok := c.urls[target]
	if !ok {
		return Result{Error: fmt.Sprintf("unknown target %q", target)}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := c.now()
	elapsed := func() *int64 {
		ms := c.now().Sub(start).Milliseconds()
		return &ms
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{Error: err.Error()}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{ResponseTimeMs: elapsed(), Error: err.Error()}
	}
	resp.Body.Close()

	return Result{
		Healthy:        resp.StatusCode >= 200 && resp.StatusCode < 300,
		ResponseTimeMs: elapsed(),
	}
}

// CheckAll probes every target concurrently. The error is always nil: a
// failed or timed out target is reported in its own Result and does not
// affect the others.
func (c *Checker) CheckAll(ctx context.Context) (Report, error) {
	results := make([]Result, len(Targets))

	var wg sync.WaitGroup
	for i, target := range Targets {
		wg.Add(1)
		go func(i int, target Target) {
			defer wg.Done()
			results[i] = c.Check(ctx, target)
		}(i, target)
	}
	wg.Wait()

	report := Report{
		Node:        results[0],
		Indexer:     results[1],
		ProofServer: results[2],
	}
	report.AllHealthy = report.Node.Healthy && report.Indexer.Healthy && report.ProofServer.Healthy
	return report, nil
}
