package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCheckAll(t *testing.T) {
	node := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer node.Close()

	proof := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer proof.Close()

	// индексатор недоступен
	indexer := httptest.NewServer(http.NotFoundHandler())
	indexerURL := indexer.URL
	indexer.Close()

	c := NewChecker(Endpoints{Node: node.URL, Indexer: indexerURL, ProofServer: proof.URL}, time.Second)

	report, err := c.CheckAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !report.Node.Healthy {
		t.Errorf("expected node healthy, got %+v", report.Node)
	}
	if report.Node.ResponseTimeMs == nil {
		t.Error("expected node response time")
	}
	if report.ProofServer.Healthy {
		t.Error("expected proof server unhealthy on 503")
	}
	if report.Indexer.Healthy || report.Indexer.Error == "" {
		t.Errorf("expected indexer failure with error, got %+v", report.Indexer)
	}
	if report.Indexer.ResponseTimeMs == nil {
		t.Error("expected response time even on failure")
	}
	if report.AllHealthy {
		t.Error("expected AllHealthy=false")
	}
}

func TestCheckUnknownTarget(t *testing.T) {
	c := NewChecker(Endpoints{}, time.Second)
	r := c.Check(context.Background(), Target("bogus"))
	if r.Healthy || r.Error == "" {
		t.Errorf("expected error result, got %+v", r)
	}
}

func TestReportGet(t *testing.T) {
	ms := int64(12)
	r := Report{Indexer: Result{Healthy: true, ResponseTimeMs: &ms}}
	if got := r.Get(TargetIndexer); !got.Healthy || *got.ResponseTimeMs != 12 {
		t.Errorf("unexpected indexer result: %+v", got)
	}
}

func TestCheckAllHungTargetKeepsOthers(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ok.Close()

	release := make(chan struct{})
	hung := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer hung.Close()
	defer close(release)

	c := NewChecker(Endpoints{Node: ok.URL, Indexer: hung.URL, ProofServer: ok.URL}, 300*time.Millisecond)

	// общий дедлайн вызывающего совпадает с таймаутом пробы
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	report, err := c.CheckAll(ctx)
	if err != nil {
		t.Fatalf("CheckAll must not fail as a whole: %v", err)
	}
	if !report.Node.Healthy || !report.ProofServer.Healthy {
		t.Errorf("answering targets must stay healthy: node=%+v proof=%+v", report.Node, report.ProofServer)
	}
	if report.Indexer.Healthy || report.Indexer.Error == "" || report.Indexer.ResponseTimeMs == nil {
		t.Errorf("hung indexer must fail with error and response time, got %+v", report.Indexer)
	}
}

func TestProbeTimeoutShorterThanFetch(t *testing.T) {
	for _, fetch := range []time.Duration{time.Second, 5 * time.Second} {
		if got := ProbeTimeout(fetch); got <= 0 || got >= fetch {
			t.Errorf("ProbeTimeout(%v) = %v, want in (0, %v)", fetch, got, fetch)
		}
	}
}
