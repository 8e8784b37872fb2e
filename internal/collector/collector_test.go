package collector

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pv/devnet-panel/internal/docker"
	"github.com/pv/devnet-panel/internal/health"
	"github.com/pv/devnet-panel/internal/poller"
	"github.com/pv/devnet-panel/internal/proofserver"
	"github.com/pv/devnet-panel/internal/substrate"
	"github.com/pv/devnet-panel/internal/wallet"
)

var errDown = errors.New("connection refused")

type fakeNode struct {
	mu      sync.Mutex
	chain   string
	height  int64
	peers   int
	err     error
	panics  bool
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func (f *fakeNode) state() (string, int64, int, error, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chain, f.height, f.peers, f.err, f.panics
}

func (f *fakeNode) set(chain string, height int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chain, f.height = chain, height
}

func (f *fakeNode) Chain(ctx context.Context) (string, error) {
	f.calls.Add(1)
	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.release
	}
	chain, _, _, err, panics := f.state()
	if panics {
		panic("rpc client bug")
	}
	return chain, err
}

func (f *fakeNode) Name(ctx context.Context) (string, error) {
	_, _, _, err, _ := f.state()
	return "Midnight Node", err
}

func (f *fakeNode) Version(ctx context.Context) (string, error) {
	_, _, _, err, _ := f.state()
	return "0.12.0", err
}

func (f *fakeNode) Health(ctx context.Context) (substrate.SystemHealth, error) {
	_, _, peers, err, _ := f.state()
	return substrate.SystemHealth{Peers: peers, IsSyncing: false}, err
}

func (f *fakeNode) BestBlock(ctx context.Context) (substrate.BlockHeader, error) {
	_, height, _, err, _ := f.state()
	return substrate.BlockHeader{Number: height}, err
}

type fakeProof struct {
	mu      sync.Mutex
	status  string
	pending int
	version string
	err     error
}

func (f *fakeProof) Version(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.version, f.err
}

func (f *fakeProof) Ready(ctx context.Context) (proofserver.Readiness, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return proofserver.Readiness{Status: f.status, JobsPending: f.pending, JobCapacity: 4}, f.err
}

func (f *fakeProof) ProofVersions(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return []string{"V1", "V2"}, f.err
}

type fakeRuntime struct {
	mu       sync.Mutex
	services []docker.Service
	logs     string
	err      error
}

func (f *fakeRuntime) ListServices(ctx context.Context) ([]docker.Service, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]docker.Service(nil), f.services...), nil
}

func (f *fakeRuntime) TailLogs(ctx context.Context, lines int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logs, f.err
}

type fakeHealth struct {
	mu    sync.Mutex
	times [3]*int64
	ok    bool
}

func ms(v int64) *int64 { return &v }

func (f *fakeHealth) setTimes(node, indexer, proof *int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.times = [3]*int64{node, indexer, proof}
}

func (f *fakeHealth) Check(ctx context.Context, target health.Target) health.Result {
	r, _ := f.CheckAll(ctx)
	return r.Get(target)
}

func (f *fakeHealth) CheckAll(ctx context.Context) (health.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return health.Report{
		Node:        health.Result{Healthy: f.ok, ResponseTimeMs: f.times[0]},
		Indexer:     health.Result{Healthy: f.ok, ResponseTimeMs: f.times[1]},
		ProofServer: health.Result{Healthy: f.ok, ResponseTimeMs: f.times[2]},
		AllHealthy:  f.ok,
	}, nil
}

type fixture struct {
	node    *fakeNode
	proof   *fakeProof
	runtime *fakeRuntime
	health  *fakeHealth
	c       *Collector
}

func newFixture() *fixture {
	f := &fixture{
		node:  &fakeNode{chain: "undeployed", height: 10, peers: 0},
		proof: &fakeProof{status: "ok", version: "4.0.0"},
		runtime: &fakeRuntime{
			services: []docker.Service{{Name: docker.ServiceNode, ContainerName: "midnight-node", Status: docker.StateRunning}},
			logs:     "midnight-node | Imported #10\nmidnight-node | WARN slow block",
		},
		health: &fakeHealth{ok: true, times: [3]*int64{ms(10), ms(20), ms(30)}},
	}
	f.c = New(Sources{
		Node:    f.node,
		Proof:   f.proof,
		Runtime: f.runtime,
		Health:  f.health,
	}, time.Second, nil)
	return f
}

func TestCollectAllSources(t *testing.T) {
	f := newFixture()
	snap := f.c.Collect(context.Background(), Options{})

	require.NotNil(t, snap.Node.Chain)
	assert.Equal(t, "undeployed", *snap.Node.Chain)
	require.NotNil(t, snap.Node.BlockHeight)
	assert.Equal(t, int64(10), *snap.Node.BlockHeight)
	assert.Nil(t, snap.Node.AvgBlockTime, "single observation has no rate")
	require.NotNil(t, snap.Node.Peers)

	assert.True(t, snap.Indexer.Ready)
	assert.Equal(t, int64(20), *snap.Indexer.ResponseTime)

	assert.True(t, snap.ProofServer.Ready)
	assert.Equal(t, "4.0.0", *snap.ProofServer.Version)
	assert.Equal(t, []string{"V1", "V2"}, snap.ProofServer.ProofVersions)
	assert.Equal(t, 4, *snap.ProofServer.JobCapacity)

	assert.Len(t, snap.Containers, 1)
	require.Len(t, snap.Logs, 2)
	assert.Equal(t, docker.LevelWarn, snap.Logs[1].Level)

	assert.Equal(t, ProbeHealthy, snap.Health.Node.Status)
	assert.Equal(t, []int64{10}, snap.Health.Node.History)
	assert.Equal(t, []int64{20}, snap.Health.Indexer.History)
	assert.Equal(t, []int64{30}, snap.Health.ProofServer.History)

	assert.Equal(t, DefaultNetworkStatus, snap.NetworkStatus)
	assert.Equal(t, wallet.StatusIdle, snap.WalletSync)
	assert.Nil(t, snap.Wallet.Address)
	assert.False(t, snap.Wallet.Connected)
	assert.NotNil(t, snap.Balances)
}

func TestSkippedCategoriesKeepCachedValues(t *testing.T) {
	f := newFixture()
	first := f.c.Collect(context.Background(), Options{})

	// источники изменились, но node и docker не опрашиваются
	f.node.set("changed", 99)
	f.runtime.mu.Lock()
	f.runtime.services = nil
	f.runtime.logs = ""
	f.runtime.mu.Unlock()
	f.proof.mu.Lock()
	f.proof.status = "busy"
	f.proof.mu.Unlock()
	f.health.setTimes(ms(11), ms(21), ms(31))

	second := f.c.Collect(context.Background(), Options{
		Policy: map[poller.Category]bool{
			poller.CategoryNode:   false,
			poller.CategoryDocker: false,
		},
	})

	assert.Equal(t, first.Node, second.Node)
	assert.Equal(t, first.Containers, second.Containers)
	assert.Equal(t, first.Logs, second.Logs)

	assert.False(t, second.ProofServer.Ready, "proof server was fetched again")
	assert.Equal(t, []int64{10, 11}, second.Health.Node.History)
	assert.Equal(t, []int64{30, 31}, second.Health.ProofServer.History)
}

func TestDisabledCategoryIsIdempotent(t *testing.T) {
	f := newFixture()
	f.c.Collect(context.Background(), Options{})

	policy := map[poller.Category]bool{poller.CategoryHealth: false}
	a := f.c.Collect(context.Background(), Options{Policy: policy})
	f.health.setTimes(ms(1), ms(2), ms(3))
	b := f.c.Collect(context.Background(), Options{Policy: policy})

	assert.Equal(t, a.Health, b.Health)
	assert.Equal(t, []int64{10}, b.Health.Node.History)
}

func TestNodeFailureDoesNotAffectOthers(t *testing.T) {
	for _, tc := range []struct {
		name   string
		err    error
		panics bool
	}{
		{"error", errDown, false},
		{"panic", nil, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			f.node.err = tc.err
			f.node.panics = tc.panics

			var snap *Snapshot
			require.NotPanics(t, func() {
				snap = f.c.Collect(context.Background(), Options{})
			})

			assert.Nil(t, snap.Node.Chain)
			if tc.err != nil {
				assert.Nil(t, snap.Node.BlockHeight)
				assert.Nil(t, snap.Node.Peers)
				assert.Nil(t, snap.Node.Syncing)
			}
			assert.Nil(t, snap.Node.AvgBlockTime)

			assert.True(t, snap.ProofServer.Ready)
			assert.Equal(t, "4.0.0", *snap.ProofServer.Version)
			assert.Len(t, snap.Containers, 1)
			assert.Len(t, snap.Logs, 2)
		})
	}
}

func TestFailedSourcesDegradeToDefaults(t *testing.T) {
	f := newFixture()
	f.proof.err = errDown
	f.runtime.err = errDown
	f.health.setTimes(nil, nil, nil)
	f.health.ok = false

	snap := f.c.Collect(context.Background(), Options{})

	assert.False(t, snap.ProofServer.Ready)
	assert.Nil(t, snap.ProofServer.Version)
	assert.Nil(t, snap.ProofServer.ProofVersions)
	assert.Nil(t, snap.ProofServer.JobsPending)
	assert.NotNil(t, snap.Containers)
	assert.Empty(t, snap.Containers)
	assert.NotNil(t, snap.Logs)
	assert.Empty(t, snap.Logs)

	assert.False(t, snap.Indexer.Ready)
	assert.Nil(t, snap.Indexer.ResponseTime)
	assert.Equal(t, ProbeUnhealthy, snap.Health.Indexer.Status)
	assert.Empty(t, snap.Health.Node.History, "no response time, no sample")
	assert.NotNil(t, snap.Health.Node.History)
}

func TestMissingSourcesUseDefaults(t *testing.T) {
	c := New(Sources{}, time.Second, nil)
	snap := c.Collect(context.Background(), Options{NetworkStatus: "stopped"})

	assert.Nil(t, snap.Node.BlockHeight)
	assert.False(t, snap.ProofServer.Ready)
	assert.Empty(t, snap.Containers)
	assert.Equal(t, ProbeUnhealthy, snap.Health.Node.Status)
	assert.Equal(t, "stopped", snap.NetworkStatus)
}

func TestSnapshotIsDefensiveCopy(t *testing.T) {
	f := newFixture()
	first := f.c.Collect(context.Background(), Options{})

	first.Health.Node.History[0] = 999
	first.Health.Node.History = append(first.Health.Node.History, 1, 2, 3)
	first.Containers[0].Status = docker.StateStopped
	*first.Node.Chain = "mutated"
	first.ProofServer.ProofVersions[0] = "mutated"

	policy := map[poller.Category]bool{poller.CategoryHealth: false}
	second := f.c.Collect(context.Background(), Options{Policy: policy})

	assert.Equal(t, []int64{10}, second.Health.Node.History)
	assert.Equal(t, docker.StateRunning, second.Containers[0].Status)
	assert.Equal(t, "undeployed", *second.Node.Chain)
	assert.Equal(t, []string{"V1", "V2"}, second.ProofServer.ProofVersions)
}

func TestPassThroughOptionsAreCopied(t *testing.T) {
	f := newFixture()
	addr := "mn_addr_undeployed1abc"
	balances := map[string]wallet.Amount{"total": wallet.NewAmount(42)}

	snap := f.c.Collect(context.Background(), Options{
		Wallet:        &WalletInfo{Address: &addr, Connected: true},
		NetworkStatus: "starting",
		WalletSync:    wallet.StatusSyncing,
		Balances:      balances,
	})

	require.NotNil(t, snap.Wallet.Address)
	assert.Equal(t, addr, *snap.Wallet.Address)
	assert.True(t, snap.Wallet.Connected)
	assert.Equal(t, "starting", snap.NetworkStatus)
	assert.Equal(t, wallet.StatusSyncing, snap.WalletSync)
	assert.Equal(t, "42", snap.Balances["total"].String())

	*snap.Wallet.Address = "changed"
	snap.Balances["other"] = wallet.NewAmount(1)
	assert.Equal(t, "mn_addr_undeployed1abc", addr)
	assert.Len(t, balances, 1)
}

func TestAvgBlockTimeAcrossCollects(t *testing.T) {
	f := newFixture()
	clock := time.UnixMilli(1000)
	f.c.now = func() time.Time { return clock }

	f.c.Collect(context.Background(), Options{})

	f.node.set("undeployed", 12)
	clock = time.UnixMilli(7000)
	snap := f.c.Collect(context.Background(), Options{})
	require.NotNil(t, snap.Node.AvgBlockTime)
	assert.Equal(t, 3000.0, *snap.Node.AvgBlockTime)
	assert.Equal(t, int64(7000), snap.Timestamp)

	// та же высота: среднего нет, база не сдвигается
	clock = time.UnixMilli(9000)
	snap = f.c.Collect(context.Background(), Options{})
	assert.Nil(t, snap.Node.AvgBlockTime)

	// пропуск node: значение из кэша
	snap = f.c.Collect(context.Background(), Options{Policy: map[poller.Category]bool{poller.CategoryNode: false}})
	assert.Nil(t, snap.Node.AvgBlockTime)
}

func TestSlowCategoryIsNotReentered(t *testing.T) {
	f := newFixture()
	f.node.entered = make(chan struct{})
	f.node.release = make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.c.Collect(context.Background(), Options{})
	}()
	<-f.node.entered

	// node ещё опрашивается: второй цикл её пропускает, остальное идёт
	f.health.setTimes(ms(50), ms(60), ms(70))
	snap := f.c.Collect(context.Background(), Options{})
	assert.Nil(t, snap.Node.Chain)
	assert.Equal(t, []int64{50}, snap.Health.Node.History)

	close(f.node.release)
	wg.Wait()
	assert.Equal(t, int32(1), f.node.calls.Load())

	f.node.entered = nil
	snap = f.c.Collect(context.Background(), Options{})
	assert.Equal(t, "undeployed", *snap.Node.Chain)
	assert.Equal(t, int32(2), f.node.calls.Load())
}

func TestProbeHook(t *testing.T) {
	f := newFixture()

	var got []health.Report
	f.c.SetProbeHook(func(at time.Time, report health.Report) {
		got = append(got, report)
	})

	f.c.Collect(context.Background(), Options{})
	f.c.Collect(context.Background(), Options{Policy: map[poller.Category]bool{poller.CategoryHealth: false}})

	require.Len(t, got, 1)
	assert.True(t, got[0].AllHealthy)
	assert.Equal(t, int64(10), *got[0].Node.ResponseTimeMs)
}

func TestHungProbeTargetKeepsOtherResults(t *testing.T) {
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

	fetchTimeout := 500 * time.Millisecond
	checker := health.NewChecker(health.Endpoints{
		Node:        ok.URL,
		Indexer:     hung.URL,
		ProofServer: ok.URL,
	}, health.ProbeTimeout(fetchTimeout))
	c := New(Sources{Health: checker}, fetchTimeout, nil)

	policy := make(map[poller.Category]bool, len(poller.Categories))
	for _, cat := range poller.Categories {
		policy[cat] = cat == poller.CategoryHealth
	}

	snap := c.Collect(context.Background(), Options{Policy: policy})

	assert.Equal(t, ProbeHealthy, snap.Health.Node.Status)
	assert.Equal(t, ProbeHealthy, snap.Health.ProofServer.Status)
	assert.Len(t, snap.Health.Node.History, 1)
	assert.Len(t, snap.Health.ProofServer.History, 1)

	assert.Equal(t, ProbeUnhealthy, snap.Health.Indexer.Status)
	assert.Len(t, snap.Health.Indexer.History, 1, "failed probe still records its response time")
}
