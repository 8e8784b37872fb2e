// Package collector собирает состояние всех бэкендов в единый Snapshot.
//
// Каждая категория опрашивается независимо; ошибка или паника источника
// заменяется значением по умолчанию этой категории. Не опрошенная в цикле
// категория сохраняет предыдущее значение из кэша.
package collector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pv/devnet-panel/internal/docker"
	"github.com/pv/devnet-panel/internal/health"
	"github.com/pv/devnet-panel/internal/poller"
	"github.com/pv/devnet-panel/internal/proofserver"
	"github.com/pv/devnet-panel/internal/substrate"
	"github.com/pv/devnet-panel/internal/wallet"
)

// LogTailLines сколько последних строк логов забирается за цикл
const LogTailLines = 100

// DefaultFetchTimeout таймаут одного запроса к источнику
const DefaultFetchTimeout = 5 * time.Second

// ProbeFunc получает свежий отчёт проб в каждом цикле, где опрашивалась
// категория health.
type ProbeFunc func(at time.Time, report health.Report)

// Options параметры одного цикла сбора. Все поля необязательны.
type Options struct {
	Wallet        *WalletInfo
	NetworkStatus string
	// Policy nil означает "опросить всё"; отсутствующий ключ тоже опрашивается
	Policy     map[poller.Category]bool
	WalletSync wallet.Status
	Balances   map[string]wallet.Amount
}

func (o Options) wants(c poller.Category) bool {
	if o.Policy == nil {
		return true
	}
	fetch, ok := o.Policy[c]
	return !ok || fetch
}

// Collector владеет кэшем категорий между циклами
type Collector struct {
	sources Sources
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time

	hookMu  sync.RWMutex
	onProbe ProbeFunc

	flightMu sync.Mutex
	inflight map[poller.Category]bool

	mu         sync.Mutex
	node       NodeState
	indexer    IndexerState
	proof      ProofServerState
	containers []docker.Service
	logs       []docker.LogLine
	probes     map[health.Target]string
	history    map[health.Target]*HistoryBuffer
	blockTime  BlockTimeEstimator
}

// New создаёт сборщик. timeout <= 0 заменяется DefaultFetchTimeout.
func New(sources Sources, timeout time.Duration, logger *slog.Logger) *Collector {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Collector{
		sources:    sources,
		timeout:    timeout,
		logger:     logger.With("component", "collector"),
		now:        time.Now,
		inflight:   make(map[poller.Category]bool),
		containers: []docker.Service{},
		logs:       []docker.LogLine{},
		probes:     make(map[health.Target]string, len(health.Targets)),
		history:    make(map[health.Target]*HistoryBuffer, len(health.Targets)),
	}
	for _, t := range health.Targets {
		c.probes[t] = ProbeUnhealthy
		c.history[t] = NewHistoryBuffer()
	}
	return c
}

// SetProbeHook устанавливает callback для свежих результатов проб
func (c *Collector) SetProbeHook(fn ProbeFunc) {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()
	c.onProbe = fn
}

// fetched результаты одного цикла; nil поле означает "нет значения"
type fetched struct {
	chain, name, version *string
	sysHealth            *substrate.SystemHealth
	header               *substrate.BlockHeader

	indexer *health.Result

	readiness     *proofserver.Readiness
	proofVersion  *string
	proofVersions *[]string

	services *[]docker.Service
	rawLogs  *string

	report *health.Report
}

// Collect выполняет один цикл сбора. Никогда не возвращает ошибку и не
// паникует: отказ источника превращается в значение по умолчанию.
func (c *Collector) Collect(ctx context.Context, opts Options) *Snapshot {
	var (
		res  fetched
		wg   sync.WaitGroup
		done = make(map[poller.Category]bool, len(poller.Categories))
	)

	for _, cat := range poller.Categories {
		if !opts.wants(cat) {
			continue
		}
		if !c.acquire(cat) {
			c.logger.Debug("Previous fetch still running, keeping cached value", "category", cat)
			continue
		}
		done[cat] = true

		wg.Add(1)
		go c.runGroup(ctx, &wg, cat, &res)
	}
	wg.Wait()

	at := c.now()

	c.mu.Lock()
	c.merge(done, &res, at)
	snap := c.snapshot(opts, at)
	c.mu.Unlock()

	if done[poller.CategoryHealth] && res.report != nil {
		c.hookMu.RLock()
		hook := c.onProbe
		c.hookMu.RUnlock()
		if hook != nil {
			hook(at, *res.report)
		}
	}

	return snap
}

func (c *Collector) acquire(cat poller.Category) bool {
	c.flightMu.Lock()
	defer c.flightMu.Unlock()
	if c.inflight[cat] {
		return false
	}
	c.inflight[cat] = true
	return true
}

func (c *Collector) release(cat poller.Category) {
	c.flightMu.Lock()
	defer c.flightMu.Unlock()
	delete(c.inflight, cat)
}

// runGroup опрашивает одну категорию. Каждая группа пишет только в свои
// поля res, поэтому синхронизация не нужна до wg.Wait.
func (c *Collector) runGroup(ctx context.Context, wg *sync.WaitGroup, cat poller.Category, res *fetched) {
	defer wg.Done()
	defer c.release(cat)
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("Fetch group panicked", "category", cat, "panic", r)
		}
	}()

	switch cat {
	case poller.CategoryNode:
		c.fetchNode(ctx, res)
	case poller.CategoryIndexer:
		if src := c.sources.Health; src != nil {
			res.indexer = fetch(ctx, c, "indexer", func(ctx context.Context) (health.Result, error) {
				return src.Check(ctx, health.TargetIndexer), nil
			})
		}
	case poller.CategoryProofServer:
		if src := c.sources.Proof; src != nil {
			res.readiness = fetch(ctx, c, "proof ready", src.Ready)
		}
	case poller.CategoryProofVersions:
		c.fetchProofVersions(ctx, res)
	case poller.CategoryDocker:
		c.fetchDocker(ctx, res)
	case poller.CategoryHealth:
		if src := c.sources.Health; src != nil {
			res.report = fetch(ctx, c, "health", src.CheckAll)
		}
	}
}

func (c *Collector) fetchNode(ctx context.Context, res *fetched) {
	src := c.sources.Node
	if src == nil {
		return
	}

	var wg sync.WaitGroup
	run := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	run(func() { res.chain = fetch(ctx, c, "system_chain", src.Chain) })
	run(func() { res.name = fetch(ctx, c, "system_name", src.Name) })
	run(func() { res.version = fetch(ctx, c, "system_version", src.Version) })
	run(func() { res.sysHealth = fetch(ctx, c, "system_health", src.Health) })
	run(func() { res.header = fetch(ctx, c, "chain_getHeader", src.BestBlock) })
	wg.Wait()
}

func (c *Collector) fetchProofVersions(ctx context.Context, res *fetched) {
	src := c.sources.Proof
	if src == nil {
		return
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		res.proofVersion = fetch(ctx, c, "proof version", src.Version)
	}()
	go func() {
		defer wg.Done()
		res.proofVersions = fetch(ctx, c, "proof versions", src.ProofVersions)
	}()
	wg.Wait()
}

func (c *Collector) fetchDocker(ctx context.Context, res *fetched) {
	src := c.sources.Runtime
	if src == nil {
		return
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		res.services = fetch(ctx, c, "docker ps", src.ListServices)
	}()
	go func() {
		defer wg.Done()
		res.rawLogs = fetch(ctx, c, "docker logs", func(ctx context.Context) (string, error) {
			return src.TailLogs(ctx, LogTailLines)
		})
	}()
	wg.Wait()
}

// fetch вызывает fn с собственным таймаутом. Ошибка и паника дают nil.
func fetch[T any](ctx context.Context, c *Collector, name string, fn func(context.Context) (T, error)) (out *T) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Debug("Fetch panicked", "source", name, "panic", fmt.Sprint(r))
			out = nil
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	v, err := fn(ctx)
	if err != nil {
		c.logger.Debug("Fetch failed", "source", name, "error", err)
		return nil
	}
	return &v
}

// merge обновляет кэш только для категорий, опрошенных в этом цикле.
// Вызывается под c.mu.
func (c *Collector) merge(done map[poller.Category]bool, res *fetched, at time.Time) {
	if done[poller.CategoryNode] {
		node := NodeState{
			Chain:   res.chain,
			Name:    res.name,
			Version: res.version,
		}
		if res.sysHealth != nil {
			peers, syncing := res.sysHealth.Peers, res.sysHealth.IsSyncing
			node.Peers = &peers
			node.Syncing = &syncing
		}
		if res.header != nil {
			height := res.header.Number
			node.BlockHeight = &height
		}
		node.AvgBlockTime = c.blockTime.Observe(node.BlockHeight, at)
		c.node = node
	}

	if done[poller.CategoryIndexer] {
		c.indexer = IndexerState{}
		if res.indexer != nil {
			c.indexer.Ready = res.indexer.Healthy
			c.indexer.ResponseTime = clonePtr(res.indexer.ResponseTimeMs)
		}
	}

	if done[poller.CategoryProofServer] {
		c.proof.Ready = false
		c.proof.JobsProcessing, c.proof.JobsPending, c.proof.JobCapacity = nil, nil, nil
		if r := res.readiness; r != nil {
			c.proof.Ready = r.Ready()
			c.proof.JobsProcessing = &r.JobsProcessing
			c.proof.JobsPending = &r.JobsPending
			c.proof.JobCapacity = &r.JobCapacity
		}
	}

	if done[poller.CategoryProofVersions] {
		c.proof.Version = res.proofVersion
		c.proof.ProofVersions = nil
		if res.proofVersions != nil {
			c.proof.ProofVersions = *res.proofVersions
		}
	}

	if done[poller.CategoryDocker] {
		c.containers = []docker.Service{}
		if res.services != nil && *res.services != nil {
			c.containers = *res.services
		}
		raw := ""
		if res.rawLogs != nil {
			raw = *res.rawLogs
		}
		c.logs = docker.ParseLogLines(raw)
	}

	if done[poller.CategoryHealth] {
		var report health.Report
		if res.report != nil {
			report = *res.report
		}
		for _, t := range health.Targets {
			r := report.Get(t)
			if r.Healthy {
				c.probes[t] = ProbeHealthy
			} else {
				c.probes[t] = ProbeUnhealthy
			}
			if r.ResponseTimeMs != nil {
				c.history[t].Append(*r.ResponseTimeMs)
			}
		}
	}
}

// snapshot строит независимую копию кэша. Вызывается под c.mu.
func (c *Collector) snapshot(opts Options, at time.Time) *Snapshot {
	snap := &Snapshot{
		Node:        c.node.clone(),
		Indexer:     IndexerState{Ready: c.indexer.Ready, ResponseTime: clonePtr(c.indexer.ResponseTime)},
		ProofServer: c.proof.clone(),
		Health: HealthState{
			Node:        c.probeState(health.TargetNode),
			Indexer:     c.probeState(health.TargetIndexer),
			ProofServer: c.probeState(health.TargetProofServer),
		},
		Containers:    cloneSlice(c.containers),
		Logs:          cloneSlice(c.logs),
		NetworkStatus: opts.NetworkStatus,
		WalletSync:    opts.WalletSync,
		Balances:      wallet.CloneAmounts(opts.Balances),
		Timestamp:     at.UnixMilli(),
	}

	if opts.Wallet != nil {
		snap.Wallet = WalletInfo{
			Address:   clonePtr(opts.Wallet.Address),
			Connected: opts.Wallet.Connected,
		}
	}
	if snap.NetworkStatus == "" {
		snap.NetworkStatus = DefaultNetworkStatus
	}
	if snap.WalletSync == "" {
		snap.WalletSync = wallet.StatusIdle
	}
	return snap
}

func (c *Collector) probeState(t health.Target) ProbeState {
	return ProbeState{
		Status:  c.probes[t],
		History: c.history[t].Values(),
	}
}
