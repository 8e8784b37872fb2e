// Package api раздаёт Snapshot подписчикам через WebSocket и принимает
// от них команды.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pv/devnet-panel/internal/collector"
	"github.com/pv/devnet-panel/internal/poller"
	"github.com/pv/devnet-panel/internal/wallet"
)

// Collector собирает Snapshot за один цикл (*collector.Collector)
type Collector interface {
	Collect(ctx context.Context, opts collector.Options) *collector.Snapshot
}

// Lifecycle запуск и остановка бэкендов (*docker.Project)
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Status() string
}

// WalletSync координатор синхронизации кошелька (*wallet.Coordinator)
type WalletSync interface {
	Request(ctx context.Context) bool
	Status() wallet.Status
	Info() wallet.Info
	SetOnStatus(fn wallet.StatusFunc)
}

// Deriver получение адреса из мнемоники (*wallet.Client)
type Deriver interface {
	DeriveAddress(ctx context.Context, mnemonic, networkID string) (string, error)
}

// HubConfig зависимости хаба. Lifecycle, Wallet и Deriver необязательны.
type HubConfig struct {
	Collector Collector
	Scheduler *poller.Scheduler
	Lifecycle Lifecycle
	Wallet    WalletSync
	Deriver   Deriver
	NetworkID string
	Logger    *slog.Logger
	// CommandTimeout ограничивает start/stop и derive-address
	CommandTimeout time.Duration
}

// DefaultCommandTimeout таймаут команд по умолчанию
const DefaultCommandTimeout = 2 * time.Minute

// Hub владеет множеством подписчиков и циклом опроса
type Hub struct {
	collector Collector
	scheduler *poller.Scheduler
	lifecycle Lifecycle
	wallet    WalletSync
	deriver   Deriver
	networkID string
	timeout   time.Duration
	logger    *slog.Logger

	loop *poller.Loop

	mu      sync.RWMutex
	clients map[*Client]struct{}
	closed  bool

	lastMu    sync.RWMutex
	lastState []byte

	ctxMu  sync.Mutex
	ctx    context.Context
	cycles sync.WaitGroup
}

// NewHub создаёт хаб и подписывается на статусы синхронизации кошелька
func NewHub(cfg HubConfig) *Hub {
	if cfg.Scheduler == nil {
		cfg.Scheduler = poller.NewScheduler()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = DefaultCommandTimeout
	}

	h := &Hub{
		collector: cfg.Collector,
		scheduler: cfg.Scheduler,
		lifecycle: cfg.Lifecycle,
		wallet:    cfg.Wallet,
		deriver:   cfg.Deriver,
		networkID: cfg.NetworkID,
		timeout:   cfg.CommandTimeout,
		logger:    cfg.Logger.With("component", "hub"),
		clients:   make(map[*Client]struct{}),
		ctx:       context.Background(),
	}
	h.loop = poller.NewLoop(poller.TickInterval, h.tick, h.logger)

	if h.wallet != nil {
		h.wallet.SetOnStatus(h.onWalletStatus)
	}
	return h
}

// Start запускает цикл опроса; повторный вызов ничего не делает
func (h *Hub) Start(ctx context.Context) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		return
	}

	h.ctxMu.Lock()
	h.ctx = ctx
	h.ctxMu.Unlock()

	h.loop.Start(ctx)
}

// Shutdown останавливает цикл, закрывает всех подписчиков и очищает
// множество. Безопасен без предшествующего Start и при повторном вызове.
func (h *Hub) Shutdown() {
	h.loop.Stop()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	h.mu.Unlock()

	h.logger.Info("Hub stopped")
}

// Wait дожидается завершения запущенных циклов сбора
func (h *Hub) Wait() {
	h.cycles.Wait()
}

func (h *Hub) baseContext() context.Context {
	h.ctxMu.Lock()
	defer h.ctxMu.Unlock()
	return h.ctx
}

// AddClient регистрирует подписчика. conn может быть nil (тесты).
// После Shutdown возвращённый клиент сразу закрыт.
func (h *Hub) AddClient(conn *websocket.Conn) *Client {
	c := newClient(h, conn)

	h.mu.Lock()
	if h.closed {
		close(c.send)
		h.mu.Unlock()
		return c
	}
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug("Client connected", "clients", count)

	h.lastMu.RLock()
	last := h.lastState
	h.lastMu.RUnlock()
	if last != nil {
		h.sendRaw(c, last)
	}
	return c
}

// RemoveClient удаляет подписчика; повторный вызов безопасен
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug("Client disconnected", "clients", count)
}

// ClientCount возвращает число подписчиков
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast отправляет одни и те же байты всем подписчикам
func (h *Hub) Broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		h.enqueue(c, data)
	}
}

func (h *Hub) broadcastJSON(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Marshal message failed", "error", err)
		return
	}
	h.Broadcast(data)
}

// sendJSON отправляет сообщение одному подписчику
func (h *Hub) sendJSON(c *Client, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Marshal message failed", "error", err)
		return
	}
	h.sendRaw(c, data)
}

func (h *Hub) sendRaw(c *Client, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	h.enqueue(c, data)
}

// enqueue не блокируется: медленный подписчик теряет кадр.
// Вызывается под h.mu.RLock.
func (h *Hub) enqueue(c *Client, data []byte) {
	select {
	case c.send <- data:
	default:
		h.logger.Debug("Client send buffer full, dropping frame")
	}
}

// tick вызывается циклом каждую секунду. Сбор идёт в отдельной горутине,
// чтобы медленный источник не задерживал следующие тики.
func (h *Hub) tick(ctx context.Context, now time.Time) {
	due := h.scheduler.Due(now)

	h.cycles.Add(1)
	go func() {
		defer h.cycles.Done()
		h.RunCycle(ctx, due)
	}()
}

// RunCycle выполняет один сбор и рассылает результат
func (h *Hub) RunCycle(ctx context.Context, policy map[poller.Category]bool) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Collect cycle panicked", "panic", r)
		}
	}()

	snap := h.collector.Collect(ctx, h.collectOptions(policy))

	data, err := json.Marshal(StateMessage{Type: TypeState, Data: snap})
	if err != nil {
		h.logger.Error("Marshal state failed", "error", err)
		return
	}

	h.lastMu.Lock()
	h.lastState = data
	h.lastMu.Unlock()

	h.Broadcast(data)
}

func (h *Hub) collectOptions(policy map[poller.Category]bool) collector.Options {
	opts := collector.Options{Policy: policy}

	if h.lifecycle != nil {
		opts.NetworkStatus = h.lifecycle.Status()
	}
	if h.wallet != nil {
		info := h.wallet.Info()
		opts.WalletSync = info.Status
		opts.Balances = info.Balances
		opts.Wallet = &collector.WalletInfo{
			Address:   info.Address,
			Connected: info.Balances != nil,
		}
	}
	return opts
}

// onWalletStatus рассылает текущий статус координатора, а не переданный:
// уведомление о завершении может прийти после старта следующей синхронизации
func (h *Hub) onWalletStatus(_ wallet.Status, err error) {
	h.broadcastJSON(WalletSyncStatusMessage{Type: TypeWalletSyncStatus, Status: h.wallet.Status()})
}

// StatusInfo сводка для GET /api/status
type StatusInfo struct {
	Clients       int                      `json:"clients"`
	NetworkStatus string                   `json:"networkStatus"`
	WalletSync    wallet.Status            `json:"walletSyncStatus"`
	Polling       map[string]PollingStatus `json:"polling"`
}

// PollingStatus настройка опроса категории
type PollingStatus struct {
	Enabled    bool  `json:"enabled"`
	IntervalMs int64 `json:"intervalMs"`
}

// Status возвращает текущую сводку хаба
func (h *Hub) Status() StatusInfo {
	info := StatusInfo{
		Clients:       h.ClientCount(),
		NetworkStatus: collector.DefaultNetworkStatus,
		WalletSync:    wallet.StatusIdle,
		Polling:       make(map[string]PollingStatus),
	}
	if h.lifecycle != nil {
		info.NetworkStatus = h.lifecycle.Status()
	}
	if h.wallet != nil {
		info.WalletSync = h.wallet.Status()
	}
	for c, s := range h.scheduler.Policy() {
		info.Polling[string(c)] = PollingStatus{Enabled: s.Enabled, IntervalMs: s.Interval.Milliseconds()}
	}
	return info
}
