// Package client подключается к панели по WebSocket, отображает
// получаемое состояние и переподключается при обрыве.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mitchellh/hashstructure/v2"

	"github.com/pv/devnet-panel/internal/collector"
	"github.com/pv/devnet-panel/internal/wallet"
)

// ErrClosed возвращается после Close
var ErrClosed = errors.New("session closed")

// Callbacks обработчики входящих сообщений; любой может быть nil
type Callbacks struct {
	// OnState новое состояние; changed=false, если содержимое (без
	// timestamp) совпадает с предыдущим
	OnState            func(snap *collector.Snapshot, changed bool)
	OnResult           func(action string, success bool, errMsg string)
	OnDeriveResult     func(address string)
	OnWalletSyncStatus func(status wallet.Status)
	OnPollingUpdated   func(service string, intervalMs int64)
	OnConnect          func()
	OnDisconnect       func(err error, retryIn time.Duration)
}

// afterFunc планирует f через d и возвращает функцию отмены
type afterFunc func(d time.Duration, f func()) (stop func() bool)

func realAfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// incoming плоское представление всех серверных сообщений
type incoming struct {
	Type     string          `json:"type"`
	Data     json.RawMessage `json:"data"`
	Action   string          `json:"action"`
	Success  bool            `json:"success"`
	Error    string          `json:"error"`
	Address  string          `json:"address"`
	Status   wallet.Status   `json:"status"`
	Service  string          `json:"service"`
	Interval int64           `json:"interval"`
}

// Session одно логическое подключение к панели с автоматическим
// переподключением. Одновременно ожидает не более одного таймера.
type Session struct {
	url       string
	dialer    *websocket.Dialer
	callbacks Callbacks
	backoff   *Backoff
	afterFunc afterFunc
	logger    *slog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	stopTimer func() bool
	closed    bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	writeMu sync.Mutex

	stateMu sync.Mutex
	state   *collector.Snapshot
	hash    uint64
	hasHash bool
	derived string
}

// NewSession создаёт сессию для адреса ws://host:port/ws
func NewSession(url string, callbacks Callbacks, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		url:       url,
		dialer:    &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		callbacks: callbacks,
		backoff:   NewBackoff(),
		afterFunc: realAfterFunc,
		logger:    logger.With("component", "session"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Connect выполняет первое подключение. При ошибке переподключение уже
// запланировано, ошибка возвращается для информации.
func (s *Session) Connect() error {
	return s.connect()
}

func (s *Session) connect() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	ctx := s.ctx
	s.mu.Unlock()

	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		err = fmt.Errorf("websocket dial failed: %w", err)
		s.scheduleReconnect(err)
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	s.conn = conn
	s.backoff.Reset()
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info("Connected", "url", s.url)

	// первая команда после каждого подключения
	if err := s.Send("sync-wallet", nil); err != nil {
		s.logger.Warn("Initial sync-wallet failed", "error", err)
	}
	if s.callbacks.OnConnect != nil {
		s.callbacks.OnConnect()
	}

	go s.readLoop(conn)
	return nil
}

func (s *Session) readLoop(conn *websocket.Conn) {
	defer s.wg.Done()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.handleDisconnect(conn, err)
			return
		}
		s.handleMessage(data)
	}
}

func (s *Session) handleDisconnect(conn *websocket.Conn, err error) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	closed := s.closed
	s.mu.Unlock()
	conn.Close()

	if closed {
		return
	}
	s.logger.Warn("Disconnected", "error", err)
	s.scheduleReconnect(err)
}

// scheduleReconnect ставит таймер, если он ещё не стоит
func (s *Session) scheduleReconnect(cause error) {
	s.mu.Lock()
	if s.closed || s.stopTimer != nil {
		s.mu.Unlock()
		return
	}
	delay := s.backoff.Next()
	s.stopTimer = s.afterFunc(delay, func() {
		s.mu.Lock()
		s.stopTimer = nil
		s.mu.Unlock()
		s.connect()
	})
	s.mu.Unlock()

	s.logger.Info("Reconnect scheduled", "in", delay)
	if s.callbacks.OnDisconnect != nil {
		s.callbacks.OnDisconnect(cause, delay)
	}
}

// Send отправляет команду {type:"command", action, ...params}
func (s *Session) Send(action string, params map[string]any) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}

	msg := make(map[string]any, len(params)+2)
	for k, v := range params {
		msg[k] = v
	}
	msg["type"] = "command"
	msg["action"] = action

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("write message failed: %w", err)
	}
	return nil
}

func (s *Session) handleMessage(data []byte) {
	var msg incoming
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Debug("Ignoring malformed message", "error", err)
		return
	}

	switch msg.Type {
	case "state":
		var snap collector.Snapshot
		if err := json.Unmarshal(msg.Data, &snap); err != nil {
			s.logger.Debug("Ignoring malformed state", "error", err)
			return
		}
		changed := s.replaceState(&snap)
		if s.callbacks.OnState != nil {
			s.callbacks.OnState(&snap, changed)
		}
	case "result":
		if s.callbacks.OnResult != nil {
			s.callbacks.OnResult(msg.Action, msg.Success, msg.Error)
		}
	case "derive-result":
		s.stateMu.Lock()
		s.derived = msg.Address
		s.stateMu.Unlock()
		if s.callbacks.OnDeriveResult != nil {
			s.callbacks.OnDeriveResult(msg.Address)
		}
	case "wallet-sync-status":
		if s.callbacks.OnWalletSyncStatus != nil {
			s.callbacks.OnWalletSyncStatus(msg.Status)
		}
	case "polling-updated":
		if s.callbacks.OnPollingUpdated != nil {
			s.callbacks.OnPollingUpdated(msg.Service, msg.Interval)
		}
	default:
		s.logger.Debug("Ignoring unknown message", "type", msg.Type)
	}
}

// replaceState сохраняет Snapshot и сообщает, изменилось ли содержимое
func (s *Session) replaceState(snap *collector.Snapshot) bool {
	h, err := hashstructure.Hash(snap, hashstructure.FormatV2, nil)

	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	s.state = snap
	if err != nil {
		s.logger.Debug("Hash state failed", "error", err)
		s.hasHash = false
		return true
	}
	changed := !s.hasHash || h != s.hash
	s.hash, s.hasHash = h, true
	return changed
}

// State последнее полученное состояние
func (s *Session) State() *collector.Snapshot {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// DerivedAddress последний адрес из derive-result
func (s *Session) DerivedAddress() string {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.derived
}

// Connected сообщает, открыто ли соединение
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Close отменяет ожидающий таймер и закрывает соединение
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.stopTimer != nil {
		s.stopTimer()
		s.stopTimer = nil
	}
	s.cancel()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		s.writeMu.Lock()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()
		conn.Close()
	}

	s.wg.Wait()
	return nil
}
