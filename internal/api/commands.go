package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pv/devnet-panel/internal/poller"
	"github.com/pv/devnet-panel/internal/wallet"
)

var (
	errNoLifecycle = errors.New("network lifecycle is not available")
	errNoWallet    = errors.New("wallet is not configured")
	errNoMnemonic  = errors.New("mnemonic is required")
	errNoInterval  = errors.New("interval is required")
	errBadInterval = errors.New("interval must be an integer number of milliseconds")
)

// HandleMessage разбирает входящий кадр и выполняет команду.
// Некорректные кадры молча отбрасываются.
func (h *Hub) HandleMessage(c *Client, raw []byte) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		h.logger.Debug("Dropping malformed frame", "error", err)
		return
	}
	if cmd.Type != TypeCommand || cmd.Action == "" {
		h.logger.Debug("Dropping non-command frame", "type", cmd.Type)
		return
	}

	h.dispatch(c, cmd)
}

func (h *Hub) dispatch(c *Client, cmd Command) {
	ctx, cancel := context.WithTimeout(h.baseContext(), h.timeout)
	defer cancel()

	h.logger.Debug("Command received", "action", cmd.Action)

	switch cmd.Action {
	case ActionStart:
		h.sendJSON(c, newResult(cmd.Action, h.lifecycleCall(ctx, true)))

	case ActionStop:
		h.sendJSON(c, newResult(cmd.Action, h.lifecycleCall(ctx, false)))

	case ActionSyncWallet:
		h.sendJSON(c, newResult(cmd.Action, h.syncWallet(ctx)))

	case ActionDeriveAddress:
		addr, err := h.deriveAddress(ctx, cmd.Mnemonic)
		if err != nil {
			h.sendJSON(c, newResult(cmd.Action, err))
			return
		}
		h.sendJSON(c, DeriveResultMessage{Type: TypeDeriveResult, Address: addr})

	case ActionSetPolling:
		interval, err := h.setPolling(cmd.Service, cmd.Interval)
		h.sendJSON(c, newResult(cmd.Action, err))
		if err == nil {
			h.broadcastJSON(PollingUpdatedMessage{
				Type:     TypePollingUpdated,
				Service:  cmd.Service,
				Interval: interval,
			})
		}

	default:
		h.sendJSON(c, newResult(cmd.Action, fmt.Errorf("Unknown action: %s", cmd.Action)))
	}
}

func (h *Hub) lifecycleCall(ctx context.Context, start bool) error {
	if h.lifecycle == nil {
		return errNoLifecycle
	}
	if start {
		return h.lifecycle.Start(ctx)
	}
	return h.lifecycle.Stop(ctx)
}

func (h *Hub) syncWallet(ctx context.Context) error {
	if h.wallet == nil {
		return errNoWallet
	}
	if !h.wallet.Request(ctx) {
		return wallet.ErrSyncInProgress
	}
	return nil
}

func (h *Hub) deriveAddress(ctx context.Context, mnemonic string) (string, error) {
	if mnemonic == "" {
		return "", errNoMnemonic
	}
	if h.deriver == nil {
		return "", errNoWallet
	}
	return h.deriver.DeriveAddress(ctx, mnemonic, h.networkID)
}

// setPolling проверяет и применяет интервал; при ошибке политика не меняется
func (h *Hub) setPolling(service string, raw json.RawMessage) (int64, error) {
	cat, err := poller.ParseCategory(service)
	if err != nil {
		return 0, err
	}
	intervalMs, err := parseIntervalMs(raw)
	if err != nil {
		return 0, err
	}
	if err := h.scheduler.SetInterval(cat, time.Duration(intervalMs)*time.Millisecond); err != nil {
		return 0, err
	}

	h.logger.Info("Polling interval changed", "category", cat, "interval_ms", intervalMs)
	return intervalMs, nil
}

// parseIntervalMs принимает только целое JSON-число в пределах
// [MinInterval, MaxInterval]; границы проверяются до перевода в Duration
func parseIntervalMs(raw json.RawMessage) (int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, errNoInterval
	}
	if raw[0] != '-' && (raw[0] < '0' || raw[0] > '9') {
		return 0, errBadInterval
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, errBadInterval
	}
	ms, err := n.Int64()
	if err != nil {
		return 0, errBadInterval
	}

	if ms < poller.MinInterval.Milliseconds() {
		return 0, fmt.Errorf("%w: %dms < %dms", poller.ErrIntervalTooShort, ms, poller.MinInterval.Milliseconds())
	}
	if ms > poller.MaxInterval.Milliseconds() {
		return 0, fmt.Errorf("%w: %dms > %dms", poller.ErrIntervalTooLong, ms, poller.MaxInterval.Milliseconds())
	}
	return ms, nil
}
