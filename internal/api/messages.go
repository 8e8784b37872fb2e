package api

import (
	"encoding/json"

	"github.com/pv/devnet-panel/internal/collector"
	"github.com/pv/devnet-panel/internal/wallet"
)

// Типы сообщений канала /ws
const (
	TypeState            = "state"
	TypeResult           = "result"
	TypeDeriveResult     = "derive-result"
	TypeWalletSyncStatus = "wallet-sync-status"
	TypePollingUpdated   = "polling-updated"
	TypeCommand          = "command"
)

// Действия команд
const (
	ActionStart         = "start"
	ActionStop          = "stop"
	ActionSyncWallet    = "sync-wallet"
	ActionDeriveAddress = "derive-address"
	ActionSetPolling    = "set-polling"
)

// StateMessage полный Snapshot, рассылается каждый цикл
type StateMessage struct {
	Type string              `json:"type"`
	Data *collector.Snapshot `json:"data"`
}

// ResultMessage результат команды, только отправителю
type ResultMessage struct {
	Type    string `json:"type"`
	Action  string `json:"action"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// DeriveResultMessage адрес, полученный из мнемоники
type DeriveResultMessage struct {
	Type    string `json:"type"`
	Address string `json:"address"`
}

// WalletSyncStatusMessage смена статуса синхронизации кошелька
type WalletSyncStatusMessage struct {
	Type   string        `json:"type"`
	Status wallet.Status `json:"status"`
}

// PollingUpdatedMessage новый интервал опроса категории (мс)
type PollingUpdatedMessage struct {
	Type     string `json:"type"`
	Service  string `json:"service"`
	Interval int64  `json:"interval"`
}

// Command входящая команда клиента. Параметры действий лежат на верхнем
// уровне рядом с action.
type Command struct {
	Type     string          `json:"type"`
	Action   string          `json:"action"`
	Mnemonic string          `json:"mnemonic,omitempty"`
	Service  string          `json:"service,omitempty"`
	// Interval разбирается в setPolling, чтобы неверное значение давало
	// result с ошибкой, а не отброшенный кадр
	Interval json.RawMessage `json:"interval,omitempty"`
}

func newResult(action string, err error) ResultMessage {
	msg := ResultMessage{Type: TypeResult, Action: action, Success: err == nil}
	if err != nil {
		msg.Error = err.Error()
	}
	return msg
}
