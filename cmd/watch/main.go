// watch подключается к панели по WebSocket и пишет в лог изменения
// состояния, результаты команд и переподключения.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pv/devnet-panel/internal/client"
	"github.com/pv/devnet-panel/internal/collector"
	"github.com/pv/devnet-panel/internal/logger"
	"github.com/pv/devnet-panel/internal/wallet"
)

func main() {
	url := flag.String("url", "ws://127.0.0.1:8000/ws", "Panel WebSocket URL")
	action := flag.String("action", "", "Command sent after the first connect: start, stop, sync-wallet")
	mnemonic := flag.String("derive", "", "Derive an address from this mnemonic after connecting")
	logFormat := flag.String("log-format", "text", "Log format: text or json")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	logger.Init(logger.Options{Format: *logFormat, Level: logger.ParseLevel(*logLevel)})

	var session *client.Session
	sentOnce := false

	session = client.NewSession(*url, client.Callbacks{
		OnConnect: func() {
			logger.Info("Connected", "url", *url)
			if sentOnce {
				return
			}
			sentOnce = true
			sendInitial(session, *action, *mnemonic)
		},
		OnDisconnect: func(err error, retryIn time.Duration) {
			logger.Warn("Disconnected", "error", err, "retryIn", retryIn)
		},
		OnState: func(snap *collector.Snapshot, changed bool) {
			if !changed {
				logger.Debug("State unchanged", "timestamp", snap.Timestamp)
				return
			}
			logState(snap)
		},
		OnResult: func(action string, success bool, errMsg string) {
			if success {
				logger.Info("Command succeeded", "action", action)
			} else {
				logger.Warn("Command failed", "action", action, "error", errMsg)
			}
		},
		OnDeriveResult: func(address string) {
			logger.Info("Derived address", "address", address)
		},
		OnWalletSyncStatus: func(status wallet.Status) {
			logger.Info("Wallet sync", "status", status)
		},
		OnPollingUpdated: func(service string, intervalMs int64) {
			logger.Info("Polling updated", "service", service, "intervalMs", intervalMs)
		},
	}, logger.Log)

	if err := session.Connect(); err != nil {
		logger.Warn("Initial connect failed, retrying", "error", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	session.Close()
}

func sendInitial(s *client.Session, action, mnemonic string) {
	if action != "" {
		if err := s.Send(action, nil); err != nil {
			logger.Error("Send command failed", "action", action, "error", err)
		}
	}
	if mnemonic != "" {
		if err := s.Send("derive-address", map[string]any{"mnemonic": mnemonic}); err != nil {
			logger.Error("Send derive-address failed", "error", err)
		}
	}
}

func logState(snap *collector.Snapshot) {
	args := []any{
		"network", snap.NetworkStatus,
		"walletSync", snap.WalletSync,
		"node", snap.Health.Node.Status,
		"indexer", snap.Health.Indexer.Status,
		"proofServer", snap.Health.ProofServer.Status,
		"containers", len(snap.Containers),
	}
	if snap.Node.BlockHeight != nil {
		args = append(args, "block", *snap.Node.BlockHeight)
	}
	if snap.Node.AvgBlockTime != nil {
		args = append(args, "avgBlockTimeMs", *snap.Node.AvgBlockTime)
	}
	for name, amount := range snap.Balances {
		args = append(args, name, amount.String())
	}
	logger.Info("State", args...)
}
