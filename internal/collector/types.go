package collector

import (
	"github.com/pv/devnet-panel/internal/docker"
	"github.com/pv/devnet-panel/internal/wallet"
)

// Статусы проб здоровья
const (
	ProbeHealthy   = "healthy"
	ProbeUnhealthy = "unhealthy"
)

// DefaultNetworkStatus используется, если статус жизненного цикла не передан
const DefaultNetworkStatus = "running"

// NodeState метрики узла. nil означает "нет данных".
type NodeState struct {
	Chain        *string  `json:"chain"`
	Name         *string  `json:"name"`
	Version      *string  `json:"version"`
	BlockHeight  *int64   `json:"blockHeight"`
	AvgBlockTime *float64 `json:"avgBlockTime"`
	Peers        *int     `json:"peers"`
	Syncing      *bool    `json:"syncing"`
}

// IndexerState готовность индексатора
type IndexerState struct {
	Ready        bool   `json:"ready"`
	ResponseTime *int64 `json:"responseTime"`
}

// ProofServerState состояние proof-сервиса
type ProofServerState struct {
	Version        *string  `json:"version"`
	Ready          bool     `json:"ready"`
	JobsProcessing *int     `json:"jobsProcessing"`
	JobsPending    *int     `json:"jobsPending"`
	JobCapacity    *int     `json:"jobCapacity"`
	ProofVersions  []string `json:"proofVersions"`
}

// WalletInfo сведения о кошельке, передаваемые снаружи
type WalletInfo struct {
	Address   *string `json:"address"`
	Connected bool    `json:"connected"`
}

// ProbeState статус пробы и история времени отклика
type ProbeState struct {
	Status  string  `json:"status"`
	History []int64 `json:"history"`
}

// HealthState пробы по всем целям
type HealthState struct {
	Node        ProbeState `json:"node"`
	Indexer     ProbeState `json:"indexer"`
	ProofServer ProbeState `json:"proofServer"`
}

// Snapshot согласованное состояние всех категорий на один момент времени.
// Каждый Snapshot владеет своими данными: изменение полей не влияет на
// последующие циклы сбора.
type Snapshot struct {
	Node          NodeState                `json:"node"`
	Indexer       IndexerState             `json:"indexer"`
	ProofServer   ProofServerState         `json:"proofServer"`
	Wallet        WalletInfo               `json:"wallet"`
	Health        HealthState              `json:"health"`
	Containers    []docker.Service         `json:"containers"`
	Logs          []docker.LogLine         `json:"logs"`
	NetworkStatus string                   `json:"networkStatus"`
	WalletSync    wallet.Status            `json:"walletSyncStatus"`
	Balances      map[string]wallet.Amount `json:"balances"`
	Timestamp     int64                    `json:"timestamp" hash:"ignore"`
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	out := make([]T, len(s))
	copy(out, s)
	return out
}

func (n NodeState) clone() NodeState {
	return NodeState{
		Chain:        clonePtr(n.Chain),
		Name:         clonePtr(n.Name),
		Version:      clonePtr(n.Version),
		BlockHeight:  clonePtr(n.BlockHeight),
		AvgBlockTime: clonePtr(n.AvgBlockTime),
		Peers:        clonePtr(n.Peers),
		Syncing:      clonePtr(n.Syncing),
	}
}

func (p ProofServerState) clone() ProofServerState {
	return ProofServerState{
		Version:        clonePtr(p.Version),
		Ready:          p.Ready,
		JobsProcessing: clonePtr(p.JobsProcessing),
		JobsPending:    clonePtr(p.JobsPending),
		JobCapacity:    clonePtr(p.JobCapacity),
		ProofVersions:  cloneSlice(p.ProofVersions),
	}
}
