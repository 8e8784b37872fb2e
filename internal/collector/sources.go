package collector

import (
	"context"

	"github.com/pv/devnet-panel/internal/docker"
	"github.com/pv/devnet-panel/internal/health"
	"github.com/pv/devnet-panel/internal/proofserver"
	"github.com/pv/devnet-panel/internal/substrate"
)

// NodeSource метрики узла (*substrate.Client)
type NodeSource interface {
	Chain(ctx context.Context) (string, error)
	Name(ctx context.Context) (string, error)
	Version(ctx context.Context) (string, error)
	Health(ctx context.Context) (substrate.SystemHealth, error)
	BestBlock(ctx context.Context) (substrate.BlockHeader, error)
}

// ProofSource proof-сервис (*proofserver.Client)
type ProofSource interface {
	Version(ctx context.Context) (string, error)
	Ready(ctx context.Context) (proofserver.Readiness, error)
	ProofVersions(ctx context.Context) ([]string, error)
}

// RuntimeSource контейнерная среда (*docker.Runtime)
type RuntimeSource interface {
	ListServices(ctx context.Context) ([]docker.Service, error)
	TailLogs(ctx context.Context, lines int) (string, error)
}

// HealthSource синтетические пробы (*health.Checker)
type HealthSource interface {
	Check(ctx context.Context, target health.Target) health.Result
	CheckAll(ctx context.Context) (health.Report, error)
}

// Sources набор источников данных. Отсутствующий источник даёт значения
// по умолчанию для своей категории.
type Sources struct {
	Node    NodeSource
	Proof   ProofSource
	Runtime RuntimeSource
	Health  HealthSource
}
