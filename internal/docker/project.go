package docker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/docker/docker/api/types/container"
)

// NetworkStatus состояние жизненного цикла проекта
type NetworkStatus string

const (
	NetworkStopped  NetworkStatus = "stopped"
	NetworkStarting NetworkStatus = "starting"
	NetworkRunning  NetworkStatus = "running"
	NetworkStopping NetworkStatus = "stopping"
)

// ErrNoContainers проект не содержит созданных контейнеров
var ErrNoContainers = errors.New("no containers found for compose project")

// Project запускает и останавливает уже созданные контейнеры compose проекта
type Project struct {
	runtime *Runtime

	mu     sync.RWMutex
	status NetworkStatus
}

// NewProject создает управление жизненным циклом поверх runtime
func NewProject(runtime *Runtime) *Project {
	return &Project{
		runtime: runtime,
		status:  NetworkStopped,
	}
}

// Status возвращает текущее состояние
func (p *Project) Status() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return string(p.status)
}

func (p *Project) setStatus(s NetworkStatus) {
	p.mu.Lock()
	p.status = s
	p.mu.Unlock()
}

// DetectRunning помечает проект запущенным, если все его контейнеры работают
func (p *Project) DetectRunning(ctx context.Context) {
	services, err := p.runtime.ListServices(ctx)
	if err != nil {
		p.runtime.logger.Debug("detect running project failed", "error", err)
		return
	}
	if len(services) == 0 {
		return
	}
	for _, s := range services {
		if s.Status != StateRunning {
			return
		}
	}

	p.runtime.logger.Info("detected running project containers", "project", p.runtime.project)
	p.setStatus(NetworkRunning)
}

// Start запускает все остановленные контейнеры проекта
func (p *Project) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.status == NetworkRunning || p.status == NetworkStarting {
		p.mu.Unlock()
		return nil
	}
	p.status = NetworkStarting
	p.mu.Unlock()

	if err := p.start(ctx); err != nil {
		p.setStatus(NetworkStopped)
		return err
	}

	p.setStatus(NetworkRunning)
	p.runtime.logger.Info("project started", "project", p.runtime.project)
	return nil
}

func (p *Project) start(ctx context.Context) error {
	list, err := p.runtime.containers(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return fmt.Errorf("%w: %s", ErrNoContainers, p.runtime.project)
	}

	for _, c := range list {
		if c.State == "running" {
			continue
		}
		if err := p.runtime.cli.ContainerStart(ctx, c.ID, container.StartOptions{}); err != nil {
			return fmt.Errorf("start %s: %w", containerName(c), err)
		}
	}
	return nil
}

// Stop останавливает контейнеры проекта; итоговое состояние всегда stopped
func (p *Project) Stop(ctx context.Context) error {
	p.setStatus(NetworkStopping)
	defer p.setStatus(NetworkStopped)

	list, err := p.runtime.containers(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for _, c := range list {
		if c.State != "running" {
			continue
		}
		if err := p.runtime.cli.ContainerStop(ctx, c.ID, container.StopOptions{}); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", containerName(c), err))
		}
	}

	p.runtime.logger.Info("project stopped", "project", p.runtime.project)
	return errors.Join(errs...)
}
