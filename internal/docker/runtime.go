package docker

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// ProjectLabel метка compose, по которой выбираются контейнеры проекта
const ProjectLabel = "com.docker.compose.project"

// apiClient подмножество Docker SDK, используемое пакетом
type apiClient interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	Close() error
}

// Runtime источник состояния контейнеров одного compose проекта
type Runtime struct {
	cli     apiClient
	project string
	logger  *slog.Logger
}

// NewRuntime подключается к Docker через переменные окружения (DOCKER_HOST и т.д.)
func NewRuntime(project string, logger *slog.Logger) (*Runtime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return newRuntime(cli, project, logger), nil
}

func newRuntime(cli apiClient, project string, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		cli:     cli,
		project: project,
		logger:  logger.With("component", "docker-runtime"),
	}
}

// Close закрывает клиента Docker
func (r *Runtime) Close() error {
	return r.cli.Close()
}

func (r *Runtime) containers(ctx context.Context) ([]types.Container, error) {
	list, err := r.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", ProjectLabel+"="+r.project)),
	})
	if err != nil {
		return nil, fmt.Errorf("list containers of %s: %w", r.project, err)
	}

	sort.Slice(list, func(i, j int) bool {
		return containerName(list[i]) < containerName(list[j])
	})
	return list, nil
}

// ListServices возвращает состояние сервисов проекта
func (r *Runtime) ListServices(ctx context.Context) ([]Service, error) {
	list, err := r.containers(ctx)
	if err != nil {
		return nil, err
	}

	services := make([]Service, 0, len(list))
	for _, c := range list {
		services = append(services, serviceFromContainer(containerName(c), c.State, c.Status))
	}
	return services, nil
}

// TailLogs возвращает последние lines строк логов всех контейнеров проекта
// в формате docker compose: "<container> | <message>"
func (r *Runtime) TailLogs(ctx context.Context, lines int) (string, error) {
	list, err := r.containers(ctx)
	if err != nil {
		return "", err
	}

	var out strings.Builder
	for _, c := range list {
		name := containerName(c)
		text, err := r.containerLogs(ctx, c.ID, lines)
		if err != nil {
			r.logger.Debug("container logs failed", "container", name, "error", err)
			continue
		}

		scanner := bufio.NewScanner(strings.NewReader(text))
		for scanner.Scan() {
			line := scanner.Text()
			if strings.TrimSpace(line) == "" {
				continue
			}
			out.WriteString(name)
			out.WriteString(" | ")
			out.WriteString(line)
			out.WriteByte('\n')
		}
	}
	return out.String(), nil
}

func (r *Runtime) containerLogs(ctx context.Context, id string, lines int) (string, error) {
	inspect, err := r.cli.ContainerInspect(ctx, id)
	if err != nil {
		return "", fmt.Errorf("inspect %s: %w", id, err)
	}

	rc, err := r.cli.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       strconv.Itoa(lines),
	})
	if err != nil {
		return "", fmt.Errorf("logs %s: %w", id, err)
	}
	defer rc.Close()

	// Без TTY поток мультиплексирован (stdout/stderr)
	if inspect.Config != nil && inspect.Config.Tty {
		data, err := io.ReadAll(rc)
		return string(data), err
	}

	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, rc); err != nil {
		return "", fmt.Errorf("demux logs %s: %w", id, err)
	}
	return buf.String(), nil
}

func containerName(c types.Container) string {
	if len(c.Names) == 0 {
		return c.ID
	}
	return strings.TrimPrefix(c.Names[0], "/")
}
