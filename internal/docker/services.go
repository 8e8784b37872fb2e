package docker

import "strings"

// ServiceName логическое имя сервиса
type ServiceName string

const (
	ServiceNode        ServiceName = "node"
	ServiceIndexer     ServiceName = "indexer"
	ServiceProofServer ServiceName = "proof-server"
	ServiceUnknown     ServiceName = "unknown"
)

// ServiceState состояние контейнера сервиса
type ServiceState string

const (
	StateRunning   ServiceState = "running"
	StateStopped   ServiceState = "stopped"
	StateUnhealthy ServiceState = "unhealthy"
	StateUnknown   ServiceState = "unknown"
)

// Service состояние одного сервиса проекта
type Service struct {
	Name          ServiceName  `json:"name"`
	ContainerName string       `json:"containerName"`
	Status        ServiceState `json:"status"`
	Port          int          `json:"port"`
	URL           string       `json:"url"`
}

type knownService struct {
	name ServiceName
	port int
	url  string
}

// knownServices соответствие имен контейнеров стандартного проекта сервисам
var knownServices = map[string]knownService{
	"midnight-node":         {ServiceNode, 9944, "http://127.0.0.1:9944"},
	"midnight-indexer":      {ServiceIndexer, 8088, "http://127.0.0.1:8088/api/v3/graphql"},
	"midnight-proof-server": {ServiceProofServer, 6300, "http://127.0.0.1:6300"},
}

func serviceFromContainer(name, state, status string) Service {
	svc := Service{
		Name:          ServiceName(name),
		ContainerName: name,
		Status:        StateStopped,
	}
	if known, ok := knownServices[name]; ok {
		svc.Name = known.name
		svc.Port = known.port
		svc.URL = known.url
	}

	switch {
	case state == "running" && strings.Contains(status, "(unhealthy)"):
		svc.Status = StateUnhealthy
	case state == "running":
		svc.Status = StateRunning
	case state == "":
		svc.Status = StateUnknown
	}
	return svc
}
