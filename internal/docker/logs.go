package docker

import "strings"

// LogLevel уровень строки лога
type LogLevel string

const (
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
	LevelDebug LogLevel = "debug"
)

// LogLine разобранная строка лога
type LogLine struct {
	Service ServiceName `json:"service"`
	Level   LogLevel    `json:"level"`
	Message string      `json:"message"`
	Raw     string      `json:"raw"`
}

// LogFilter фильтр строк; пустые поля не фильтруют
type LogFilter struct {
	Service ServiceName
	Level   LogLevel
	Search  string
}

func detectLevel(message string) LogLevel {
	upper := strings.ToUpper(message)
	switch {
	case strings.Contains(upper, "ERROR"), strings.Contains(upper, "ERR "):
		return LevelError
	case strings.Contains(upper, "WARN"):
		return LevelWarn
	case strings.Contains(upper, "DEBUG"):
		return LevelDebug
	default:
		return LevelInfo
	}
}

// ParseLogLines разбирает вывод "<container> | <message>"
func ParseLogLines(raw string) []LogLine {
	if strings.TrimSpace(raw) == "" {
		return []LogLine{}
	}

	var lines []LogLine
	for _, line := range strings.Split(raw, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}

		idx := strings.Index(line, " | ")
		if idx == -1 {
			lines = append(lines, LogLine{
				Service: ServiceUnknown,
				Level:   detectLevel(line),
				Message: strings.TrimSpace(line),
				Raw:     line,
			})
			continue
		}

		containerRaw := strings.TrimSpace(line[:idx])
		message := line[idx+3:]
		service := ServiceUnknown
		if known, ok := knownServices[containerRaw]; ok {
			service = known.name
		}

		lines = append(lines, LogLine{
			Service: service,
			Level:   detectLevel(message),
			Message: message,
			Raw:     line,
		})
	}
	return lines
}

// FilterLogs возвращает строки, удовлетворяющие фильтру
func FilterLogs(lines []LogLine, f LogFilter) []LogLine {
	search := strings.ToLower(f.Search)
	result := make([]LogLine, 0, len(lines))
	for _, l := range lines {
		if f.Service != "" && l.Service != f.Service {
			continue
		}
		if f.Level != "" && l.Level != f.Level {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(l.Message), search) {
			continue
		}
		result = append(result, l)
	}
	return result
}
