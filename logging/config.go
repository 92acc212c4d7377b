package logging

import (
	"maps"
	"slices"
	"strings"
	"time"
)

// Sink names accepted in LOG_SINKS and the config file.
const (
	SinkConsole = "console"
	SinkJSON    = "json"
)

// Config tunes the router. EnabledSinks lists sink names in the order the
// gateway opens them.
type Config struct {
	EnabledSinks     []string
	BufferSize       int
	MinimumSeverity  Severity
	Fields           map[string]any
	JSON             JSONConfig
	DropWarnInterval time.Duration
}

// JSONConfig configures the NDJSON file sink. A non-positive FlushInterval
// flushes after every event.
type JSONConfig struct {
	FilePath      string
	FlushInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		EnabledSinks:     []string{SinkConsole},
		BufferSize:       512,
		MinimumSeverity:  SeverityInfo,
		DropWarnInterval: 5 * time.Second,
		JSON: JSONConfig{
			FlushInterval: 2 * time.Second,
		},
	}
}

// ParseSinks splits a comma separated sink list. Known names are returned in
// order without duplicates; anything else is reported in unknown.
func ParseSinks(raw string) (sinks, unknown []string) {
	for _, name := range strings.Split(raw, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		switch name {
		case "":
		case SinkConsole, SinkJSON:
			if !slices.Contains(sinks, name) {
				sinks = append(sinks, name)
			}
		default:
			unknown = append(unknown, name)
		}
	}
	return sinks, unknown
}

// WantsJSONFile reports whether the json sink is enabled with a file to write.
func (c Config) WantsJSONFile() bool {
	return slices.Contains(c.EnabledSinks, SinkJSON) && c.JSON.FilePath != ""
}

func (c Config) CloneFields() map[string]any {
	if len(c.Fields) == 0 {
		return nil
	}
	return maps.Clone(c.Fields)
}
