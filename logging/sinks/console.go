package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"

	"decharge/gateway/logging"
)

type ConsoleSink struct {
	logger *log.Logger
}

// NewConsoleSink writes one line per event to w.
func NewConsoleSink(w io.Writer) *ConsoleSink {
	return &ConsoleSink{logger: log.New(w, "", log.LstdFlags)}
}

// Write prints one line: type, severity, category, actor, then whichever of
// trace id, request id, targets and payload are set.
func (s *ConsoleSink) Write(event logging.Event) error {
	if s.logger == nil {
		return nil
	}
	var line strings.Builder
	fmt.Fprintf(&line, "[%s] %s", event.Type, event.Severity)
	if event.Category != "" {
		fmt.Fprintf(&line, " category=%s", event.Category)
	}
	fmt.Fprintf(&line, " actor=%s", formatEntity(event.Actor))
	if event.TraceID != "" {
		fmt.Fprintf(&line, " trace=%s", event.TraceID)
	}
	if event.RequestID != "" {
		fmt.Fprintf(&line, " request=%s", event.RequestID)
	}
	line.WriteString(formatTargets(event.Targets))
	line.WriteString(formatPayload(event.Payload))
	s.logger.Print(line.String())
	return nil
}

func (s *ConsoleSink) Close(context.Context) error {
	return nil
}

func formatEntity(ref logging.EntityRef) string {
	if ref.ID == "" {
		return string(ref.Kind)
	}
	if ref.Kind == "" {
		return ref.ID
	}
	return fmt.Sprintf("%s:%s", ref.Kind, ref.ID)
}

func formatTargets(targets []logging.EntityRef) string {
	if len(targets) == 0 {
		return ""
	}
	parts := make([]string, 0, len(targets))
	for _, target := range targets {
		parts = append(parts, formatEntity(target))
	}
	return fmt.Sprintf(" targets=%s", strings.Join(parts, ","))
}

func formatPayload(payload any) string {
	if payload == nil {
		return ""
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf(" payload=%v", payload)
	}
	return fmt.Sprintf(" payload=%s", data)
}
