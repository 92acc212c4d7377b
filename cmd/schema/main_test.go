package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteSchemaCoversEveryIngestType(t *testing.T) {
	out := filepath.Join(t.TempDir(), "nested", "ingest.schema.json")
	require.NoError(t, writeSchema(out, buildSchema()))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var doc struct {
		OneOf []struct {
			Title      string                     `json:"title"`
			Properties map[string]json.RawMessage `json:"properties"`
		} `json:"oneOf"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))

	titles := make([]string, 0, len(doc.OneOf))
	for _, variant := range doc.OneOf {
		titles = append(titles, variant.Title)
		require.Contains(t, variant.Properties, "type")
	}
	require.Equal(t, []string{
		"session_start", "session_update", "session_complete",
		"station_status", "points_purchase", "world_plot_claim",
	}, titles)

	_, err = os.Stat(out + ".tmp")
	require.True(t, os.IsNotExist(err))
}
