package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFindViolations(t *testing.T) {
	input := `{"ImportPath":"decharge/gateway/internal/net","Imports":["decharge/gateway/internal/store","decharge/gateway/internal/client"]}
{"ImportPath":"decharge/gateway/internal/hub","Imports":["decharge/gateway/internal/clientele"]}
{"ImportPath":"decharge/gateway/internal/app","Imports":["decharge/gateway/internal/simulator/fake"]}`

	violations, err := findViolations(strings.NewReader(input))
	require.NoError(t, err)
	require.Equal(t, []string{
		"decharge/gateway/internal/app -> decharge/gateway/internal/simulator/fake",
		"decharge/gateway/internal/net -> decharge/gateway/internal/client",
	}, violations)
}
