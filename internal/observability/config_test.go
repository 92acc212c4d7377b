package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"decharge/gateway/internal/telemetry"
)

func env(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestFromEnv(t *testing.T) {
	require.False(t, FromEnv(env(nil), nil).EnablePprof)
	require.True(t, FromEnv(env(map[string]string{"ENABLE_PPROF": "true"}), nil).EnablePprof)

	var logged []string
	logger := telemetry.LoggerFunc(func(format string, args ...any) { logged = append(logged, format) })
	require.False(t, FromEnv(env(map[string]string{"ENABLE_PPROF": "loud"}), logger).EnablePprof)
	require.Len(t, logged, 1)
}

func TestMountOnlyWhenEnabled(t *testing.T) {
	gin.SetMode(gin.ReleaseMode)
	for _, enabled := range []bool{false, true} {
		router := gin.New()
		Config{EnablePprof: enabled}.Mount(router)

		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/debug/pprof/cmdline", nil))
		if enabled {
			require.Equal(t, http.StatusOK, resp.Code)
		} else {
			require.Equal(t, http.StatusNotFound, resp.Code)
		}
	}
}
