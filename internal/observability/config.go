package observability

import (
	"net/http/pprof"
	"strconv"

	"github.com/gin-gonic/gin"

	"decharge/gateway/internal/telemetry"
)

// Config captures opt-in diagnostics that wire into the gateway router.
type Config struct {
	EnablePprof bool
}

// FromEnv reads ENABLE_PPROF; an unparsable value is logged and left off.
func FromEnv(getenv func(string) string, logger telemetry.Logger) Config {
	var cfg Config
	raw := getenv("ENABLE_PPROF")
	if raw == "" {
		return cfg
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		if logger != nil {
			logger.Printf("invalid ENABLE_PPROF=%q: %v", raw, err)
		}
		return cfg
	}
	cfg.EnablePprof = value
	return cfg
}

// Mount adds the enabled diagnostics routes under /debug.
func (c Config) Mount(router gin.IRouter) {
	if !c.EnablePprof {
		return
	}
	debug := router.Group("/debug/pprof")
	debug.GET("/", gin.WrapF(pprof.Index))
	debug.GET("/cmdline", gin.WrapF(pprof.Cmdline))
	debug.GET("/profile", gin.WrapF(pprof.Profile))
	debug.GET("/symbol", gin.WrapF(pprof.Symbol))
	debug.POST("/symbol", gin.WrapF(pprof.Symbol))
	debug.GET("/trace", gin.WrapF(pprof.Trace))
	debug.GET("/:profile", func(ctx *gin.Context) {
		pprof.Handler(ctx.Param("profile")).ServeHTTP(ctx.Writer, ctx.Request)
	})
}
