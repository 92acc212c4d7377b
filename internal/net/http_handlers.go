package net

import (
	"context"
	"errors"
	"io"
	nethttp "net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"decharge/gateway/internal/bootstrap"
	"decharge/gateway/internal/ingest"
	"decharge/gateway/internal/model"
	"decharge/gateway/internal/net/intake"
	"decharge/gateway/internal/net/proto"
	"decharge/gateway/internal/observability"
	"decharge/gateway/internal/store"
	"decharge/gateway/internal/telemetry"
	"decharge/gateway/logging"
)

const (
	defaultSessionLimit = 50
	maxSessionLimit     = 200
	eventsLimit         = 100
	maxIngestBody       = 1 << 20

	requestIDHeader = "X-Request-ID"
)

// Ingester applies one raw ingestion body.
type Ingester interface {
	Ingest(ctx context.Context, body []byte) (intake.Result, error)
}

type HTTPHandlerConfig struct {
	Store    *store.Store
	Ingester Ingester
	// Stream serves the websocket endpoint at /stream.
	Stream nethttp.Handler
	// Metrics serves the Prometheus exposition at /metrics when set.
	Metrics       nethttp.Handler
	Observability observability.Config
	Logger        telemetry.Logger
	Now           func() time.Time
}

type errorBody struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// NewHTTPHandler builds the gateway's HTTP surface.
func NewHTTPHandler(cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.Discard()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	s := cfg.Store

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), cors(), requestID())

	api := router.Group("/api")
	api.GET("/health", func(c *gin.Context) {
		c.JSON(nethttp.StatusOK, gin.H{"status": "ok", "time": now().UnixMilli()})
	})

	api.GET("/dashboard", func(c *gin.Context) {
		var dashboard model.Dashboard
		s.View(func(r store.Reader) { dashboard = bootstrap.Dashboard(r) })
		c.JSON(nethttp.StatusOK, dashboard)
	})

	api.GET("/stations", func(c *gin.Context) {
		var stations []model.Station
		s.View(func(r store.Reader) { stations = r.Stations() })
		c.JSON(nethttp.StatusOK, gin.H{"stations": stations})
	})

	api.GET("/sessions", func(c *gin.Context) {
		limit := defaultSessionLimit
		if raw, ok := c.GetQuery("limit"); ok {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 || parsed > maxSessionLimit {
				c.JSON(nethttp.StatusBadRequest, errorBody{
					Error: "invalid_query",
					Details: intake.ValidationError{
						FormErrors:  []string{},
						FieldErrors: map[string][]string{"limit": {"limit must be between 1 and 200"}},
					},
				})
				return
			}
			limit = parsed
		}
		var sessions []model.Session
		s.View(func(r store.Reader) { sessions = r.RecentSessions(limit) })
		c.JSON(nethttp.StatusOK, gin.H{"sessions": sessions})
	})

	api.GET("/marketplace", func(c *gin.Context) {
		var items []model.MarketplaceItem
		s.View(func(r store.Reader) { items = r.Marketplace() })
		c.JSON(nethttp.StatusOK, gin.H{"items": items})
	})

	api.GET("/world", func(c *gin.Context) {
		var plots []model.WorldPlot
		s.View(func(r store.Reader) { plots = r.World() })
		c.JSON(nethttp.StatusOK, gin.H{"plots": plots})
	})

	api.GET("/events", func(c *gin.Context) {
		var events []proto.Event
		s.View(func(r store.Reader) { events = r.RecentEvents(eventsLimit) })
		c.JSON(nethttp.StatusOK, gin.H{"events": proto.EventList(events)})
	})

	api.GET("/bootstrap", func(c *gin.Context) {
		var event proto.Bootstrap
		s.View(func(r store.Reader) { event = bootstrap.Build(r) })
		data, err := proto.Encode(event)
		if err != nil {
			logger.Printf("failed to encode bootstrap: %v", err)
			c.JSON(nethttp.StatusInternalServerError, errorBody{Error: "internal_error"})
			return
		}
		c.Data(nethttp.StatusOK, "application/json", data)
	})

	router.POST("/ingest", func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxIngestBody))
		if err != nil {
			c.JSON(nethttp.StatusBadRequest, errorBody{Error: "invalid_payload"})
			return
		}
		result, err := cfg.Ingester.Ingest(c.Request.Context(), body)
		if err != nil {
			status, payload := ingestError(err)
			if status == nethttp.StatusInternalServerError {
				logger.Printf("ingest failed: %v", err)
			}
			c.JSON(status, payload)
			return
		}
		if result.SessionID != "" {
			c.JSON(nethttp.StatusOK, gin.H{"ok": true, "sessionId": result.SessionID})
			return
		}
		c.JSON(nethttp.StatusOK, gin.H{"ok": true})
	})

	if cfg.Stream != nil {
		router.GET("/stream", gin.WrapH(cfg.Stream))
	}
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics))
	}
	cfg.Observability.Mount(router)

	return router
}

func ingestError(err error) (int, errorBody) {
	var (
		verr     *intake.ValidationError
		notFound *ingest.NotFoundError
		conflict *ingest.ConflictError
	)
	switch {
	case errors.As(err, &verr):
		return nethttp.StatusBadRequest, errorBody{Error: "invalid_payload", Details: verr}
	case errors.As(err, &notFound):
		return nethttp.StatusNotFound, errorBody{Error: notFound.Code}
	case errors.As(err, &conflict):
		return nethttp.StatusConflict, errorBody{Error: conflict.Code}
	default:
		return nethttp.StatusInternalServerError, errorBody{Error: "internal_error"}
	}
}

// requestID tags each request context with the caller's X-Request-ID, or a
// fresh one, and echoes it back. Structured ingestion events carry it.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// cors reflects the caller's origin, as every viewer and producer is trusted.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			header := c.Writer.Header()
			header.Set("Access-Control-Allow-Origin", origin)
			header.Set("Access-Control-Allow-Credentials", "true")
			header.Set("Access-Control-Allow-Methods", "GET,HEAD,POST,OPTIONS")
			header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
			header.Set("Access-Control-Expose-Headers", "X-Request-ID")
			header.Add("Vary", "Origin")
		}
		if c.Request.Method == nethttp.MethodOptions {
			c.AbortWithStatus(nethttp.StatusNoContent)
			return
		}
		c.Next()
	}
}
