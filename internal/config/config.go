// Package config resolves gateway and viewer settings from defaults, an
// optional YAML file and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"decharge/gateway/internal/model"
	"decharge/gateway/internal/telemetry"
	"decharge/gateway/logging"
)

const (
	DefaultHost             = "0.0.0.0"
	DefaultPort             = 8787
	DefaultGatewayURL       = "http://localhost:8787"
	DefaultSubscriberBuffer = 256
	DefaultRecentEvents     = 200
	DefaultReconnectDelay   = 1500 * time.Millisecond
)

type Server struct {
	Host             string
	Port             int
	SubscriberBuffer int
	RecentEvents     int
	Catalog          []model.MarketplaceItem
	Logging          logging.Config
}

// Addr is the listen address.
func (s Server) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

type Client struct {
	GatewayURL     string
	StreamURL      string
	ReconnectDelay time.Duration
}

type Config struct {
	Server Server
	Client Client
}

// Default returns the built-in settings.
func Default() Config {
	logCfg := logging.DefaultConfig()
	return Config{
		Server: Server{
			Host:             DefaultHost,
			Port:             DefaultPort,
			SubscriberBuffer: DefaultSubscriberBuffer,
			RecentEvents:     DefaultRecentEvents,
			Catalog:          DefaultCatalog(),
			Logging:          logCfg,
		},
		Client: Client{
			GatewayURL:     DefaultGatewayURL,
			ReconnectDelay: DefaultReconnectDelay,
		},
	}
}

// file mirrors the optional YAML document named by GATEWAY_CONFIG.
type file struct {
	Host             string                  `yaml:"host"`
	Port             int                     `yaml:"port" validate:"omitempty,min=1,max=65535"`
	LogLevel         string                  `yaml:"logLevel" validate:"omitempty,oneof=debug info warn error"`
	LogSinks         []string                `yaml:"logSinks" validate:"dive,oneof=console json"`
	LogJSONPath      string                  `yaml:"logJsonPath"`
	SubscriberBuffer int                     `yaml:"subscriberBuffer" validate:"omitempty,min=1"`
	RecentEvents     int                     `yaml:"recentEvents" validate:"omitempty,min=1"`
	GatewayURL       string                  `yaml:"gatewayUrl" validate:"omitempty,url"`
	StreamURL        string                  `yaml:"streamUrl" validate:"omitempty,url"`
	ReconnectDelay   time.Duration           `yaml:"reconnectDelay"`
	Marketplace      []model.MarketplaceItem `yaml:"marketplace"`
}

type catalogItem struct {
	ID        string `validate:"required"`
	Inventory int    `validate:"min=0"`
}

var validate = validator.New()

// Load resolves the configuration. getenv is usually os.Getenv; invalid
// environment values are logged and ignored, while an unreadable or invalid
// config file is an error.
func Load(getenv func(string) string, logger telemetry.Logger) (Config, error) {
	if logger == nil {
		logger = telemetry.Discard()
	}
	cfg := Default()

	if path := strings.TrimSpace(getenv("GATEWAY_CONFIG")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := cfg.overlay(data); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	}

	cfg.applyEnv(getenv, logger)
	if cfg.Client.StreamURL == "" {
		stream, err := StreamURL(cfg.Client.GatewayURL)
		if err != nil {
			return Config{}, err
		}
		cfg.Client.StreamURL = stream
	}
	return cfg, nil
}

func (c *Config) overlay(data []byte) error {
	var doc file
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	if err := validate.Struct(doc); err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	seen := make(map[string]struct{}, len(doc.Marketplace))
	for i, item := range doc.Marketplace {
		if err := validate.Struct(catalogItem{ID: item.ID, Inventory: item.Inventory}); err != nil {
			return fmt.Errorf("marketplace[%d]: %w", i, err)
		}
		if _, dup := seen[item.ID]; dup {
			return fmt.Errorf("marketplace[%d]: duplicate id %q", i, item.ID)
		}
		seen[item.ID] = struct{}{}
	}

	if doc.Host != "" {
		c.Server.Host = doc.Host
	}
	if doc.Port != 0 {
		c.Server.Port = doc.Port
	}
	if doc.LogLevel != "" {
		severity, _ := logging.ParseSeverity(doc.LogLevel)
		c.Server.Logging.MinimumSeverity = severity
	}
	if len(doc.LogSinks) > 0 {
		c.Server.Logging.EnabledSinks, _ = logging.ParseSinks(strings.Join(doc.LogSinks, ","))
	}
	if doc.LogJSONPath != "" {
		c.Server.Logging.JSON.FilePath = doc.LogJSONPath
	}
	if doc.SubscriberBuffer != 0 {
		c.Server.SubscriberBuffer = doc.SubscriberBuffer
	}
	if doc.RecentEvents != 0 {
		c.Server.RecentEvents = doc.RecentEvents
	}
	if doc.GatewayURL != "" {
		c.Client.GatewayURL = doc.GatewayURL
	}
	if doc.StreamURL != "" {
		c.Client.StreamURL = doc.StreamURL
	}
	if doc.ReconnectDelay > 0 {
		c.Client.ReconnectDelay = doc.ReconnectDelay
	}
	if len(doc.Marketplace) > 0 {
		c.Server.Catalog = doc.Marketplace
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string, logger telemetry.Logger) {
	if raw := getenv("HOST"); raw != "" {
		c.Server.Host = raw
	}
	if raw := getenv("PORT"); raw != "" {
		// 0 asks the kernel for a free port.
		if value, err := strconv.Atoi(raw); err == nil && value >= 0 && value <= 65535 {
			c.Server.Port = value
		} else {
			logger.Printf("invalid PORT=%q, keeping %d", raw, c.Server.Port)
		}
	}
	if raw := getenv("LOG_LEVEL"); raw != "" {
		if severity, ok := logging.ParseSeverity(raw); ok {
			c.Server.Logging.MinimumSeverity = severity
		} else {
			logger.Printf("invalid LOG_LEVEL=%q, keeping %s", raw, c.Server.Logging.MinimumSeverity)
		}
	}
	if raw := getenv("LOG_SINKS"); raw != "" {
		sinks, unknown := logging.ParseSinks(raw)
		for _, name := range unknown {
			logger.Printf("ignoring unknown log sink %q", name)
		}
		if len(sinks) > 0 {
			c.Server.Logging.EnabledSinks = sinks
		}
	}
	if raw := getenv("LOG_JSON_PATH"); raw != "" {
		c.Server.Logging.JSON.FilePath = raw
	}
	if raw := getenv("SUBSCRIBER_BUFFER"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			c.Server.SubscriberBuffer = value
		} else {
			logger.Printf("invalid SUBSCRIBER_BUFFER=%q, keeping %d", raw, c.Server.SubscriberBuffer)
		}
	}
	if raw := getenv("GATEWAY_URL"); raw != "" {
		if _, err := url.ParseRequestURI(raw); err == nil {
			c.Client.GatewayURL = strings.TrimRight(raw, "/")
		} else {
			logger.Printf("invalid GATEWAY_URL=%q: %v", raw, err)
		}
	}
	if raw := getenv("GATEWAY_WS_URL"); raw != "" {
		c.Client.StreamURL = raw
	}
}

// StreamURL derives the websocket endpoint from a gateway base URL.
func StreamURL(gatewayURL string) (string, error) {
	parsed, err := url.Parse(gatewayURL)
	if err != nil {
		return "", fmt.Errorf("gateway url: %w", err)
	}
	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", errors.New("gateway url: scheme must be http or https")
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/") + "/stream"
	parsed.RawQuery = ""
	return parsed.String(), nil
}
