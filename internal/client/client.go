// Package client consumes a gateway: REST reads, ingestion posts and a
// reconciler that keeps a local replica in sync with the live stream.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"decharge/gateway/internal/model"
	"decharge/gateway/internal/net/proto"
)

// StatusError reports a non-2xx gateway answer.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: gateway answered %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Client talks to one gateway over HTTP.
type Client struct {
	base *url.URL
	http *http.Client
}

// New returns a client for baseURL. A nil httpClient uses http.DefaultClient.
func New(baseURL string, httpClient *http.Client) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("gateway url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("gateway url %q: scheme must be http or https", baseURL)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{base: base, http: httpClient}, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = c.base.Path + path
	u.RawQuery = query.Encode()
	return u.String()
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Method: req.Method, Path: req.URL.Path, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode: %w", req.Method, req.URL.Path, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, query), nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

// Dashboard reads the aggregate from /api/dashboard.
func (c *Client) Dashboard(ctx context.Context) (model.Dashboard, error) {
	var dashboard model.Dashboard
	err := c.get(ctx, "/api/dashboard", nil, &dashboard)
	return dashboard, err
}

// Stations returns every station.
func (c *Client) Stations(ctx context.Context) ([]model.Station, error) {
	var body struct {
		Stations []model.Station `json:"stations"`
	}
	err := c.get(ctx, "/api/stations", nil, &body)
	return body.Stations, err
}

// Sessions returns up to limit sessions, most recently updated first.
func (c *Client) Sessions(ctx context.Context, limit int) ([]model.Session, error) {
	var body struct {
		Sessions []model.Session `json:"sessions"`
	}
	err := c.get(ctx, "/api/sessions", url.Values{"limit": {strconv.Itoa(limit)}}, &body)
	return body.Sessions, err
}

// Marketplace returns the catalog with current inventory.
func (c *Client) Marketplace(ctx context.Context) ([]model.MarketplaceItem, error) {
	var body struct {
		Items []model.MarketplaceItem `json:"items"`
	}
	err := c.get(ctx, "/api/marketplace", nil, &body)
	return body.Items, err
}

// World returns every claimed plot.
func (c *Client) World(ctx context.Context) ([]model.WorldPlot, error) {
	var body struct {
		Plots []model.WorldPlot `json:"plots"`
	}
	err := c.get(ctx, "/api/world", nil, &body)
	return body.Plots, err
}

// Events returns the recent-event log. Entries the client cannot decode are
// skipped.
func (c *Client) Events(ctx context.Context) ([]proto.Event, error) {
	var body struct {
		Events proto.EventList `json:"events"`
	}
	err := c.get(ctx, "/api/events", nil, &body)
	return body.Events, err
}

// IngestResponse is the gateway's answer to an accepted event.
type IngestResponse struct {
	OK        bool   `json:"ok"`
	SessionID string `json:"sessionId,omitempty"`
}

// Ingest posts one flat ingestion body, for example
// {"type":"station_status","stationId":"a","status":"online"}.
func (c *Client) Ingest(ctx context.Context, event any) (IngestResponse, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return IngestResponse{}, fmt.Errorf("encode ingest body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/ingest", nil), bytes.NewReader(data))
	if err != nil {
		return IngestResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	var resp IngestResponse
	err = c.do(req, &resp)
	return resp, err
}

// Initial is the result of the parallel bootstrap reads.
type Initial struct {
	Dashboard   model.Dashboard
	Stations    []model.Station
	Sessions    []model.Session
	Marketplace []model.MarketplaceItem
	World       []model.WorldPlot
	Events      []proto.Event
}

// Fetch runs every bootstrap read concurrently. Any failure cancels the rest
// and no partial result is returned.
func (c *Client) Fetch(ctx context.Context, sessionLimit int) (Initial, error) {
	var initial Initial
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		initial.Dashboard, err = c.Dashboard(ctx)
		return err
	})
	g.Go(func() (err error) {
		initial.Stations, err = c.Stations(ctx)
		return err
	})
	g.Go(func() (err error) {
		initial.Sessions, err = c.Sessions(ctx, sessionLimit)
		return err
	})
	g.Go(func() (err error) {
		initial.Marketplace, err = c.Marketplace(ctx)
		return err
	})
	g.Go(func() (err error) {
		initial.World, err = c.World(ctx)
		return err
	})
	g.Go(func() (err error) {
		initial.Events, err = c.Events(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Initial{}, err
	}
	return initial, nil
}
