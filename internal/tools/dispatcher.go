// Package tools routes the model's tool invocations to their handlers and
// formats results for re-ingestion. Tool failures become text, never errors:
// the model sees the failure string and decides what to tell the user.
package tools

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"botd/internal/metrics"
	"botd/pkg/types"
)

// Dispatcher pattern-matches tool calls. New tools are added by extending
// types.ToolCall and the switch in Run together.
type Dispatcher struct {
	weather *weatherClient
	log     zerolog.Logger
}

// Options configures the dispatcher; zero values select production
// endpoints.
type Options struct {
	// Base URLs, overridable for tests.
	GeocodingBaseURL string
	ForecastBaseURL  string
	HTTPClient       *http.Client
	Logger           zerolog.Logger
}

// New builds a dispatcher.
func New(opts Options) *Dispatcher {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Dispatcher{
		weather: newWeatherClient(client, opts.GeocodingBaseURL, opts.ForecastBaseURL),
		log:     opts.Logger,
	}
}

// Run executes one tool call and returns its textual output. Failures are
// stringified; Run never panics and never returns an error.
func (d *Dispatcher) Run(ctx context.Context, call types.ToolCall) string {
	switch {
	case call.GetWeather != nil:
		out, err := d.weather.current(ctx, call.GetWeather.Location)
		if err != nil {
			metrics.ToolRuns.WithLabelValues("GetWeather", "error").Inc()
			d.log.Warn().Str("location", call.GetWeather.Location).Err(err).
				Msg("weather lookup failed")
			return "Weather unavailable: " + err.Error()
		}
		metrics.ToolRuns.WithLabelValues("GetWeather", "ok").Inc()
		return out
	default:
		metrics.ToolRuns.WithLabelValues(call.Name(), "unknown").Inc()
		return "Unknown tool call"
	}
}
