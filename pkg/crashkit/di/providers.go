// Package di wires a Client from a configuration file with google/wire.
package di

import (
	"os"

	"github.com/google/wire"
	"github.com/rs/zerolog"

	"github.com/strongdm/ai-crashkit/pkg/crashkit"
	"github.com/strongdm/ai-crashkit/pkg/crashkit/client"
	"github.com/strongdm/ai-crashkit/pkg/crashkit/config"
	httpdeliverer "github.com/strongdm/ai-crashkit/pkg/crashkit/deliverers/http"
)

// ConfigPath is the YAML file to load. Empty loads defaults and environment.
type ConfigPath string

// ProviderSet builds a *client.Client delivering over HTTP.
var ProviderSet = wire.NewSet(
	ProvideConfig,
	ProvideLogger,
	ProvideHTTPDeliverer,
	wire.Bind(new(crashkit.Deliverer), new(*httpdeliverer.Deliverer)),
	ProvideClient,
)

// ProvideConfig loads and validates the configuration.
func ProvideConfig(path ConfigPath) (*config.Config, error) {
	return config.Load(string(path))
}

// ProvideLogger builds the root logger, writing to stderr.
func ProvideLogger(cfg *config.Config) zerolog.Logger {
	return config.NewLogger(cfg.Logger, os.Stderr)
}

// ProvideHTTPDeliverer builds the HTTP deliverer from the delivery settings.
func ProvideHTTPDeliverer(cfg *config.Config, logger zerolog.Logger) *httpdeliverer.Deliverer {
	return httpdeliverer.New(
		httpdeliverer.WithTimeout(cfg.Delivery.RequestTimeout),
		httpdeliverer.WithCompression(cfg.Delivery.Compress),
		httpdeliverer.WithLogger(logger),
	)
}

// ProvideClient wires the client around deliverer.
func ProvideClient(cfg *config.Config, deliverer crashkit.Deliverer, logger zerolog.Logger) (*client.Client, error) {
	return client.New(cfg, client.WithDeliverer(deliverer), client.WithLogger(logger))
}
