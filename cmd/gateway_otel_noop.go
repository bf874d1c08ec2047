//go:build !otel

package cmd

import (
	"context"

	"github.com/tinychat-dev/tinychat/internal/config"
	"github.com/tinychat-dev/tinychat/internal/tracing"
)

// initOTelExporter is a no-op unless built with -tags otel.
func initOTelExporter(_ context.Context, _ *config.Config, _ *tracing.Collector) {}
