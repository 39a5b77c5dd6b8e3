// Package telemetry provides semantic conventions for Agora observability.
package telemetry

import (
	"os"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Semantic convention attribute keys for Agora-specific telemetry.
// Following OpenTelemetry naming conventions: namespace.attribute_name

const (
	// AttrOperation differentiates engine operations (register, purchase, ...).
	AttrOperation = attribute.Key("operation")
	// AttrResult records the outcome of an operation (committed, rejected, ...).
	AttrResult = attribute.Key("result")
	// AttrErrorCode categorizes rejections by ledger error code.
	AttrErrorCode = attribute.Key("error.code")
	// AttrEnvironment specifies the deployment environment (dev/staging/prod) for every metric.
	AttrEnvironment = attribute.Key("environment")
)

// Environment returns the deployment environment advertised on metrics.
// Defaults to dev when AGORA_ENVIRONMENT is unset.
func Environment() string {
	env := strings.ToLower(strings.TrimSpace(os.Getenv("AGORA_ENVIRONMENT")))
	if env == "" {
		return "dev"
	}
	return env
}
