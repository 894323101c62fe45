package logger

import (
	"fmt"

	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"
)

// New returns the zap backed logger for the given environment. An empty
// environment logs like production.
func New(env sdklogging.LogLevel) (Logger, error) {
	switch env {
	case "":
		env = sdklogging.Production
	case sdklogging.Production, sdklogging.Development:
	default:
		return nil, fmt.Errorf("unknown log environment %q", env)
	}
	return sdklogging.NewZapLogger(env)
}
