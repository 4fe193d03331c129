package logger

import (
	"go.uber.org/zap"
)

type Sugared = *zap.SugaredLogger

func New(env string) Sugared {
	var z *zap.Logger
	if env == "prod" {
		z, _ = zap.NewProduction()
	} else {
		z, _ = zap.NewDevelopment()
	}
	return z.Sugar().With("service", "gatehouse")
}

// Named returns a child logger tagged with a component name.
func Named(log Sugared, component string) Sugared {
	if log == nil {
		return zap.NewNop().Sugar()
	}
	return log.Named(component)
}
