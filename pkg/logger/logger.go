package logger

import (
	"go.uber.org/zap"
)

// NewLogger builds the process logger. Local development gets the
// human-readable console encoder; everything else logs JSON.
func NewLogger(env string) *zap.Logger {
	var (
		l   *zap.Logger
		err error
	)
	if env == "local" {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	return l
}
