package logger

import "go.uber.org/zap"

// New builds the process logger: JSON in production, console otherwise.
// The returned cleanup flushes buffered entries.
func New(isProd bool) (*zap.Logger, func() error, error) {
	var (
		log *zap.Logger
		err error
	)

	if isProd {
		log, err = zap.NewProduction()
	} else {
		log, err = zap.NewDevelopment()
	}
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() error { return log.Sync() }
	return log, cleanup, nil
}
