package logger

import (
	"log/slog"
	"os"
)

// New returns the process-wide structured logger. Text output on stdout;
// switch the handler here if log aggregation needs JSON.
func New() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}
