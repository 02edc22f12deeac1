package dispatch

import (
	"time"

	"github.com/codefionn/httpbridge/internal/logger"
)

// AccessLog receives one record per completed request
type AccessLog interface {
	Access(method, path string, status int, elapsed time.Duration)
}

// NewLogSink returns an AccessLog writing through the given logger at info
// level. A nil logger falls back to the global logger.
func NewLogSink(l *logger.Logger) AccessLog {
	if l == nil {
		l = logger.Global()
	}
	return &logSink{log: l}
}

type logSink struct {
	log *logger.Logger
}

func (s *logSink) Access(method, path string, status int, elapsed time.Duration) {
	s.log.Info("%s %s %d %s", method, path, status, elapsed)
}
