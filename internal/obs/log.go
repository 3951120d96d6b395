package obs

import (
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

var (
	loggerOnce sync.Once
	logger     *slog.Logger
	sink       = &swapWriter{w: os.Stdout}
)

// swapWriter lets tests redirect the shared logger without rebuilding it.
type swapWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *swapWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// Logger returns the shared structured logger used across the service.
// Lines are JSON objects keyed ts, level, msg plus attributes.
func Logger() *slog.Logger {
	loggerOnce.Do(func() {
		logger = slog.New(slog.NewJSONHandler(sink, &slog.HandlerOptions{
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if len(groups) == 0 && a.Key == slog.TimeKey {
					return slog.String("ts", a.Value.Time().UTC().Format(time.RFC3339Nano))
				}
				return a
			},
		}))
	})
	return logger
}

// SetLogOutput redirects the shared logger and returns the previous sink.
func SetLogOutput(w io.Writer) io.Writer {
	sink.mu.Lock()
	defer sink.mu.Unlock()
	prev := sink.w
	sink.w = w
	return prev
}

// LogRequest emits a structured access-log line with common HTTP fields.
func LogRequest(entry map[string]any) {
	attrs := make([]any, 0, len(entry))
	for k, v := range entry {
		attrs = append(attrs, slog.Any(k, v))
	}
	Logger().Info("http_request", attrs...)
}
