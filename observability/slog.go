package observability

import (
	"context"
	"errors"
	"log/slog"
	"slices"
)

// Identity keys lead every record in this order so lines for one session
// line up when grepped.
const (
	SessionKey   = "session_id"
	BenchmarkKey = "benchmark"
	ErrorKey     = "error"
)

var identityKeys = []string{SessionKey, BenchmarkKey}

// SlogObserver emits events to a slog.Logger. The event type becomes the log
// message and the level maps via SlogLevel. Attributes are the source, the
// identity keys present in Data, then the remaining Data keys sorted by name.
// A string under ErrorKey is logged as an error value.
type SlogObserver struct {
	logger *slog.Logger
}

// NewSlogObserver creates a SlogObserver that emits to the given logger.
func NewSlogObserver(logger *slog.Logger) *SlogObserver {
	return &SlogObserver{logger: logger}
}

func (o *SlogObserver) OnEvent(ctx context.Context, event Event) {
	level := event.Level.SlogLevel()
	if !o.logger.Enabled(ctx, level) {
		return
	}

	attrs := make([]slog.Attr, 0, len(event.Data)+1)
	attrs = append(attrs, slog.String("source", event.Source))

	for _, k := range identityKeys {
		if v, ok := event.Data[k]; ok {
			attrs = append(attrs, slog.Any(k, v))
		}
	}

	rest := make([]string, 0, len(event.Data))
	for k := range event.Data {
		if !slices.Contains(identityKeys, k) {
			rest = append(rest, k)
		}
	}
	slices.Sort(rest)

	for _, k := range rest {
		v := event.Data[k]
		if s, ok := v.(string); ok && k == ErrorKey {
			v = errors.New(s)
		}
		attrs = append(attrs, slog.Any(k, v))
	}

	o.logger.LogAttrs(ctx, level, string(event.Type), attrs...)
}
