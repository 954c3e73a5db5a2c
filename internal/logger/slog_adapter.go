package logger

import (
	"context"
	"log/slog"
	"strings"
)

// NewSlogHandler returns a slog.Handler that writes through l. Libraries that
// accept a *slog.Logger (the websocket connectors, for one) log into the same
// sink as the rest of the client. A nil l yields nil.
func NewSlogHandler(l *Logger) slog.Handler {
	if l == nil {
		return nil
	}
	return &slogHandler{log: l}
}

// NewSlog wraps l in a *slog.Logger.
func NewSlog(l *Logger) *slog.Logger {
	if l == nil {
		l = Global()
	}
	return slog.New(NewSlogHandler(l))
}

type slogHandler struct {
	log    *Logger
	groups []string
	attrs  []slog.Attr
}

func (h *slogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return toLevel(level) >= h.log.GetLevel()
}

func (h *slogHandler) Handle(_ context.Context, record slog.Record) error {
	var b strings.Builder
	b.WriteString(record.Message)

	for _, attr := range h.attrs {
		writeAttr(&b, attr, nil)
	}
	record.Attrs(func(attr slog.Attr) bool {
		writeAttr(&b, attr, h.groups)
		return true
	})

	msg := strings.TrimSpace(b.String())
	switch toLevel(record.Level) {
	case LevelError:
		h.log.Error("%s", msg)
	case LevelWarn:
		h.log.Warn("%s", msg)
	case LevelInfo:
		h.log.Info("%s", msg)
	default:
		h.log.Debug("%s", msg)
	}
	return nil
}

func (h *slogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	qualified := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	qualified = append(qualified, h.attrs...)
	for _, attr := range attrs {
		if len(h.groups) > 0 {
			attr.Key = strings.Join(append(append([]string(nil), h.groups...), attr.Key), ".")
		}
		qualified = append(qualified, attr)
	}
	return &slogHandler{log: h.log, groups: h.groups, attrs: qualified}
}

func (h *slogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	groups := append(append([]string(nil), h.groups...), name)
	return &slogHandler{log: h.log, groups: groups, attrs: h.attrs}
}

func toLevel(level slog.Level) Level {
	switch {
	case level >= slog.LevelError:
		return LevelError
	case level >= slog.LevelWarn:
		return LevelWarn
	case level >= slog.LevelInfo:
		return LevelInfo
	default:
		return LevelDebug
	}
}

func writeAttr(b *strings.Builder, attr slog.Attr, groups []string) {
	if attr.Equal(slog.Attr{}) {
		return
	}
	if attr.Value.Kind() == slog.KindGroup {
		nested := append(append([]string(nil), groups...), attr.Key)
		for _, inner := range attr.Value.Group() {
			writeAttr(b, inner, nested)
		}
		return
	}

	key := attr.Key
	if key == "" {
		key = "attr"
	}
	b.WriteByte(' ')
	b.WriteString(strings.Join(append(append([]string(nil), groups...), key), "."))
	b.WriteByte('=')
	b.WriteString(attr.Value.String())
}
