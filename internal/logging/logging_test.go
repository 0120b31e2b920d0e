package logging

import (
	"context"
	"testing"
)

type recordingLogger struct {
	noopLogger
	fields map[string]any
}

func (r *recordingLogger) WithFields(fields map[string]any) Logger {
	r.fields = fields
	return r
}

type stubProvider struct {
	names []string
}

func (s *stubProvider) GetLogger(name string) Logger {
	s.names = append(s.names, name)
	return nil
}

func TestModuleLogger(t *testing.T) {
	if ModuleLogger(nil, CatalogModule) == nil {
		t.Fatalf("nil provider should yield a no-op logger")
	}
	p := &stubProvider{}
	l := ModuleLogger(p, "")
	if l == nil || len(p.names) != 1 || p.names[0] != RootModule {
		t.Fatalf("expected root module lookup, got %v", p.names)
	}
	l.WithContext(context.Background()).Info("ok")
}

func TestWithFieldsCopies(t *testing.T) {
	rec := &recordingLogger{}
	fields := map[string]any{"batch_id": "b1"}
	WithFields(rec, fields)
	fields["batch_id"] = "changed"
	if rec.fields["batch_id"] != "b1" {
		t.Fatalf("fields should be copied, got %v", rec.fields)
	}
	if WithFields(NoOp(), nil) == nil {
		t.Fatalf("expected logger back")
	}
}

func TestNewGoLogger(t *testing.T) {
	if _, err := NewGoLogger(Options{Format: "xml"}); err == nil {
		t.Fatalf("expected unsupported format error")
	}
	p, err := NewGoLogger(Options{Level: "debug", Format: "console"})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	l := p.GetLogger(ServerModule)
	l.Debug("request", "status", 200)
	WithFields(l, map[string]any{"request_id": "r1"}).Info("tagged")
}
