package telemetry

import (
	"context"
	"strings"
	"testing"
	"time"
)

func sampledContext() (context.Context, *Telemetry) {
	tel := &Telemetry{
		RequestID: "req-test",
		Op:        "test_op",
		startTime: time.Now(),
	}
	tel.Spans = append(tel.Spans, Span{ID: "s-root", Op: tel.Op})
	tel.spanStack = append(tel.spanStack, "s-root")
	return context.WithValue(context.Background(), ctxKeyType{}, tel), tel
}

func TestStartSpanNoTrace(t *testing.T) {
	// without a sampled trace both the open and close must be no-ops
	end := StartSpan(context.Background(), "store.save")
	end()
}

func TestStartSpanNesting(t *testing.T) {
	ctx, tel := sampledContext()

	endOuter := StartSpan(ctx, "outer")
	endInner := StartSpan(ctx, "inner")
	SetSpanData(ctx, "rows", 3)
	endInner()
	endOuter()

	if len(tel.Spans) != 3 {
		t.Fatalf("spans = %d, want root+outer+inner", len(tel.Spans))
	}
	outer, inner := tel.Spans[1], tel.Spans[2]
	if outer.ParentID != "s-root" {
		t.Fatalf("outer parent = %q", outer.ParentID)
	}
	if inner.ParentID != outer.ID {
		t.Fatalf("inner parent = %q, want %q", inner.ParentID, outer.ID)
	}
	if inner.Data["rows"] != 3 {
		t.Fatalf("inner data = %v", inner.Data)
	}
	if len(tel.spanStack) != 1 {
		t.Fatalf("stack depth = %d after closing both spans", len(tel.spanStack))
	}
}

func TestSetRequestOp(t *testing.T) {
	ctx, tel := sampledContext()
	SetRequestOp(ctx, "register_agent")
	if tel.Op != "register_agent" || tel.Spans[0].Op != "register_agent" {
		t.Fatalf("op override not applied: %+v", tel)
	}
}

func TestRenderTrace(t *testing.T) {
	_, tel := sampledContext()
	tel.Status = 200
	tel.Duration = 12
	tel.Spans = append(tel.Spans, Span{ID: "s-1", ParentID: "s-root", Op: "store.save", StartMs: 2, Duration: 4})

	out := string(renderTrace(tel))
	if !strings.Contains(out, "REQUEST req-test op=test_op") {
		t.Fatalf("header missing: %q", out)
	}
	if !strings.Contains(out, "- store.save id=s-1") {
		t.Fatalf("child span missing: %q", out)
	}

	// the comment fan-out hot path collapses to one line
	tel.Spans[1].Op = "notify.process_comment"
	out = string(renderTrace(tel))
	if !strings.HasPrefix(out, "REQ req-test op=process_comment") || strings.Contains(out, "\n") {
		t.Fatalf("compact form = %q", out)
	}
}

func TestSampleRateBounds(t *testing.T) {
	defer SetSampleRate(0.001)
	SetSampleRate(-1)
	if sampleRate != 0 {
		t.Fatalf("negative rate = %v", sampleRate)
	}
	SetSampleRate(2)
	if sampleRate != 1 {
		t.Fatalf("excess rate = %v", sampleRate)
	}
}
