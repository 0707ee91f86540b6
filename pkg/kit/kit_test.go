package kit

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
)

func TestChain_Order(t *testing.T) {
	var calls []string
	mw := func(name string) Middleware {
		return func(next Endpoint) Endpoint {
			return func(ctx context.Context, req any) (any, error) {
				calls = append(calls, name)
				return next(ctx, req)
			}
		}
	}
	ep := Chain(mw("a"), mw("b"), mw("c"))(func(context.Context, any) (any, error) {
		calls = append(calls, "endpoint")
		return "ok", nil
	})

	resp, err := ep(context.Background(), nil)
	if err != nil || resp != "ok" {
		t.Fatalf("resp = %v, err = %v", resp, err)
	}
	want := "a,b,c,endpoint"
	if got := strings.Join(calls, ","); got != want {
		t.Errorf("call order = %s, want %s", got, want)
	}
}

func TestContext_Defaults(t *testing.T) {
	ctx := context.Background()
	if got := GetTransport(ctx); got != "http" {
		t.Errorf("default transport = %q, want http", got)
	}
	if got := GetRequestID(ctx); got != "" {
		t.Errorf("default request id = %q, want empty", got)
	}
	ctx = WithRequestID(WithTransport(ctx, "mcp"), "r1")
	if GetTransport(ctx) != "mcp" || GetRequestID(ctx) != "r1" {
		t.Errorf("transport=%q id=%q", GetTransport(ctx), GetRequestID(ctx))
	}
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	ep := Logging(logger, "lookup")(func(context.Context, any) (any, error) {
		return nil, errors.New("boom")
	})

	ctx := WithRequestID(WithTransport(context.Background(), "mcp"), "abc")
	if _, err := ep(ctx, nil); err == nil {
		t.Fatal("error not propagated")
	}
	out := buf.String()
	for _, want := range []string{"action=lookup", "transport=mcp", "request_id=abc", "error=boom"} {
		if !strings.Contains(out, want) {
			t.Errorf("log %q missing %q", out, want)
		}
	}
}

func TestRecover(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	ep := Chain(Logging(logger, "resolve"), Recover(logger))(func(context.Context, any) (any, error) {
		panic("index out of range")
	})
	resp, err := ep(context.Background(), nil)
	if err == nil || !strings.Contains(err.Error(), "index out of range") {
		t.Fatalf("err = %v, want recovered panic", err)
	}
	if resp != nil {
		t.Errorf("resp = %v, want nil", resp)
	}
	out := buf.String()
	if !strings.Contains(out, "endpoint panic") || !strings.Contains(out, "endpoint failed") {
		t.Errorf("log = %s", out)
	}
}

func TestRecover_PassesThrough(t *testing.T) {
	want := errors.New("not found")
	ep := Recover(slog.New(slog.NewTextHandler(io.Discard, nil)))(func(context.Context, any) (any, error) {
		return "partial", want
	})
	resp, err := ep(context.Background(), nil)
	if resp != "partial" || !errors.Is(err, want) {
		t.Errorf("resp = %v, err = %v", resp, err)
	}
}
