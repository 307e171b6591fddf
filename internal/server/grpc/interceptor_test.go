package grpc

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/bridgeupload/internal/logging"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func newObservedServer() (*GRPCServer, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewGRPCServer("127.0.0.1:0", logging.NewZapLogger(zap.New(core))), logs
}

func TestInterceptor_PassesThrough(t *testing.T) {
	s, logs := newObservedServer()
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		return "ok", nil
	}

	resp, err := s.loggingInterceptor(context.Background(), nil, info, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != "ok" {
		t.Fatalf("unexpected handler resp: %v", resp)
	}

	entries := logs.FilterMessage("grpc call").All()
	if len(entries) != 1 {
		t.Fatalf("expected one debug entry, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["code"]; got != codes.OK.String() {
		t.Fatalf("code = %v, want OK", got)
	}
}

func TestInterceptor_LogsFailures(t *testing.T) {
	s, logs := newObservedServer()
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.NotFound, "unknown service")
	}

	_, err := s.loggingInterceptor(context.Background(), nil, info, h)
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}

	entries := logs.FilterMessage("grpc call failed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one warn entry, got %d", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("level = %v, want warn", entries[0].Level)
	}
	if got := entries[0].ContextMap()["method"]; got != info.FullMethod {
		t.Fatalf("method = %v", got)
	}
}
