package middleware

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/adapters/transport/ratelimit"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// маленький helper
func ctxIP(ip string) context.Context {
	return peer.NewContext(context.Background(), &peer.Peer{
		Addr: &net.TCPAddr{IP: net.ParseIP(ip), Port: 80},
	})
}

func ok(context.Context, any) (any, error) { return "ok", nil }

func TestChainUnaryServer_PanicRecovered(t *testing.T) {
	chain := ChainUnaryServer(zap.NewNop(), ratelimit.NewPerKey(10, 10, 100, time.Hour))

	_, err := chain(ctxIP("8.8.8.8"), nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Panic"},
		func(ctx context.Context, req any) (any, error) {
			panic("boom")
		})
	if status.Code(err) != codes.Internal {
		t.Fatalf("panic should become Internal, got %v", err)
	}
}

func TestChainUnaryServer_RateLimitInsideChain(t *testing.T) {
	chain := ChainUnaryServer(zap.NewNop(), ratelimit.NewPerKey(1, 1, 100, time.Hour))

	call := func(ctx context.Context) error {
		_, err := chain(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Call"}, ok)
		return err
	}

	ctx := ctxIP("9.9.9.9")
	if err := call(ctx); err != nil {
		t.Fatalf("first call unexpected err: %v", err)
	}
	if err := call(ctx); status.Code(err) != codes.ResourceExhausted {
		t.Fatalf("second call must hit rate-limit inside chain, got %v", err)
	}
}

func TestChainUnaryServer_NoLimiter(t *testing.T) {
	chain := ChainUnaryServer(zap.NewNop(), nil)
	for i := 0; i < 5; i++ {
		resp, err := chain(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Call"}, ok)
		if err != nil || resp != "ok" {
			t.Fatalf("call %d: resp=%v err=%v", i, resp, err)
		}
	}
}
