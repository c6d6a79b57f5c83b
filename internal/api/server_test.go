package api

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"safepaw/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

func TestGRPCHealthFollowsStore(t *testing.T) {
	logger := zerolog.New(io.Discard)
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var storeErr error
	cfg := &config.APIConfig{GRPC: config.APIGRPCConfig{Enabled: true, Reflection: true}}
	srv, err := newGRPCServer(cfg, lis, func(context.Context) error { return storeErr }, &logger)
	require.NoError(t, err)

	go func() { _ = srv.Serve() }()
	defer srv.Shutdown(context.Background())

	conn, err := grpc.NewClient(srv.Addr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	check := func() healthpb.HealthCheckResponse_ServingStatus {
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: BookingServiceName})
		require.NoError(t, err)
		return resp.GetStatus()
	}

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check())

	srv.CheckHealth(ctx)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check())

	storeErr = errors.New("database is closed")
	srv.CheckHealth(ctx)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check())

	_, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: "unknown"})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestRecoveryUnaryInterceptor(t *testing.T) {
	logger := zerolog.New(io.Discard)
	interceptor := ChainUnaryInterceptors(RecoveryUnaryInterceptor(&logger), LoggingUnaryInterceptor(&logger))

	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/test/Panic"},
		func(context.Context, any) (any, error) { panic("boom") })
	assert.Equal(t, codes.Internal, status.Code(err))

	resp, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/test/Ok"},
		func(context.Context, any) (any, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
}

func TestBuildTLSConfig_Errors(t *testing.T) {
	_, err := buildTLSConfig(config.APITLSConfig{Enabled: true})
	assert.Error(t, err)

	_, err = buildTLSConfig(config.APITLSConfig{Enabled: true, CertFile: "missing.pem", KeyFile: "missing.key"})
	assert.Error(t, err)
}

func TestRateLimiter(t *testing.T) {
	var disabled *rateLimiter
	assert.True(t, disabled.Allow("k"))

	l := newRateLimiter(config.APIRateLimitConfig{RPS: 0.001, Burst: 2})
	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))
}
