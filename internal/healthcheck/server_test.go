package healthcheck

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func startBufconn(t *testing.T) (*Server, grpc.DialOption) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := NewServer(zap.NewNop())

	done := make(chan error, 1)
	go func() { done <- srv.Serve(lis) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Stop(ctx)
		assert.NoError(t, <-done)
	})

	dialer := grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	})
	return srv, dialer
}

func TestProbeReportsServingTransitions(t *testing.T) {
	srv, dialer := startBufconn(t)
	ctx := context.Background()

	status, err := Probe(ctx, "bufnet", ServiceName, dialer)
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status)

	srv.SetServing(true)
	status, err = Probe(ctx, "bufnet", ServiceName, dialer)
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status)

	status, err = Probe(ctx, "bufnet", "", dialer)
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status)

	srv.SetServing(false)
	status, err = Probe(ctx, "bufnet", ServiceName, dialer)
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status)
}

func TestProbeUnknownService(t *testing.T) {
	_, dialer := startBufconn(t)

	_, err := Probe(context.Background(), "bufnet", "no.such.Service", dialer)
	require.Error(t, err)
}

func TestStopReportsNotServing(t *testing.T) {
	srv, _ := startBufconn(t)
	srv.SetServing(true)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, srv.Status(ServiceName))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	srv.Stop(ctx)

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, srv.Status(ServiceName))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, srv.Status(""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVICE_UNKNOWN, srv.Status("other.Service"))
}
