package walletd

import (
	"net"

	"github.com/kaigoh/xmrwallet/internal/xmrwallet"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServiceName is the gRPC health service whose status follows the
// wallet: SERVING while the last operation succeeded, NOT_SERVING otherwise.
const HealthServiceName = "xmrwallet.Wallet"

func newHealthServer() *health.Server {
	hs := health.NewServer()
	hs.SetServingStatus(HealthServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return hs
}

func servingStatus(st xmrwallet.Status) healthpb.HealthCheckResponse_ServingStatus {
	if st == xmrwallet.StatusOk {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

// serveHealth registers hs on a new gRPC server and serves lis in the
// background. Serve errors are delivered on the returned channel.
func serveHealth(lis net.Listener, hs *health.Server) (*grpc.Server, <-chan error) {
	s := grpc.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Serve(lis)
	}()
	return s, errCh
}
