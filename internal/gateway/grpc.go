// ABOUTME: gRPC health service mirroring the gateway's endpoint states
// ABOUTME: Reports the overall server and each gateway direction as a named service

package gateway

import (
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

// createGRPCServer creates the gRPC server carrying the health service.
func createGRPCServer(hs *health.Server) *grpc.Server {
	server := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    15 * time.Second,
			Timeout: 5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	)
	healthpb.RegisterHealthServer(server, hs)
	return server
}

// setServing updates the health status of the server ("") and of each
// configured gateway direction, named by its fabric service.
func (g *Gateway) setServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}

	overall := healthpb.HealthCheckResponse_NOT_SERVING
	if serving && g.ready() {
		overall = healthpb.HealthCheckResponse_SERVING
	}
	g.health.SetServingStatus("", overall)

	if g.endpoint != nil {
		g.health.SetServingStatus(g.config.Inbound.LocalService, status)
	}
	if g.consumer != nil {
		g.health.SetServingStatus(g.config.Outbound.ServiceName, status)
	}
}
