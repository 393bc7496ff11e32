package sink

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const emitMethod = "/taskguard.v1.Collector/Emit"

// GRPC forwards emissions to a remote collector. Each emission is sent on a
// short deadline in its own goroutine; delivery failures are logged at
// debug and dropped.
type GRPC struct {
	conn    *grpc.ClientConn
	timeout time.Duration
	log     *slog.Logger
}

// NewGRPC dials the collector endpoint. TLS is inferred from the scheme or
// a :443 suffix, matching how the rest of the infra layer dials gRPC.
func NewGRPC(ctx context.Context, endpoint string, log *slog.Logger) (*GRPC, error) {
	target := endpoint
	var opts []grpc.DialOption

	if strings.HasPrefix(endpoint, "https://") || strings.HasSuffix(endpoint, ":443") {
		creds := credentials.NewTLS(&tls.Config{})
		opts = append(opts, grpc.WithTransportCredentials(creds))
		target = strings.TrimPrefix(target, "https://")
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		target = strings.TrimPrefix(target, "http://")
	}

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial collector %s: %w", target, err)
	}

	if log == nil {
		log = slog.Default()
	}
	return &GRPC{conn: conn, timeout: 2 * time.Second, log: log}, nil
}

// Emit forwards the emission without blocking the caller.
func (g *GRPC) Emit(name string, value float64, unit string, tags map[string]string) {
	fields := map[string]any{
		"name":  name,
		"value": value,
		"unit":  unit,
	}
	for k, v := range tags {
		fields["tag_"+k] = v
	}

	payload, err := structpb.NewStruct(fields)
	if err != nil {
		g.log.Debug("sink emission not encodable", "name", name, "error", err)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
		defer cancel()

		if err := g.conn.Invoke(ctx, emitMethod, payload, &emptypb.Empty{}); err != nil {
			g.log.Debug("sink emission dropped", "name", name, "error", err)
		}
	}()
}

// Close tears down the collector connection.
func (g *GRPC) Close() error {
	return g.conn.Close()
}
