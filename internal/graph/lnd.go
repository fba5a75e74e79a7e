package graph

import (
	"context"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"lnstats/internal/metrics"
)

// The full mainnet graph is tens of megabytes.
const maxGraphMessageSize = 256 << 20

// LNDOptions parameterise the gRPC graph source.
type LNDOptions struct {
	Host               string
	TLSCertPath        string
	MacaroonPath       string
	IncludeUnannounced bool
	Timeout            time.Duration
}

// LND reads the graph from an lnd node through DescribeGraph.
type LND struct {
	opts   LNDOptions
	logger zerolog.Logger

	mu     sync.Mutex
	conn   *grpc.ClientConn
	client lnrpc.LightningClient
}

// NewLND builds a lazily connected lnd graph source.
func NewLND(opts LNDOptions, logger zerolog.Logger) *LND {
	return &LND{opts: opts, logger: logger.With().Str("component", "graph_lnd").Logger()}
}

// FetchGraph implements Source.
func (l *LND) FetchGraph(ctx context.Context) (Snapshot, error) {
	start := time.Now()
	snapshot, err := l.fetch(ctx)
	metrics.RecordGraphLatency(time.Since(start), "lnd", err != nil)
	return snapshot, err
}

func (l *LND) fetch(ctx context.Context) (Snapshot, error) {
	if l.opts.Host == "" {
		return Snapshot{}, errors.New("lnd host not configured")
	}

	timeout := l.opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := l.getClient()
	if err != nil {
		return Snapshot{}, err
	}

	resp, err := client.DescribeGraph(ctx, &lnrpc.ChannelGraphRequest{
		IncludeUnannounced: l.opts.IncludeUnannounced,
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("describe graph: %w", err)
	}

	snapshot := fromChannelGraph(resp)
	l.logger.Debug().
		Int("nodes", len(snapshot.Nodes)).
		Int("channels", len(snapshot.Channels)).
		Msg("graph fetched")
	return snapshot, nil
}

// Close tears down the gRPC connection.
func (l *LND) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	err := l.conn.Close()
	l.conn = nil
	l.client = nil
	return err
}

func (l *LND) getClient() (lnrpc.LightningClient, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.client != nil {
		return l.client, nil
	}

	dialOpts := []grpc.DialOption{
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(maxGraphMessageSize)),
	}

	creds, err := l.transportCredentials()
	if err != nil {
		return nil, err
	}
	dialOpts = append(dialOpts, grpc.WithTransportCredentials(creds))

	if l.opts.MacaroonPath != "" {
		mac, err := loadMacaroon(l.opts.MacaroonPath)
		if err != nil {
			return nil, err
		}
		dialOpts = append(dialOpts, grpc.WithPerRPCCredentials(mac))
	}

	conn, err := grpc.NewClient(l.opts.Host, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("dial lnd %s: %w", l.opts.Host, err)
	}

	l.conn = conn
	l.client = lnrpc.NewLightningClient(conn)
	return l.client, nil
}

func (l *LND) transportCredentials() (credentials.TransportCredentials, error) {
	if l.opts.TLSCertPath == "" {
		return credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12}), nil
	}
	creds, err := credentials.NewClientTLSFromFile(l.opts.TLSCertPath, "")
	if err != nil {
		return nil, fmt.Errorf("load lnd tls cert: %w", err)
	}
	return creds, nil
}

func fromChannelGraph(resp *lnrpc.ChannelGraph) Snapshot {
	if resp == nil {
		return Snapshot{}
	}

	snapshot := Snapshot{
		Nodes:    make([]Node, 0, len(resp.Nodes)),
		Channels: make([]Channel, 0, len(resp.Edges)),
	}
	for _, n := range resp.Nodes {
		if n == nil {
			continue
		}
		snapshot.Nodes = append(snapshot.Nodes, Node{
			PubKey: n.PubKey,
			Alias:  n.Alias,
		})
	}
	for _, e := range resp.Edges {
		if e == nil {
			continue
		}
		snapshot.Channels = append(snapshot.Channels, Channel{
			ID:          e.ChannelId,
			Node1Pub:    e.Node1Pub,
			Node2Pub:    e.Node2Pub,
			Capacity:    e.Capacity,
			Node1Policy: fromRoutingPolicy(e.Node1Policy),
			Node2Policy: fromRoutingPolicy(e.Node2Policy),
		})
	}
	return snapshot
}

func fromRoutingPolicy(p *lnrpc.RoutingPolicy) *Policy {
	if p == nil {
		return nil
	}
	return &Policy{
		FeeBaseMsat:      p.FeeBaseMsat,
		FeeRateMilliMsat: p.FeeRateMilliMsat,
		Disabled:         p.Disabled,
	}
}

// macaroonCredential sends a hex macaroon with every RPC.
type macaroonCredential struct {
	hex string
}

func loadMacaroon(path string) (macaroonCredential, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return macaroonCredential{}, fmt.Errorf("read macaroon: %w", err)
	}
	return macaroonCredential{hex: hex.EncodeToString(raw)}, nil
}

func (m macaroonCredential) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"macaroon": m.hex}, nil
}

func (m macaroonCredential) RequireTransportSecurity() bool {
	return true
}

var (
	_ Source                        = (*LND)(nil)
	_ credentials.PerRPCCredentials = macaroonCredential{}
)
