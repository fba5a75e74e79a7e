package graph

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"

	"lnstats/internal/metrics"
)

const restGraphPath = "/v1/graph"

// RESTOptions parameterise the lnd REST graph source.
type RESTOptions struct {
	BaseURL            string
	MacaroonPath       string
	UserAgent          string
	IncludeUnannounced bool
	Timeout            time.Duration
	RetryAttempts      uint
	RetryDelay         time.Duration
	SkipTLSVerify      bool
}

// REST fetches the graph over lnd's REST proxy.
type REST struct {
	opts     RESTOptions
	logger   zerolog.Logger
	client   *http.Client
	baseURL  string
	macaroon string
}

// NewREST constructs a REST graph source. The macaroon, if configured, is read once.
func NewREST(opts RESTOptions, logger zerolog.Logger) (*REST, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if opts.RetryAttempts == 0 {
		opts.RetryAttempts = 1
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("graph rest base url not configured")
	}

	var macHex string
	if opts.MacaroonPath != "" {
		raw, err := os.ReadFile(opts.MacaroonPath)
		if err != nil {
			return nil, fmt.Errorf("read macaroon: %w", err)
		}
		macHex = hex.EncodeToString(raw)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.SkipTLSVerify {
		// lnd ships a self-signed certificate by default
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	return &REST{
		opts:     opts,
		logger:   logger.With().Str("component", "graph_rest").Logger(),
		client:   &http.Client{Timeout: timeout, Transport: transport},
		baseURL:  baseURL,
		macaroon: macHex,
	}, nil
}

// FetchGraph implements Source, retrying transient failures with backoff.
func (r *REST) FetchGraph(ctx context.Context) (Snapshot, error) {
	start := time.Now()
	snapshot, err := retry.DoWithData(
		func() (Snapshot, error) {
			return r.fetchOnce(ctx)
		},
		retry.Context(ctx),
		retry.Attempts(r.opts.RetryAttempts),
		retry.Delay(r.opts.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetryable),
		retry.OnRetry(func(n uint, err error) {
			r.logger.Warn().
				Uint("attempt", n+1).
				Uint("max_attempts", r.opts.RetryAttempts).
				Err(err).
				Msg("graph fetch failed, retrying")
		}),
	)
	metrics.RecordGraphLatency(time.Since(start), "rest", err != nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch graph: %w", err)
	}
	return snapshot, nil
}

func (r *REST) fetchOnce(ctx context.Context) (Snapshot, error) {
	endpoint := r.baseURL + restGraphPath
	if r.opts.IncludeUnannounced {
		endpoint += "?include_unannounced=true"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Snapshot{}, retry.Unrecoverable(err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(r.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "lnstats/1.0")
	}
	if r.macaroon != "" {
		req.Header.Set("Grpc-Metadata-macaroon", r.macaroon)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return Snapshot{}, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Snapshot{}, err
	}

	if resp.StatusCode != http.StatusOK {
		return Snapshot{}, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(payload))}
	}

	var graph restGraph
	if err := json.Unmarshal(payload, &graph); err != nil {
		return Snapshot{}, retry.Unrecoverable(fmt.Errorf("decode graph: %w", err))
	}
	return graph.snapshot(), nil
}

// StatusError is a non-200 reply from the REST endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("lnd rest error (%d)", e.Code)
	}
	return fmt.Sprintf("lnd rest error (%d): %s", e.Code, e.Body)
}

func isRetryable(err error) bool {
	if !retry.IsRecoverable(err) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= http.StatusInternalServerError || statusErr.Code == http.StatusTooManyRequests
	}
	return !errors.Is(err, context.Canceled)
}

type restGraph struct {
	Nodes []restNode `json:"nodes"`
	Edges []restEdge `json:"edges"`
}

type restNode struct {
	PubKey string `json:"pub_key"`
	Alias  string `json:"alias"`
}

type restEdge struct {
	ChannelID   flexInt     `json:"channel_id"`
	Node1Pub    string      `json:"node1_pub"`
	Node2Pub    string      `json:"node2_pub"`
	Capacity    flexInt     `json:"capacity"`
	Node1Policy *restPolicy `json:"node1_policy"`
	Node2Policy *restPolicy `json:"node2_policy"`
}

type restPolicy struct {
	FeeBaseMsat      flexInt `json:"fee_base_msat"`
	FeeRateMilliMsat flexInt `json:"fee_rate_milli_msat"`
	Disabled         bool    `json:"disabled"`
}

func (g restGraph) snapshot() Snapshot {
	snapshot := Snapshot{
		Nodes:    make([]Node, 0, len(g.Nodes)),
		Channels: make([]Channel, 0, len(g.Edges)),
	}
	for _, n := range g.Nodes {
		snapshot.Nodes = append(snapshot.Nodes, Node{
			PubKey: n.PubKey,
			Alias:  n.Alias,
		})
	}
	for _, e := range g.Edges {
		snapshot.Channels = append(snapshot.Channels, Channel{
			ID:          uint64(e.ChannelID),
			Node1Pub:    e.Node1Pub,
			Node2Pub:    e.Node2Pub,
			Capacity:    int64(e.Capacity),
			Node1Policy: e.Node1Policy.policy(),
			Node2Policy: e.Node2Policy.policy(),
		})
	}
	return snapshot
}

func (p *restPolicy) policy() *Policy {
	if p == nil {
		return nil
	}
	return &Policy{
		FeeBaseMsat:      int64(p.FeeBaseMsat),
		FeeRateMilliMsat: int64(p.FeeRateMilliMsat),
		Disabled:         p.Disabled,
	}
}

// flexInt accepts integers encoded either as JSON numbers or as strings,
// since grpc-gateway renders 64-bit fields as strings.
type flexInt uint64

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("parse integer %q: %w", data, err)
	}
	*f = flexInt(v)
	return nil
}

var _ Source = (*REST)(nil)
