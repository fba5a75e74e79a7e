package graph

import (
	"context"
	"errors"
)

// ErrDisabled is returned by the no-op source.
var ErrDisabled = errors.New("graph source disabled")

// Policy is one endpoint's routing terms.
type Policy struct {
	FeeBaseMsat      int64
	FeeRateMilliMsat int64
	Disabled         bool
}

// Node is a node in the gossip graph.
type Node struct {
	PubKey string
	Alias  string
}

// Channel is an edge of the gossip graph.
type Channel struct {
	ID          uint64
	Node1Pub    string
	Node2Pub    string
	Capacity    int64
	Node1Policy *Policy
	Node2Policy *Policy
}

// Disabled reports whether every known endpoint policy disables forwarding.
func (c Channel) Disabled() bool {
	if c.Node1Policy == nil && c.Node2Policy == nil {
		return false
	}
	return (c.Node1Policy == nil || c.Node1Policy.Disabled) && (c.Node2Policy == nil || c.Node2Policy.Disabled)
}

// Snapshot is the full node and channel list at fetch time.
type Snapshot struct {
	Nodes    []Node
	Channels []Channel
}

// TotalCapacity sums the capacity of every channel.
func (s Snapshot) TotalCapacity() int64 {
	var total int64
	for _, ch := range s.Channels {
		if ch.Capacity > 0 {
			total += ch.Capacity
		}
	}
	return total
}

// Source supplies the current network graph.
type Source interface {
	FetchGraph(ctx context.Context) (Snapshot, error)
}

// Disabled is a Source that always fails; used when no graph backend is configured.
type Disabled struct{}

// FetchGraph implements Source.
func (Disabled) FetchGraph(context.Context) (Snapshot, error) {
	return Snapshot{}, ErrDisabled
}

var _ Source = Disabled{}
