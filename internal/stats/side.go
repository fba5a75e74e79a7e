package stats

import "lnstats/internal/storage"

// SideFees resolves the fee terms a channel carries for the given endpoint.
// node1's terms are used when the node is node1, node2's otherwise.
func SideFees(nodeKey string, ch storage.Channel) ChannelFee {
	fee := ChannelFee{Capacity: ch.Capacity}
	if ch.Node1PublicKey == nodeKey {
		fee.FeeRate = ch.Node1FeeRate
		fee.BaseFee = ch.Node1BaseFee
	} else {
		fee.FeeRate = ch.Node2FeeRate
		fee.BaseFee = ch.Node2BaseFee
	}
	return fee
}

// ForNode side-resolves every channel touching nodeKey.
func ForNode(nodeKey string, channels []storage.Channel) []ChannelFee {
	fees := make([]ChannelFee, 0, len(channels))
	for _, ch := range channels {
		fees = append(fees, SideFees(nodeKey, ch))
	}
	return fees
}
