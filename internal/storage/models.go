package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// ChannelStatus mirrors the numeric status column of the channels table.
type ChannelStatus int16

const (
	ChannelInactive ChannelStatus = 0
	ChannelActive   ChannelStatus = 1
	ChannelClosing  ChannelStatus = 2
	ChannelClosed   ChannelStatus = 3
)

// Open reports whether the channel counts towards open-channel aggregates.
func (s ChannelStatus) Open() bool {
	return s < ChannelClosing
}

func (s ChannelStatus) String() string {
	switch s {
	case ChannelInactive:
		return "inactive"
	case ChannelActive:
		return "active"
	case ChannelClosing:
		return "closing"
	case ChannelClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Node is a row of the nodes table.
type Node struct {
	PublicKey string
	Alias     string
	Latitude  *float64
	Longitude *float64
	FirstSeen time.Time
}

// Channel is a row of the channels table. Absent fee columns are read as zero.
type Channel struct {
	ID             string
	Node1PublicKey string
	Node2PublicKey string
	Capacity       int64
	Created        time.Time
	ClosingDate    *time.Time
	Status         ChannelStatus
	Node1FeeRate   int64
	Node2FeeRate   int64
	Node1BaseFee   int64
	Node2BaseFee   int64
}

// ChannelHistory is the subset of a channel needed to rebuild daily totals.
type ChannelHistory struct {
	Capacity    int64
	Created     time.Time
	ClosingDate *time.Time
}

// NodeAggregate holds open-channel counts and capacities per endpoint side.
type NodeAggregate struct {
	PublicKey     string
	CountLeft     int64
	CountRight    int64
	CapacityLeft  int64
	CapacityRight int64
}

// Capacity is the node's total open-channel capacity.
func (a NodeAggregate) Capacity() int64 {
	return a.CapacityLeft + a.CapacityRight
}

// Channels is the node's open-channel count.
func (a NodeAggregate) Channels() int64 {
	return a.CountLeft + a.CountRight
}

// NodeStatsSample is one per-node, per-day observation.
type NodeStatsSample struct {
	PublicKey           string
	Added               time.Time
	Capacity            int64
	Channels            int64
	AvgFeeRate          decimal.Decimal
	AvgBaseFee          decimal.Decimal
	MedCapacity         int64
	MedFeeRate          int64
	MedBaseFee          int64
	FeeRateDistribution []int64
}

// NetworkStatsSample is one network-wide daily observation.
type NetworkStatsSample struct {
	Added         time.Time
	ChannelCount  int64
	NodeCount     int64
	TotalCapacity int64
}

// NodeCountUpdate sets node_count on the sample recorded at Added.
type NodeCountUpdate struct {
	Added     time.Time
	NodeCount int64
}

// RankedNode pairs a node with its most recent stats sample.
type RankedNode struct {
	Node     Node
	Capacity int64
	Channels int64
	Added    time.Time
}
