package stats

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

// FeeBuckets holds the fee-rate boundaries (ppm) used for distributions.
// Buckets are half-open [low, high); the last one is unbounded.
var FeeBuckets = []int64{0, 2, 4, 6, 8, 10, 20, 40, 60, 80, 100, 500, 1000, 5000, math.MaxInt64}

// BucketCount is the number of distribution entries produced per node.
var BucketCount = len(FeeBuckets) - 1

// ChannelFee is a channel as seen from one of its endpoints.
type ChannelFee struct {
	FeeRate  int64
	BaseFee  int64
	Capacity int64
}

// NodeFeeStats is the derived fee summary for a node.
type NodeFeeStats struct {
	Distribution []int64
	AvgFeeRate   decimal.Decimal
	AvgBaseFee   decimal.Decimal
	MedFeeRate   int64
	MedBaseFee   int64
	MedCapacity  int64
}

// BucketIndex returns the distribution slot for a fee rate.
func BucketIndex(feeRate int64) int {
	if feeRate < FeeBuckets[0] {
		return 0
	}
	last := BucketCount - 1
	for i := 0; i < last; i++ {
		if feeRate >= FeeBuckets[i] && feeRate < FeeBuckets[i+1] {
			return i
		}
	}
	return last
}

// Distribution sums channel capacities per fee-rate bucket.
func Distribution(channels []ChannelFee) []int64 {
	dist := make([]int64, BucketCount)
	for _, ch := range channels {
		dist[BucketIndex(ch.FeeRate)] += ch.Capacity
	}
	return dist
}

// Compute derives the distribution, means and medians for one node's channels.
// An empty channel set yields zero values everywhere.
func Compute(channels []ChannelFee) NodeFeeStats {
	result := NodeFeeStats{
		Distribution: Distribution(channels),
		AvgFeeRate:   decimal.Zero,
		AvgBaseFee:   decimal.Zero,
	}
	n := len(channels)
	if n == 0 {
		return result
	}

	feeRates := make([]int64, 0, n)
	baseFees := make([]int64, 0, n)
	capacities := make([]int64, 0, n)
	var totalFeeRate, totalBaseFee int64
	for _, ch := range channels {
		feeRates = append(feeRates, ch.FeeRate)
		baseFees = append(baseFees, ch.BaseFee)
		capacities = append(capacities, ch.Capacity)
		totalFeeRate += ch.FeeRate
		totalBaseFee += ch.BaseFee
	}

	count := decimal.NewFromInt(int64(n))
	result.AvgFeeRate = decimal.NewFromInt(totalFeeRate).Div(count)
	result.AvgBaseFee = decimal.NewFromInt(totalBaseFee).Div(count)
	result.MedFeeRate = Median(feeRates)
	result.MedBaseFee = Median(baseFees)
	result.MedCapacity = Median(capacities)
	return result
}

// Median sorts values in place and returns the element at index n/2.
// Even-sized inputs are not interpolated.
func Median(values []int64) int64 {
	if len(values) == 0 {
		return 0
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	return values[len(values)/2]
}

// BucketLabel renders bucket i as a half-open interval, e.g. "[10,20)".
func BucketLabel(i int) string {
	if i < 0 || i >= BucketCount {
		return ""
	}
	if i == BucketCount-1 {
		return fmt.Sprintf("[%d,+inf)", FeeBuckets[i])
	}
	return fmt.Sprintf("[%d,%d)", FeeBuckets[i], FeeBuckets[i+1])
}
