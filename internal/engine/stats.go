package engine

import (
	"context"
	"math"
	"sort"
)

// Stats computes the metrics projection over the full delivery set, or only
// the given organization's deliveries when orgID is non-empty. Read-only.
func (e *Engine) Stats(ctx context.Context, orgID string) (Metrics, error) {
	deliveries, err := e.deliveries.List(ctx)
	if err != nil {
		return Metrics{}, err
	}

	var m Metrics
	var latencies []int64
	retried := 0
	for _, d := range deliveries {
		if orgID != "" && d.Payload.OrgID != orgID {
			continue
		}
		m.TotalDeliveries++
		switch d.Status {
		case StatusDelivered:
			m.SuccessfulDeliveries++
		case StatusFailed, StatusDLQ:
			m.FailedDeliveries++
		}
		if len(d.Attempts) > 1 {
			retried++
		}
		for _, a := range d.Attempts {
			if a.LatencyMS > 0 {
				latencies = append(latencies, a.LatencyMS)
			}
		}
	}

	dlqEntries, err := e.dlqStore.List(ctx, DLQFilter{OrgID: orgID})
	if err != nil {
		return Metrics{}, err
	}
	m.DLQSize = len(dlqEntries)

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		var sum int64
		for _, l := range latencies {
			sum += l
		}
		m.AvgLatencyMS = float64(sum) / float64(len(latencies))
		m.P95LatencyMS = percentile(latencies, 95)
		m.P99LatencyMS = percentile(latencies, 99)
	}
	if m.TotalDeliveries > 0 {
		m.SuccessRate = float64(m.SuccessfulDeliveries) / float64(m.TotalDeliveries)
		m.RetryRate = float64(retried) / float64(m.TotalDeliveries)
	}
	return m, nil
}

// percentile returns the p-th percentile of sorted values using the
// nearest-rank method.
func percentile(sorted []int64, p float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}
