package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type uniquePayers struct {
	counter prometheus.Gauge
	payers  map[string]struct{}
	mu      sync.Mutex
}

const payersCountPerWeek = "payers_count_per_week"

var totalUniquePayersPerWeekMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Subsystem: mapPoster,
		Name:      payersCountPerWeek,
		Help:      "number of distinct wallet addresses that paid for a poster this week",
	},
)

var UniquePayersPerWeek = &uniquePayers{
	counter: totalUniquePayersPerWeekMetric,
	payers:  make(map[string]struct{}),
}

func (p *uniquePayers) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.payers = make(map[string]struct{})
	p.counter.Set(0)
}

// Add records a payer. Addresses are compared case-insensitively.
func (p *uniquePayers) Add(address string) {
	if address == "" {
		return
	}
	address = strings.ToLower(address)

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.payers[address]; exists {
		return
	}
	p.payers[address] = struct{}{}
	p.counter.Inc()
}

func (p *uniquePayers) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.payers)
}
