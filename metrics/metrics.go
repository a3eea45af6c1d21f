// Package metrics exporta eventos dos vaults do gateway para o Prometheus.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"vault-gateway/vault"
)

const subsystem = "vault"

var (
	allocationsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "allocations_total",
			Help:      "Count of slots claimed by Allocate.",
		},
		[]string{"vault"},
	)
	allocationFailuresCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "allocation_failures_total",
			Help:      "Count of Allocate calls that found no free slot.",
		},
		[]string{"vault"},
	)
	allocationRetriesCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "allocation_retries_total",
			Help:      "Count of Allocate rescans after losing a slot to a concurrent allocator.",
		},
		[]string{"vault"},
	)
	deallocationsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "deallocations_total",
			Help:      "Count of occupied to free slot transitions.",
		},
		[]string{"vault"},
	)
	inUseGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Subsystem: subsystem,
			Name:      "slots_in_use",
			Help:      "Number of occupied slots.",
		},
		[]string{"vault"},
	)
	capacityGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Subsystem: subsystem,
			Name:      "capacity",
			Help:      "Fixed number of slots.",
		},
		[]string{"vault"},
	)
)

var registerMetrics sync.Once

// Register all metrics.
func Register(reg prometheus.Registerer) {
	registerMetrics.Do(func() {
		reg.MustRegister(allocationsCounter)
		reg.MustRegister(allocationFailuresCounter)
		reg.MustRegister(allocationRetriesCounter)
		reg.MustRegister(deallocationsCounter)
		reg.MustRegister(inUseGauge)
		reg.MustRegister(capacityGauge)
	})
}

// VaultObserver implementa vault.Observer com as séries rotuladas por nome do vault.
type VaultObserver struct {
	allocations   prometheus.Counter
	failures      prometheus.Counter
	retries       prometheus.Counter
	deallocations prometheus.Counter
	inUse         prometheus.Gauge
}

var _ vault.Observer = (*VaultObserver)(nil)

// NewVaultObserver cria o observer de um vault e publica a capacidade dele.
func NewVaultObserver(name string, capacity int) *VaultObserver {
	capacityGauge.WithLabelValues(name).Set(float64(capacity))
	return &VaultObserver{
		allocations:   allocationsCounter.WithLabelValues(name),
		failures:      allocationFailuresCounter.WithLabelValues(name),
		retries:       allocationRetriesCounter.WithLabelValues(name),
		deallocations: deallocationsCounter.WithLabelValues(name),
		inUse:         inUseGauge.WithLabelValues(name),
	}
}

func (o *VaultObserver) Allocated(int) {
	o.allocations.Inc()
	o.inUse.Inc()
}

func (o *VaultObserver) AllocateFailed() { o.failures.Inc() }

func (o *VaultObserver) AllocateRetried() { o.retries.Inc() }

func (o *VaultObserver) Deallocated(int) {
	o.deallocations.Inc()
	o.inUse.Dec()
}
