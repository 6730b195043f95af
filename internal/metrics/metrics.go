package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ActiveResolutionsProvider exposes the number of in-flight resolutions.
type ActiveResolutionsProvider interface {
	ActiveCount() int
}

// ProviderCounter exposes the number of registered call providers.
type ProviderCounter interface {
	Count() int
}

// AccountCounter exposes the number of enabled accounts in the snapshot.
type AccountCounter interface {
	Count() int
}

// CallDispositionCounter returns call record counts grouped by disposition.
type CallDispositionCounter interface {
	CountByDisposition(ctx context.Context) (map[string]int64, error)
}

// Collector is a prometheus.Collector that gathers CallBroker metrics at
// scrape time.
type Collector struct {
	resolutions ActiveResolutionsProvider
	providers   ProviderCounter
	accounts    AccountCounter
	records     CallDispositionCounter
	startTime   time.Time

	// Metric descriptors.
	activeResolutionsDesc *prometheus.Desc
	providersDesc         *prometheus.Desc
	accountsDesc          *prometheus.Desc
	callsTotalDesc        *prometheus.Desc
	uptimeDesc            *prometheus.Desc
}

// NewCollector creates a new metrics collector. Any provider may be nil if
// unavailable.
func NewCollector(
	resolutions ActiveResolutionsProvider,
	providers ProviderCounter,
	accounts AccountCounter,
	records CallDispositionCounter,
	startTime time.Time,
) *Collector {
	return &Collector{
		resolutions: resolutions,
		providers:   providers,
		accounts:    accounts,
		records:     records,
		startTime:   startTime,

		activeResolutionsDesc: prometheus.NewDesc(
			"callbroker_active_resolutions",
			"Number of call resolutions currently in flight",
			nil, nil,
		),
		providersDesc: prometheus.NewDesc(
			"callbroker_providers_registered",
			"Number of registered call providers",
			nil, nil,
		),
		accountsDesc: prometheus.NewDesc(
			"callbroker_accounts_enabled",
			"Number of enabled accounts in the routing snapshot",
			nil, nil,
		),
		callsTotalDesc: prometheus.NewDesc(
			"callbroker_calls_total",
			"Total number of resolved calls by disposition",
			[]string{"disposition"}, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"callbroker_uptime_seconds",
			"Seconds since the CallBroker process started",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activeResolutionsDesc
	ch <- c.providersDesc
	ch <- c.accountsDesc
	ch <- c.callsTotalDesc
	ch <- c.uptimeDesc
}

// Collect implements prometheus.Collector. It queries all providers at
// scrape time.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if c.resolutions != nil {
		ch <- prometheus.MustNewConstMetric(
			c.activeResolutionsDesc, prometheus.GaugeValue,
			float64(c.resolutions.ActiveCount()),
		)
	}

	if c.providers != nil {
		ch <- prometheus.MustNewConstMetric(
			c.providersDesc, prometheus.GaugeValue,
			float64(c.providers.Count()),
		)
	}

	if c.accounts != nil {
		ch <- prometheus.MustNewConstMetric(
			c.accountsDesc, prometheus.GaugeValue,
			float64(c.accounts.Count()),
		)
	}

	if c.records != nil {
		counts, err := c.records.CountByDisposition(ctx)
		if err != nil {
			slog.Error("metrics: failed to count call records", "error", err)
		} else {
			for _, disposition := range []string{"connected", "failed", "canceled"} {
				ch <- prometheus.MustNewConstMetric(
					c.callsTotalDesc, prometheus.CounterValue,
					float64(counts[disposition]), disposition,
				)
			}
		}
	}

	ch <- prometheus.MustNewConstMetric(
		c.uptimeDesc, prometheus.GaugeValue,
		time.Since(c.startTime).Seconds(),
	)
}
