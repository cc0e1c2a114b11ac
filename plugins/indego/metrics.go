package indego

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector exports the cached state of every mower. It never calls
// the vendor API; scrapes only read poller snapshots.
type MetricsCollector struct {
	mowers []*Mower

	mowing        *prometheus.GaugeVec
	stateKnown    *prometheus.GaugeVec
	stateCode     *prometheus.GaugeVec
	authenticated *prometheus.GaugeVec
	inFlight      *prometheus.GaugeVec
	lastSuccess   *prometheus.GaugeVec
	info          *prometheus.GaugeVec

	requests *prometheus.Desc
	logins   *prometheus.Desc
}

func NewMetricsCollector(mowers []*Mower) *MetricsCollector {
	labels := []string{"mower"}
	return &MetricsCollector{
		mowers: mowers,
		mowing: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "indego_mowing",
			Help: "Last known mowing state (1=mowing, 0=idle)",
		}, labels),
		stateKnown: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "indego_state_known",
			Help: "Whether a mapped status code has been seen (1=yes)",
		}, labels),
		stateCode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "indego_state_code",
			Help: "Last raw status code reported by the vendor API",
		}, []string{"mower", "status"}),
		authenticated: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "indego_session_authenticated",
			Help: "Session state (1=authenticated, 0=login pending)",
		}, labels),
		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "indego_request_in_flight",
			Help: "Whether a vendor request is outstanding",
		}, labels),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "indego_last_success_timestamp_seconds",
			Help: "Last successful state read (epoch seconds)",
		}, labels),
		info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "indego_mower_info",
			Help: "Mower metadata",
		}, []string{"mower", "model", "serial"}),
		requests: prometheus.NewDesc(
			"indego_requests_total",
			"Vendor requests by operation and result",
			[]string{"mower", "op", "result"}, nil,
		),
		logins: prometheus.NewDesc(
			"indego_logins_total",
			"Login attempts by result",
			[]string{"mower", "result"}, nil,
		),
	}
}

func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	c.mowing.Describe(ch)
	c.stateKnown.Describe(ch)
	c.stateCode.Describe(ch)
	c.authenticated.Describe(ch)
	c.inFlight.Describe(ch)
	c.lastSuccess.Describe(ch)
	c.info.Describe(ch)
	ch <- c.requests
	ch <- c.logins
}

func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	c.mowing.Reset()
	c.stateKnown.Reset()
	c.stateCode.Reset()
	c.authenticated.Reset()
	c.inFlight.Reset()
	c.lastSuccess.Reset()
	c.info.Reset()

	for _, mower := range c.mowers {
		snap := mower.Poller.Snapshot()
		name := mower.Name

		c.stateKnown.WithLabelValues(name).Set(boolToFloat(snap.State.Known()))
		if snap.State.Known() {
			c.mowing.WithLabelValues(name).Set(boolToFloat(snap.State.Mowing()))
		}
		if snap.HasRawCode {
			c.stateCode.WithLabelValues(name, StatusName(snap.RawCode)).Set(float64(snap.RawCode))
		}
		c.authenticated.WithLabelValues(name).Set(boolToFloat(snap.Session.Authenticated))
		c.inFlight.WithLabelValues(name).Set(boolToFloat(snap.InFlight))
		if !snap.LastSuccess.IsZero() {
			c.lastSuccess.WithLabelValues(name).Set(float64(snap.LastSuccess.Unix()))
		}
		c.info.WithLabelValues(name, mower.Model, snap.Session.Serial).Set(1)

		for key, count := range snap.Outcomes {
			op, result, ok := strings.Cut(key, "/")
			if !ok {
				continue
			}
			ch <- prometheus.MustNewConstMetric(c.requests, prometheus.CounterValue, float64(count), name, op, result)
		}
		ch <- prometheus.MustNewConstMetric(c.logins, prometheus.CounterValue, float64(snap.LoginsOK), name, "ok")
		ch <- prometheus.MustNewConstMetric(c.logins, prometheus.CounterValue, float64(snap.LoginsFailed), name, "error")
	}

	c.mowing.Collect(ch)
	c.stateKnown.Collect(ch)
	c.stateCode.Collect(ch)
	c.authenticated.Collect(ch)
	c.inFlight.Collect(ch)
	c.lastSuccess.Collect(ch)
	c.info.Collect(ch)
}

func boolToFloat(value bool) float64 {
	if value {
		return 1
	}
	return 0
}
