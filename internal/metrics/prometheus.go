// Package metrics exposes Prometheus counters for the OTP flow, patient writes and HTTP traffic.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	OTPIssued        *prometheus.CounterVec
	OTPVerified      *prometheus.CounterVec
	OTPSwept         prometheus.Counter
	PatientMutations *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
}

// New creates the metrics on a private registry so tests can build more than one.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		OTPIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "medicare_otp_issued_total",
			Help: "OTP issue attempts by result",
		}, []string{"result"}),
		OTPVerified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "medicare_otp_verified_total",
			Help: "OTP verification attempts by result",
		}, []string{"result"}),
		OTPSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "medicare_otp_swept_total",
			Help: "Expired pending codes removed by the sweeper",
		}),
		PatientMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "medicare_patients_mutations_total",
			Help: "Successful patient record writes by operation",
		}, []string{"op"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "medicare_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"method", "route", "status"}),
	}

	m.registry.MustRegister(
		m.OTPIssued,
		m.OTPVerified,
		m.OTPSwept,
		m.PatientMutations,
		m.RequestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
