package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "agendei"

var (
	once sync.Once

	availabilityFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "availability_fetch_total",
			Help:      "Availability fetches by window (eager|lazy) and status.",
		},
		[]string{"window", "status"},
	)

	appointmentSubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointment_submissions_total",
			Help:      "Appointment submissions by status.",
		},
		[]string{"status"},
	)

	flowTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flow_transitions_total",
			Help:      "Accepted booking flow events.",
		},
		[]string{"event"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(availabilityFetches, appointmentSubmissions, flowTransitions, httpRequests)
	})
}

func ObserveFetch(window string, err error) {
	availabilityFetches.WithLabelValues(window, status(err)).Inc()
}

func ObserveSubmission(err error) {
	appointmentSubmissions.WithLabelValues(status(err)).Inc()
}

func IncTransition(event string) {
	flowTransitions.WithLabelValues(event).Inc()
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
