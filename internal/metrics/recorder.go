package metrics

import (
	"strconv"
	"time"

	"github.com/good-yellow-bee/warroom/internal/models"
)

// Recorder feeds the package collectors from the instrumentation hooks of
// the incident service, room hub, scheduler, analysis commander,
// notification dispatcher and HTTP middleware.
type Recorder struct{}

func (Recorder) IncidentCreated(severity models.Severity, source string) {
	IncidentsCreated.WithLabelValues(string(severity), source).Inc()
}

func (Recorder) IncidentResolved(severity models.Severity, timeToResolve time.Duration) {
	IncidentsResolved.WithLabelValues(string(severity)).Inc()
	IncidentResolution.WithLabelValues(string(severity)).Observe(timeToResolve.Seconds())
}

func (Recorder) ActiveIncidents(severity models.Severity, status models.Status, delta float64) {
	IncidentsActive.WithLabelValues(string(severity), string(status)).Add(delta)
}

func (Recorder) EventIngested(eventType models.EventType, source string) {
	EventsIngested.WithLabelValues(string(eventType), source).Inc()
}

func (Recorder) ObserverJoined() { LiveConnections.Inc() }
func (Recorder) ObserverLeft()   { LiveConnections.Dec() }
func (Recorder) DeliveryFailed() { LiveDeliveriesFailed.Inc() }

func (Recorder) JobFinished(result string, d time.Duration) {
	JobsTotal.WithLabelValues(result).Inc()
	JobDuration.Observe(d.Seconds())
}

func (Recorder) AnalysisFinished(analyzer string, d time.Duration, suggestions int) {
	AnalysisDuration.WithLabelValues(analyzer).Observe(d.Seconds())
	AnalysisSuggestions.Add(float64(suggestions))
}

func (Recorder) NotificationSent(channel, result string) {
	NotificationsTotal.WithLabelValues(channel, result).Inc()
}

func (Recorder) RequestsInFlight(delta float64) { HTTPRequestsInFlight.Add(delta) }

func (Recorder) RequestServed(method, route string, status int, elapsed time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
