package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
)

// metricName is the one counter family the relay exports; individual events
// are distinguished by the `event` label rather than separate families, so
// adding an event never changes the scrape schema.
const metricName = "roomloop_signaling_events_total"

// PrometheusHandler serves the counter snapshot in Prometheus' text
// exposition format.
func PrometheusHandler(m *Metrics) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m == nil {
			http.Error(w, "metrics not configured", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		writeExposition(w, m.Snapshot())
	})
}

func writeExposition(w io.Writer, snap map[string]uint64) {
	events := make([]string, 0, len(snap))
	for event := range snap {
		events = append(events, event)
	}
	sort.Strings(events)

	fmt.Fprintf(w, "# HELP %s Signaling relay event counters.\n", metricName)
	fmt.Fprintf(w, "# TYPE %s counter\n", metricName)
	for _, event := range events {
		// Event names are fixed ASCII identifiers; %q covers the quote and
		// backslash escaping the exposition format requires.
		fmt.Fprintf(w, "%s{event=%q} %d\n", metricName, event, snap[event])
	}
}
