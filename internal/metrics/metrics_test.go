package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNew_helpListsEmittedLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	// Emit every label value the store actually produces, then check the
	// help text names each of them.
	for _, reason := range []string{"bad_signature", "unrecognized_type", "personal"} {
		m.RecordsDroppedTotal.WithLabelValues(reason).Inc()
	}
	for _, outcome := range []string{"new", "duplicate"} {
		m.RecordsIngestedTotal.WithLabelValues(outcome).Inc()
	}
	for _, outcome := range []string{"replaced", "kept_existing"} {
		m.HealthMergesTotal.WithLabelValues(outcome).Inc()
	}

	fams, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, fam := range fams {
		for _, metric := range fam.GetMetric() {
			for _, label := range metric.GetLabel() {
				if !strings.Contains(fam.GetHelp(), label.GetValue()) {
					t.Errorf("%s: help %q does not mention emitted label value %q",
						fam.GetName(), fam.GetHelp(), label.GetValue())
				}
			}
		}
	}
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.RecordsIngestedTotal.WithLabelValues("new").Inc()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Result().Body)
	if err != nil {
		t.Fatalf("reading scrape body: %v", err)
	}
	if !strings.Contains(string(body), "tms_records_ingested_total") {
		t.Errorf("scrape output missing tms_records_ingested_total:\n%s", body)
	}
}
