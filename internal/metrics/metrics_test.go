package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestRecorder_ObserveBooking(t *testing.T) {
	before := counterValue(bookingAttempts.WithLabelValues("book", "unavailable"))

	Recorder{}.ObserveBooking("book", "unavailable", 20*time.Millisecond)
	Recorder{}.ObserveBooking("book", "unavailable", 30*time.Millisecond)

	if after := counterValue(bookingAttempts.WithLabelValues("book", "unavailable")); after != before+2 {
		t.Fatalf("attempts = %v, want %v", after, before+2)
	}
}

func TestIncRPCAndRateLimited(t *testing.T) {
	before := counterValue(rpcRequests.WithLabelValues("BookAppointment", "OK"))
	IncRPC("BookAppointment", "OK")
	if got := counterValue(rpcRequests.WithLabelValues("BookAppointment", "OK")); got != before+1 {
		t.Fatalf("rpc requests = %v, want %v", got, before+1)
	}

	before = counterValue(rateLimited.WithLabelValues("BookAppointment"))
	IncRateLimited("BookAppointment")
	if got := counterValue(rateLimited.WithLabelValues("BookAppointment")); got != before+1 {
		t.Fatalf("rate limited = %v, want %v", got, before+1)
	}
}

func TestHandlerExposesRegisteredMetrics(t *testing.T) {
	Register()
	Register()
	Recorder{}.ObserveSlotsListed(6)

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}

	if !strings.Contains(string(body), "salonbook_slots_listed_count") {
		t.Fatalf("metrics output missing salonbook_slots_listed_count")
	}
}

func counterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return -1
	}
	return m.GetCounter().GetValue()
}
