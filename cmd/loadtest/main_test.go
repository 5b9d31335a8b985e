package main

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseMode(t *testing.T) {
	testCases := []struct {
		input   string
		want    loadMode
		wantErr bool
	}{
		{input: "checkout", want: modeCheckout},
		{input: " checkout-verify ", want: modeCheckoutVerify},
		{input: "create-pay", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tc := range testCases {
		got, err := parseMode(tc.input)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parseMode(%q): expected error", tc.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseMode(%q): %v", tc.input, err)
			continue
		}
		if got != tc.want {
			t.Errorf("parseMode(%q) = %s, want %s", tc.input, got, tc.want)
		}
	}
}

func TestPercentile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	if got := percentile(sorted, 50); math.Abs(got-5.5) > 1e-9 {
		t.Errorf("p50 = %f, want 5.5", got)
	}
	if got := percentile(sorted, 100); got != 10 {
		t.Errorf("p100 = %f, want 10", got)
	}
	if got := percentile([]float64{42}, 95); got != 42 {
		t.Errorf("single value p95 = %f, want 42", got)
	}
	if got := percentile(nil, 95); got != 0 {
		t.Errorf("empty p95 = %f, want 0", got)
	}
}

func TestBuildLatencySummary(t *testing.T) {
	summary := buildLatencySummary([]float64{3, 1, 2})

	if summary.Min != 1 || summary.Max != 3 {
		t.Errorf("unexpected min/max: %+v", summary)
	}
	if math.Abs(summary.Avg-2) > 1e-9 {
		t.Errorf("avg = %f, want 2", summary.Avg)
	}

	empty := buildLatencySummary(nil)
	if empty != (latencySummary{}) {
		t.Errorf("expected zero summary for empty input, got %+v", empty)
	}
}

func TestRatio(t *testing.T) {
	if got := ratio(1, 4); math.Abs(got-0.25) > 1e-9 {
		t.Errorf("ratio(1,4) = %f, want 0.25", got)
	}
	if got := ratio(1, 0); got != 0 {
		t.Errorf("ratio with zero total = %f, want 0", got)
	}
}

func TestCollector_RecordAndReport(t *testing.T) {
	col := newCollector()
	startedAt := time.Now()

	col.record("scenario", 10*time.Millisecond, "ok", true)
	col.record("scenario", 20*time.Millisecond, "error", false)
	col.record("CreateBill", 5*time.Millisecond, "201", true)
	col.record("CreateBill", 7*time.Millisecond, "409", false)

	result := col.buildReport(startedAt, time.Second)

	if result.TotalScenarios != 2 || result.SuccessScenarios != 1 || result.FailedScenarios != 1 {
		t.Errorf("unexpected scenario totals: %+v", result)
	}
	if math.Abs(result.ErrorRate-0.5) > 1e-9 {
		t.Errorf("error rate = %f, want 0.5", result.ErrorRate)
	}
	if math.Abs(result.RPS-2) > 1e-9 {
		t.Errorf("rps = %f, want 2", result.RPS)
	}

	createStats, ok := result.Methods["CreateBill"]
	if !ok {
		t.Fatal("expected CreateBill method stats")
	}
	if createStats.Calls != 2 || createStats.Statuses["201"] != 1 || createStats.Statuses["409"] != 1 {
		t.Errorf("unexpected CreateBill stats: %+v", createStats)
	}
}

func TestDispatchJobs_CountMode(t *testing.T) {
	jobs := make(chan int, 16)
	dispatchJobs(jobs, config{total: 5})

	var got []int
	for id := range jobs {
		got = append(got, id)
	}
	if len(got) != 5 {
		t.Errorf("expected 5 jobs, got %d", len(got))
	}
}

func TestDispatchJobs_DurationModeStops(t *testing.T) {
	jobs := make(chan int, 1024)

	done := make(chan struct{})
	go func() {
		dispatchJobs(jobs, config{duration: 30 * time.Millisecond})
		close(done)
	}()

	// Считываем задания, чтобы диспетчер не блокировался.
	count := 0
	for range jobs {
		count++
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatchJobs did not stop by duration")
	}
	if count == 0 {
		t.Error("expected at least one dispatched job")
	}
}

func newTestBillingServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/bills", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(idempotencyHeader) == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "bill-1", "number": "INF-00001"})
	})
	mux.HandleFunc("GET /api/v1/bills/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "bill-1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "bill-1"})
	})
	return httptest.NewServer(mux)
}

func testConfig(baseURL string, mode loadMode) config {
	return config{
		baseURL:     baseURL,
		timeout:     2 * time.Second,
		mode:        mode,
		productID:   "book-madol-doova",
		qty:         1,
		customerTag: "load",
	}
}

func TestRunScenario_Checkout(t *testing.T) {
	server := newTestBillingServer(t)
	defer server.Close()

	col := newCollector()
	cfg := testConfig(server.URL, modeCheckout)

	if err := runScenario(server.Client(), cfg, 1, "run-1", col); err != nil {
		t.Fatalf("runScenario: %v", err)
	}

	result := col.buildReport(time.Now(), time.Second)
	if result.SuccessScenarios != 1 {
		t.Errorf("expected 1 successful scenario, got %+v", result)
	}
	if result.Methods["CreateBill"].Statuses["201"] != 1 {
		t.Errorf("expected one 201 from CreateBill, got %+v", result.Methods["CreateBill"])
	}
}

func TestRunScenario_CheckoutVerify(t *testing.T) {
	server := newTestBillingServer(t)
	defer server.Close()

	col := newCollector()
	cfg := testConfig(server.URL, modeCheckoutVerify)

	if err := runScenario(server.Client(), cfg, 2, "run-2", col); err != nil {
		t.Fatalf("runScenario: %v", err)
	}

	result := col.buildReport(time.Now(), time.Second)
	if result.Methods["GetBill"].Statuses["200"] != 1 {
		t.Errorf("expected one 200 from GetBill, got %+v", result.Methods["GetBill"])
	}
}

func TestRunScenario_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer server.Close()

	col := newCollector()
	cfg := testConfig(server.URL, modeCheckout)

	if err := runScenario(server.Client(), cfg, 3, "run-3", col); err == nil {
		t.Fatal("expected error for 409 response")
	}

	result := col.buildReport(time.Now(), time.Second)
	if result.FailedScenarios != 1 {
		t.Errorf("expected 1 failed scenario, got %+v", result)
	}
	if result.Methods["CreateBill"].Statuses["409"] != 1 {
		t.Errorf("expected one 409 from CreateBill, got %+v", result.Methods["CreateBill"])
	}
}

func TestWriteJSONReport(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.json")

	result := report{TotalScenarios: 3, SuccessScenarios: 3}
	if err := writeJSONReport(path, result); err != nil {
		t.Fatalf("writeJSONReport: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}

	var decoded report
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if decoded.TotalScenarios != 3 {
		t.Errorf("unexpected report content: %+v", decoded)
	}
}

func TestWriteJSONReport_RejectsBadPaths(t *testing.T) {
	if err := writeJSONReport(".", report{}); err == nil {
		t.Error("expected error for current directory path")
	}
	if err := writeJSONReport("../outside.json", report{}); err == nil {
		t.Error("expected error for path outside current directory")
	}
}

func TestRunTarget(t *testing.T) {
	if got := runTarget(config{total: 10}); got != "count:10" {
		t.Errorf("unexpected run target: %s", got)
	}
	if got := runTarget(config{duration: time.Minute}); got != "duration:1m0s" {
		t.Errorf("unexpected run target: %s", got)
	}
	if got := runTarget(config{duration: time.Minute, total: 5, totalSet: true}); got != "duration:1m0s,max-total:5" {
		t.Errorf("unexpected run target: %s", got)
	}
}
