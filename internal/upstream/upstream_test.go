package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/onnwee/jobrec/internal/geo"
	"github.com/onnwee/jobrec/internal/model"
)

const testKey = "secret-key"

type lastRequest struct {
	p atomic.Pointer[http.Request]
}

func (l *lastRequest) get() *http.Request { return l.p.Load() }

// newTestServer serves body for path and records the last request.
func newTestServer(t *testing.T, routes map[string]string) (*httptest.Server, *lastRequest) {
	t.Helper()
	last := &lastRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		last.p.Store(r.Clone(context.Background()))
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, last
}

func testOptions(baseURL string) Options {
	return Options{BaseURL: baseURL, APIKey: testKey, Timeout: time.Second}
}

func getCounterVecValue(vec *prometheus.CounterVec, labels ...string) float64 {
	metric, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		return -1
	}
	var m dto.Metric
	if err := metric.Write(&m); err != nil {
		return -1
	}
	return m.GetCounter().GetValue()
}

func getGaugeVecValue(vec *prometheus.GaugeVec, labels ...string) float64 {
	metric, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		return -1
	}
	var m dto.Metric
	if err := metric.Write(&m); err != nil {
		return -1
	}
	return m.GetGauge().GetValue()
}

func TestJobsClient_Jobs(t *testing.T) {
	srv, last := newTestServer(t, map[string]string{
		"/api/v1/jobs": `[
			{"id":1,"userId":10,"title":"Fix sink","category":"PLUMBER","status":"ACCEPTED","hourlyRate":25.5,"experience":3,"lat":40.1,"lon":-73.2},
			{"id":2,"userId":20,"title":"Paint","category":"PAINTER","status":"PENDING"}
		]`,
	})
	metrics := NewMetrics()
	c := NewJobsClient(testOptions(srv.URL), metrics, nil)

	var jobs []model.Job
	for job, err := range c.Jobs(context.Background()) {
		if err != nil {
			t.Fatalf("Jobs() error = %v", err)
		}
		jobs = append(jobs, job)
	}

	if len(jobs) != 2 {
		t.Fatalf("got %d jobs, want 2", len(jobs))
	}
	if jobs[0].ID != 1 || jobs[0].WorkerID != 10 || !jobs[0].Active() {
		t.Errorf("jobs[0] = %+v", jobs[0])
	}
	if jobs[0].HourlyRate == nil || *jobs[0].HourlyRate != 25.5 {
		t.Errorf("jobs[0].HourlyRate = %v, want 25.5", jobs[0].HourlyRate)
	}
	if jobs[1].Experience != nil || jobs[1].Active() {
		t.Errorf("jobs[1] = %+v", jobs[1])
	}

	if got := last.get().Header.Get(APIKeyHeader); got != testKey {
		t.Errorf("%s = %q, want %q", APIKeyHeader, got, testKey)
	}
	if got := last.get().URL.Query().Get("page"); got != "0" {
		t.Errorf("page = %q, want 0", got)
	}
	if got := last.get().URL.Query().Get("size"); got != "2147483647" {
		t.Errorf("size = %q, want 2147483647", got)
	}
	if got := getCounterVecValue(metrics.requestsTotal, ServiceJobs, ResultSuccess); got != 1 {
		t.Errorf("success calls = %v, want 1", got)
	}
}

func TestJobsClient_JobsStopsEarly(t *testing.T) {
	srv, _ := newTestServer(t, map[string]string{
		"/api/v1/jobs": `[{"id":1},{"id":2},{"id":3}]`,
	})
	c := NewJobsClient(testOptions(srv.URL), nil, nil)

	n := 0
	for _, err := range c.Jobs(context.Background()) {
		if err != nil {
			t.Fatalf("Jobs() error = %v", err)
		}
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Errorf("iterated %d jobs, want 2", n)
	}
}

func TestJobsClient_JobsErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not an array", `{"id":1}`},
		{"truncated", `[{"id":1},{"id":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, map[string]string{"/api/v1/jobs": tt.body})
			c := NewJobsClient(testOptions(srv.URL), nil, nil)

			var gotErr error
			for _, err := range c.Jobs(context.Background()) {
				if err != nil {
					gotErr = err
					break
				}
			}
			if gotErr == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestJobsClient_JobsOutlivesTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		_, _ = w.Write([]byte("["))
		for i := 1; i <= 4; i++ {
			if i > 1 {
				_, _ = w.Write([]byte(","))
			}
			_, _ = fmt.Fprintf(w, `{"id":%d,"userId":%d,"status":"ACCEPTED"}`, i, i*10)
			flusher.Flush()
			time.Sleep(100 * time.Millisecond)
		}
		_, _ = w.Write([]byte("]"))
	}))
	t.Cleanup(srv.Close)

	opts := testOptions(srv.URL)
	opts.Timeout = 150 * time.Millisecond
	c := NewJobsClient(opts, nil, nil)

	var ids []int64
	for job, err := range c.Jobs(context.Background()) {
		if err != nil {
			t.Fatalf("Jobs() error after %d jobs = %v", len(ids), err)
		}
		ids = append(ids, job.ID)
		time.Sleep(50 * time.Millisecond)
	}
	if len(ids) != 4 {
		t.Errorf("got jobs %v, want 4", ids)
	}
}

func TestJobsClient_JobsHeaderTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	opts := testOptions(srv.URL)
	opts.Timeout = 50 * time.Millisecond
	c := NewJobsClient(opts, nil, nil)

	start := time.Now()
	var gotErr error
	for _, err := range c.Jobs(context.Background()) {
		gotErr = err
		break
	}
	if !errors.Is(gotErr, errHeaderTimeout) {
		t.Fatalf("error = %v, want header timeout", gotErr)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Jobs() took %v to give up", elapsed)
	}
}

func TestJobsClient_Job(t *testing.T) {
	srv, _ := newTestServer(t, map[string]string{
		"/api/v1/jobs/7": `{"id":7,"userId":70,"status":"ACCEPTED"}`,
	})
	c := NewJobsClient(testOptions(srv.URL), nil, nil)

	job, err := c.Job(context.Background(), 7)
	if err != nil {
		t.Fatalf("Job() error = %v", err)
	}
	if job.ID != 7 || job.WorkerID != 70 {
		t.Errorf("Job() = %+v", job)
	}

	_, err = c.Job(context.Background(), 8)
	if !IsNotFound(err) {
		t.Errorf("Job(8) error = %v, want not found", err)
	}
}

func TestUsersClient(t *testing.T) {
	srv, last := newTestServer(t, map[string]string{
		"/api/v1/users/5":       `{"id":5,"address":"1 Main St","city":"Springfield","zipCode":"12345","country":"US"}`,
		"/api/v1/preferences/5": `{"preferredDistanceRadius":25,"preferredExperience":2,"wantedCategories":["PLUMBER"]}`,
		"/api/v1/favorites":     `[10,11]`,
		"/api/v1/blocks/5":      `[20]`,
	})
	c := NewUsersClient(testOptions(srv.URL), nil, nil)
	ctx := context.Background()

	p, err := c.Profile(ctx, 5)
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if p.City != "Springfield" || p.ZipCode != "12345" {
		t.Errorf("Profile() = %+v", p)
	}

	prefs, err := c.Preferences(ctx, 5)
	if err != nil {
		t.Fatalf("Preferences() error = %v", err)
	}
	if prefs.UserID != 5 || *prefs.PreferredRadiusKm != 25 || *prefs.PreferredExperience != 2 || !prefs.Wants("PLUMBER") {
		t.Errorf("Preferences() = %+v", prefs)
	}

	favs, err := c.FavoriteWorkerIDs(ctx, 5)
	if err != nil {
		t.Fatalf("FavoriteWorkerIDs() error = %v", err)
	}
	if got := last.get().URL.Query().Get("userId"); got != "5" {
		t.Errorf("userId = %q, want 5", got)
	}
	if !favs.Contains(10) || !favs.Contains(11) || len(favs) != 2 {
		t.Errorf("FavoriteWorkerIDs() = %v", favs)
	}

	blocked, err := c.BlockedWorkerIDs(ctx, 5)
	if err != nil {
		t.Fatalf("BlockedWorkerIDs() error = %v", err)
	}
	if !blocked.Contains(20) || len(blocked) != 1 {
		t.Errorf("BlockedWorkerIDs() = %v", blocked)
	}
}

func TestGeocoderClient_Coordinates(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    geo.Coordinates
		wantErr bool
	}{
		{"string coordinates", `[{"lat":"51.5073","lon":"-0.1276","display_name":"London"}]`, geo.Coordinates{Lat: 51.5073, Lng: -0.1276}, false},
		{"numeric coordinates", `[{"lat":48.8566,"lon":2.3522}]`, geo.Coordinates{Lat: 48.8566, Lng: 2.3522}, false},
		{"no result", `[]`, geo.Unknown, false},
		{"missing lon", `[{"lat":"1"}]`, geo.Unknown, true},
		{"invalid json", `[{`, geo.Unknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, last := newTestServer(t, map[string]string{"/search": tt.body})
			c := NewGeocoderClient(Options{BaseURL: srv.URL}, nil, nil)

			got, err := c.Coordinates(context.Background(), model.UserProfile{
				ID: 1, Address: " 10  Downing St ", City: "London", ZipCode: "SW1A 2AA", Country: "UK",
			})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Coordinates() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Coordinates() = %+v, want %+v", got, tt.want)
			}

			q := last.get().URL.Query()
			if q.Get("q") != "10 Downing St London SW1A 2AA UK" {
				t.Errorf("q = %q", q.Get("q"))
			}
			if q.Get("format") != "jsonv2" || q.Get("limit") != "1" {
				t.Errorf("format=%q limit=%q", q.Get("format"), q.Get("limit"))
			}
			if last.get().Header.Get(APIKeyHeader) != "" {
				t.Error("geocoder request carried an API key")
			}
		})
	}
}

func TestReviewsClient(t *testing.T) {
	srv, _ := newTestServer(t, map[string]string{
		"/api/v1/reviews/user-rating/10": `{"id":10,"reviewType":"USER","rating":4.5,"reviewCount":8}`,
		"/api/v1/reviews/job-rating/1":   `{"id":1,"reviewType":"USER","rating":3.0,"reviewCount":2}`,
		"/api/v1/reviews/job/1":          `[{"id":100,"rating":5,"text":"great"},{"id":101,"rating":3}]`,
	})
	c := NewReviewsClient(testOptions(srv.URL), nil, nil)
	ctx := context.Background()

	worker, err := c.RatingStats(ctx, model.SubjectWorker, 10)
	if err != nil {
		t.Fatalf("RatingStats(worker) error = %v", err)
	}
	if worker.Subject != model.SubjectWorker || *worker.Average != 4.5 || worker.Count != 8 {
		t.Errorf("worker rating = %+v", worker)
	}

	// The tag is returned as sent so the caller can detect the mismatch.
	job, err := c.RatingStats(ctx, model.SubjectJob, 1)
	if err != nil {
		t.Fatalf("RatingStats(job) error = %v", err)
	}
	if job.Subject != model.SubjectWorker {
		t.Errorf("job rating tag = %q, want USER as sent", job.Subject)
	}

	reviews, err := c.JobReviews(ctx, 1)
	if err != nil {
		t.Fatalf("JobReviews() error = %v", err)
	}
	if len(reviews) != 2 || reviews[0].Rating != 5 {
		t.Errorf("JobReviews() = %+v", reviews)
	}
}

func TestReportsClient(t *testing.T) {
	srv, _ := newTestServer(t, map[string]string{
		"/api/v1/reports/user-info/10": `{"id":10,"type":"USER","lowSeverityCount":1,"mediumSeverityCount":2,"highSeverityCount":3}`,
		"/api/v1/reports/job-info/1":   `{"id":1,"type":"JOB","lowSeverityCount":0,"mediumSeverityCount":0,"highSeverityCount":1}`,
	})
	c := NewReportsClient(testOptions(srv.URL), nil, nil)

	w, err := c.ReportStats(context.Background(), model.SubjectWorker, 10)
	if err != nil {
		t.Fatalf("ReportStats(worker) error = %v", err)
	}
	if w.Subject != model.SubjectWorker || w.Low != 1 || w.Medium != 2 || w.High != 3 {
		t.Errorf("worker reports = %+v", w)
	}

	j, err := c.ReportStats(context.Background(), model.SubjectJob, 1)
	if err != nil {
		t.Fatalf("ReportStats(job) error = %v", err)
	}
	if j.Subject != model.SubjectJob || j.High != 1 {
		t.Errorf("job reports = %+v", j)
	}
}

func TestReservationsClient(t *testing.T) {
	srv, _ := newTestServer(t, map[string]string{
		"/api/v1/reservations": `[{"id":1,"customerId":5,"workerId":10,"jobId":3,"status":"APPROVED"}]`,
	})
	c := NewReservationsClient(testOptions(srv.URL), nil, nil)

	got, err := c.Reservations(context.Background())
	if err != nil {
		t.Fatalf("Reservations() error = %v", err)
	}
	if len(got) != 1 || got[0].JobID != 3 || got[0].Status != model.ReservationApproved {
		t.Errorf("Reservations() = %+v", got)
	}
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`[1]`))
	}))
	defer srv.Close()

	opts := testOptions(srv.URL)
	opts.RetryCount = 1
	c := NewUsersClient(opts, nil, nil)

	ids, err := c.BlockedWorkerIDs(context.Background(), 1)
	if err != nil {
		t.Fatalf("BlockedWorkerIDs() error = %v", err)
	}
	if !ids.Contains(1) {
		t.Errorf("BlockedWorkerIDs() = %v", ids)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("server called %d times, want 2", got)
	}
}

func TestClient_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	metrics := NewMetrics()
	c := NewUsersClient(testOptions(srv.URL), metrics, nil)

	_, err := c.Profile(context.Background(), 1)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *StatusError", err)
	}
	if se.Code != http.StatusServiceUnavailable || se.Service != ServiceUsers || se.Operation != "profile" {
		t.Errorf("StatusError = %+v", se)
	}
	if IsNotFound(err) {
		t.Error("503 reported as not found")
	}
	if got := getCounterVecValue(metrics.requestsTotal, ServiceUsers, ResultError); got != 1 {
		t.Errorf("error calls = %v, want 1", got)
	}
}

func TestClient_CircuitBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	metrics := NewMetrics()
	opts := testOptions(srv.URL)
	opts.BreakerFailures = 2
	opts.BreakerTimeout = time.Hour
	c := NewReportsClient(opts, metrics, nil)
	ctx := context.Background()

	if err := c.HealthCheck(ctx); err != nil {
		t.Fatalf("HealthCheck() before failures = %v", err)
	}
	for range 2 {
		if _, err := c.ReportStats(ctx, model.SubjectJob, 1); err == nil {
			t.Fatal("expected error from failing upstream")
		}
	}

	_, err := c.ReportStats(ctx, model.SubjectJob, 1)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("error = %v, want open circuit", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("server called %d times, want 2", got)
	}
	if got := getCounterVecValue(metrics.requestsTotal, ServiceReports, ResultRejected); got != 1 {
		t.Errorf("rejected calls = %v, want 1", got)
	}
	if got := getGaugeVecValue(metrics.circuitState, ServiceReports); got != 2 {
		t.Errorf("circuit state = %v, want 2 (open)", got)
	}
	if err := c.HealthCheck(ctx); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("HealthCheck() = %v, want ErrCircuitOpen", err)
	}
}

func TestClient_NotFoundDoesNotTrip(t *testing.T) {
	srv, _ := newTestServer(t, map[string]string{})
	opts := testOptions(srv.URL)
	opts.BreakerFailures = 1
	c := NewJobsClient(opts, nil, nil)

	for range 3 {
		if _, err := c.Job(context.Background(), 1); !IsNotFound(err) {
			t.Fatalf("error = %v, want not found", err)
		}
	}
}

func TestClient_RateLimitHonoursContext(t *testing.T) {
	srv, _ := newTestServer(t, map[string]string{"/api/v1/blocks/1": `[]`})
	opts := testOptions(srv.URL)
	opts.RatePerSecond = 0.001
	opts.Burst = 1
	c := NewUsersClient(opts, nil, nil)

	if _, err := c.BlockedWorkerIDs(context.Background(), 1); err != nil {
		t.Fatalf("first call error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.BlockedWorkerIDs(ctx, 1); err == nil {
		t.Error("expected the limiter to reject the second call")
	}
}

func TestSearchQuery(t *testing.T) {
	got := SearchQuery(model.UserProfile{Address: "  5th   Ave ", City: "New York", Country: "US"})
	if got != "5th Ave New York US" {
		t.Errorf("SearchQuery() = %q", got)
	}
}

func TestCountsAsSuccess(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, true},
		{context.Canceled, true},
		{&StatusError{Code: 404}, true},
		{&StatusError{Code: 429}, false},
		{&StatusError{Code: 502}, false},
		{errors.New("dial tcp: refused"), false},
	}
	for _, tt := range tests {
		if got := countsAsSuccess(tt.err); got != tt.want {
			t.Errorf("countsAsSuccess(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
