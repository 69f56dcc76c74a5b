package datadog

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"github.com/JonMunkholm/schemaprobe/internal/metrics"
)

// fakeSubmitter captures payloads submitted by Backend.Flush().
type fakeSubmitter struct {
	mu       sync.Mutex
	payloads []datadogV2.MetricPayload
	err      error
}

func (f *fakeSubmitter) SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, body)
	return datadogV2.IntakePayloadAccepted{}, nil, f.err
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func (f *fakeSubmitter) last() datadogV2.MetricPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.payloads[len(f.payloads)-1]
}

func newTestBackend(t *testing.T, sub *fakeSubmitter) *Backend {
	t.Helper()
	t.Setenv("ENV", "test")
	b, err := NewBackend(context.Background(), Options{
		Tags:      []string{"team:data"},
		now:       func() time.Time { return time.Unix(1700000000, 0) },
		newTicker: func(time.Duration) *time.Ticker { return time.NewTicker(time.Hour) },
		submitter: sub,
	})
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}
	return b
}

func seriesByMetric(p datadogV2.MetricPayload) map[string]datadogV2.MetricSeries {
	out := make(map[string]datadogV2.MetricSeries, len(p.Series))
	for _, s := range p.Series {
		out[s.Metric+"|"+strings.Join(s.Tags, ",")] = s
	}
	return out
}

func TestBackend_FlushCounters(t *testing.T) {
	sub := &fakeSubmitter{}
	b := newTestBackend(t, sub)

	b.IncCounter(metrics.ImportRows, 1000, metrics.Labels{"dialect": "sqlite"})
	b.IncCounter(metrics.ImportRows, 500, metrics.Labels{"dialect": "sqlite"})
	b.IncCounter(metrics.ImportBatches, 2, metrics.Labels{"dialect": "sqlite"})
	b.IncCounter("not_a_known_metric", 1, nil)
	b.IncCounter(metrics.ImportRows, -5, nil)

	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if sub.count() != 1 {
		t.Fatalf("submissions = %d, want 1", sub.count())
	}

	got := seriesByMetric(sub.last())
	if len(got) != 2 {
		t.Fatalf("series = %d, want 2: %v", len(got), got)
	}

	tags := "env:test,service:schemaprobe,team:data,dialect:sqlite"
	rows, ok := got["schemaprobe.import.rows|"+tags]
	if !ok {
		t.Fatalf("missing import rows series; have %v", reflect.ValueOf(got).MapKeys())
	}
	if *rows.Type != datadogV2.METRICINTAKETYPE_COUNT {
		t.Errorf("Type = %v, want COUNT", *rows.Type)
	}
	if v := *rows.Points[0].Value; v != 1500 {
		t.Errorf("import rows = %v, want 1500", v)
	}
	if ts := *rows.Points[0].Timestamp; ts != 1700000000 {
		t.Errorf("timestamp = %d", ts)
	}
}

func TestBackend_FlushHistogram(t *testing.T) {
	sub := &fakeSubmitter{}
	b := newTestBackend(t, sub)
	defer b.Close()

	for _, v := range []float64{5, 1, 3, 2, 4} {
		b.ObserveHistogram(metrics.DiscoverDuration, v, metrics.Labels{"kind": "file", "status": "ok"})
	}
	b.ObserveHistogram(metrics.DiscoverDuration, -1, nil)

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	got := seriesByMetric(sub.last())
	tags := "env:test,service:schemaprobe,team:data,kind:file,status:ok"
	want := map[string]float64{
		".p50":     3,
		".p90":     5,
		".max":     5,
		".samples": 5,
	}
	for suffix, v := range want {
		s, ok := got["schemaprobe.discover.duration_seconds"+suffix+"|"+tags]
		if !ok {
			t.Errorf("missing series %s", suffix)
			continue
		}
		if *s.Points[0].Value != v {
			t.Errorf("%s = %v, want %v", suffix, *s.Points[0].Value, v)
		}
	}
}

func TestBackend_FlushEmptyAndErrors(t *testing.T) {
	sub := &fakeSubmitter{err: errors.New("intake down")}
	b := newTestBackend(t, sub)
	defer b.Close()

	if err := b.Flush(); err != nil {
		t.Fatalf("empty Flush() error = %v", err)
	}
	if sub.count() != 0 {
		t.Fatalf("empty flush submitted %d payloads", sub.count())
	}

	b.IncCounter(metrics.DiscoverTotal, 1, nil)
	if err := b.Flush(); err == nil || !strings.Contains(err.Error(), "intake down") {
		t.Fatalf("Flush() error = %v, want submit error", err)
	}

	// buffers are reset even when submission fails
	sub.err = nil
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if sub.count() != 1 {
		t.Errorf("submissions = %d, want 1", sub.count())
	}
}

func TestBackend_CloseTwice(t *testing.T) {
	b := newTestBackend(t, &fakeSubmitter{})
	if err := b.Close(); err != nil {
		t.Fatalf("first Close() error = %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}

func TestLabelTags(t *testing.T) {
	tests := []struct {
		name   string
		labels metrics.Labels
		want   string
	}{
		{"nil", nil, ""},
		{"sorted", metrics.Labels{"status": "ok", "kind": "file"}, "kind:file,status:ok"},
		{"empty value", metrics.Labels{"status": ""}, "status:unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := labelTags(tt.labels); got != tt.want {
				t.Errorf("labelTags() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveEnvTag(t *testing.T) {
	tests := []struct {
		name string
		env  string
		dd   string
		want string
	}{
		{"ENV wins", "prod", "stage", "env:prod"},
		{"DD_ENV fallback", "", "stage", "env:stage"},
		{"whitespace ignored", "   ", "\t", "env:unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ENV", tt.env)
			t.Setenv("DD_ENV", tt.dd)
			if got := resolveEnvTag(); got != tt.want {
				t.Errorf("resolveEnvTag() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPercentileNearestRank(t *testing.T) {
	tests := []struct {
		name string
		s    []float64
		p    float64
		want float64
	}{
		{"empty", nil, 0.5, 0},
		{"single", []float64{7}, 0.95, 7},
		{"p below 0", []float64{1, 2, 3}, -1, 1},
		{"p above 1", []float64{1, 2, 3}, 2, 3},
		{"median", []float64{1, 2, 3, 4, 5}, 0.5, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := percentileNearestRank(tt.s, tt.p); got != tt.want {
				t.Errorf("percentileNearestRank() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseTagsCSV(t *testing.T) {
	got := ParseTagsCSV(" env:prod, ,team:data ")
	want := []string{"env:prod", "team:data"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseTagsCSV() = %v, want %v", got, want)
	}
	if ParseTagsCSV("") != nil {
		t.Error("ParseTagsCSV(\"\") should be nil")
	}
}

func TestWrapInitErr(t *testing.T) {
	if wrapInitErr(nil) != nil {
		t.Fatal("wrapInitErr(nil) should be nil")
	}
	in := errors.New("boom")
	if got := wrapInitErr(in); !errors.Is(got, in) {
		t.Errorf("wrapInitErr() = %v, does not wrap", got)
	}
}
