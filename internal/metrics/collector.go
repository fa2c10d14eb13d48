// Package metrics is a small Prometheus text-format collector for the relay.
// It has no dependency on prometheus/client_golang.
package metrics

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the process-wide registry.
var Collector = NewRegistry()

// Registry holds counters, gauges and histograms keyed by name and labels.
type Registry struct {
	counters   sync.Map // name{labels} -> *Counter
	gauges     sync.Map // name{labels} -> *Gauge
	histograms sync.Map // name{labels} -> *Histogram
	startTime  time.Time
}

func NewRegistry() *Registry {
	return &Registry{startTime: time.Now()}
}

// Uptime returns how long the registry has existed.
func (r *Registry) Uptime() time.Duration {
	return time.Since(r.startTime)
}

type Counter struct {
	name   string
	help   string
	labels string
	value  atomic.Int64
}

func (c *Counter) Inc() { c.value.Add(1) }
func (c *Counter) Add(n int64) { c.value.Add(n) }
func (c *Counter) Value() int64 { return c.value.Load() }

type Gauge struct {
	name   string
	help   string
	labels string
	value  atomic.Int64
}

func (g *Gauge) Set(v int64) { g.value.Store(v) }
func (g *Gauge) Inc() { g.value.Add(1) }
func (g *Gauge) Dec() { g.value.Add(-1) }
func (g *Gauge) Value() int64 { return g.value.Load() }

type Histogram struct {
	name    string
	help    string
	labels  string
	mu      sync.Mutex
	count   int64
	sum     float64
	buckets []histBucket
}

type histBucket struct {
	le    float64
	count int64
}

// Observe records v. Buckets are cumulative.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i := range h.buckets {
		if v <= h.buckets[i].le {
			h.buckets[i].count++
		}
	}
}

// Count returns the number of observations.
func (h *Histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Labels renders key/value pairs as a Prometheus label set body,
// e.g. Labels("provider", "gemini") == `provider="gemini"`.
func Labels(kv ...string) string {
	var sb strings.Builder
	for i := 0; i+1 < len(kv); i += 2 {
		if sb.Len() > 0 {
			sb.WriteByte(',')
		}
		v := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`).Replace(kv[i+1])
		fmt.Fprintf(&sb, "%s=%q", kv[i], v)
	}
	return sb.String()
}

func (r *Registry) Counter(name, help, labels string) *Counter {
	key := name + "{" + labels + "}"
	if v, ok := r.counters.Load(key); ok {
		return v.(*Counter)
	}
	actual, _ := r.counters.LoadOrStore(key, &Counter{name: name, help: help, labels: labels})
	return actual.(*Counter)
}

func (r *Registry) Gauge(name, help, labels string) *Gauge {
	key := name + "{" + labels + "}"
	if v, ok := r.gauges.Load(key); ok {
		return v.(*Gauge)
	}
	actual, _ := r.gauges.LoadOrStore(key, &Gauge{name: name, help: help, labels: labels})
	return actual.(*Gauge)
}

func (r *Registry) Histogram(name, help, labels string, buckets []float64) *Histogram {
	key := name + "{" + labels + "}"
	if v, ok := r.histograms.Load(key); ok {
		return v.(*Histogram)
	}
	bs := append([]float64(nil), buckets...)
	sort.Float64s(bs)
	hb := make([]histBucket, len(bs))
	for i, b := range bs {
		hb[i] = histBucket{le: b}
	}
	actual, _ := r.histograms.LoadOrStore(key, &Histogram{name: name, help: help, labels: labels, buckets: hb})
	return actual.(*Histogram)
}

// sortedKeys returns the map keys in order so scrapes are stable.
func sortedKeys(m *sync.Map) []string {
	var keys []string
	m.Range(func(k, _ any) bool {
		keys = append(keys, k.(string))
		return true
	})
	sort.Strings(keys)
	return keys
}

func writeSample(w io.Writer, name, labels string, value any) {
	if labels != "" {
		fmt.Fprintf(w, "%s{%s} %v\n", name, labels, value)
	} else {
		fmt.Fprintf(w, "%s %v\n", name, value)
	}
}

// WriteText renders every metric in Prometheus exposition format.
func (r *Registry) WriteText(w io.Writer) {
	fmt.Fprintf(w, "# HELP askrelay_uptime_seconds Time since start in seconds\n")
	fmt.Fprintf(w, "# TYPE askrelay_uptime_seconds gauge\n")
	fmt.Fprintf(w, "askrelay_uptime_seconds %d\n", int64(r.Uptime().Seconds()))

	header := make(map[string]bool)
	for _, k := range sortedKeys(&r.counters) {
		v, _ := r.counters.Load(k)
		c := v.(*Counter)
		if !header[c.name] {
			fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n", c.name, c.help, c.name)
			header[c.name] = true
		}
		writeSample(w, c.name, c.labels, c.Value())
	}

	for _, k := range sortedKeys(&r.gauges) {
		v, _ := r.gauges.Load(k)
		g := v.(*Gauge)
		if !header[g.name] {
			fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n", g.name, g.help, g.name)
			header[g.name] = true
		}
		writeSample(w, g.name, g.labels, g.Value())
	}

	for _, k := range sortedKeys(&r.histograms) {
		v, _ := r.histograms.Load(k)
		h := v.(*Histogram)
		h.mu.Lock()
		if !header[h.name] {
			fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s histogram\n", h.name, h.help, h.name)
			header[h.name] = true
		}
		sep := ""
		if h.labels != "" {
			sep = h.labels + ","
		}
		for _, b := range h.buckets {
			le := fmt.Sprintf("%g", b.le)
			if math.IsInf(b.le, 1) {
				le = "+Inf"
			}
			fmt.Fprintf(w, "%s_bucket{%sle=\"%s\"} %d\n", h.name, sep, le, b.count)
		}
		fmt.Fprintf(w, "%s_bucket{%sle=\"+Inf\"} %d\n", h.name, sep, h.count)
		writeSample(w, h.name+"_count", h.labels, h.count)
		writeSample(w, h.name+"_sum", h.labels, fmt.Sprintf("%f", h.sum))
		h.mu.Unlock()
	}
}

// Handler serves WriteText over HTTP.
func (r *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		r.WriteText(w)
	}
}

var latencyBuckets = []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60}

// RequestsTotal counts dispatches by provider and outcome ("ok" or an error kind).
func RequestsTotal(provider, outcome string) *Counter {
	return Collector.Counter("askrelay_requests_total", "Dispatched requests by provider and outcome",
		Labels("provider", provider, "outcome", outcome))
}

// UpstreamLatency tracks time spent in adapter calls.
func UpstreamLatency(provider string) *Histogram {
	return Collector.Histogram("askrelay_upstream_latency_seconds", "Upstream call latency in seconds",
		Labels("provider", provider), latencyBuckets)
}

var (
	RejectedTotal   = Collector.Counter("askrelay_rejected_messages_total", "Inbound messages rejected as malformed", "")
	ChunksForwarded = Collector.Counter("askrelay_chunks_forwarded_total", "Stream chunks published to listeners", "")
	ChunksDropped   = Collector.Counter("askrelay_chunks_dropped_total", "Stream chunks a listener did not accept in time", "")
	InFlight        = Collector.Gauge("askrelay_requests_in_flight", "Requests currently being dispatched", "")
	WSClients       = Collector.Gauge("askrelay_ws_clients", "Connected WebSocket clients", "")
)
