package observability

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
)

// PrometheusExporter renders a Registry in the Prometheus text exposition
// format. Const labels identify the bot behind the series (chain,
// instance), so dashboards can tell two hornets on the same host apart.
type PrometheusExporter struct {
	registry *Registry
	constLbl map[string]string
}

// NewPrometheusExporter creates an exporter over the registry.
func NewPrometheusExporter(registry *Registry) *PrometheusExporter {
	return &PrometheusExporter{registry: registry}
}

// WithConstLabels stamps the given labels onto every exported series.
// Typical use: chain and instance identity from the config.
func (e *PrometheusExporter) WithConstLabels(labels map[string]string) *PrometheusExporter {
	e.constLbl = labels
	return e
}

// ServeHTTP serves the /metrics endpoint.
func (e *PrometheusExporter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(e.Format()))
}

// Format renders every registered metric, counters then gauges then
// histograms, each family sorted by name.
//
// Output follows https://prometheus.io/docs/instrumenting/exposition_formats/
func (e *PrometheusExporter) Format() string {
	var b strings.Builder

	e.registry.mu.RLock()
	defer e.registry.mu.RUnlock()

	for _, name := range sortedKeys(e.registry.counters) {
		c := e.registry.counters[name]
		e.writeScalar(&b, c.name, c.help, "counter", c.labels, c.Value())
	}
	for _, name := range sortedKeys(e.registry.gauges) {
		g := e.registry.gauges[name]
		e.writeScalar(&b, g.name, g.help, "gauge", g.labels, g.Value())
	}
	for _, name := range sortedKeys(e.registry.histograms) {
		e.writeHistogram(&b, e.registry.histograms[name])
	}
	return b.String()
}

// -----------------------------------------------------------------------
// Rendering
// -----------------------------------------------------------------------

func (e *PrometheusExporter) writeScalar(b *strings.Builder, name, help, kind string,
	labels map[string]string, v float64) {

	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s %s\n", name, help, name, kind)
	fmt.Fprintf(b, "%s%s %s\n\n", name, e.labelString(labels, "", ""), formatFloat(v))
}

func (e *PrometheusExporter) writeHistogram(b *strings.Builder, h *Histogram) {
	bounds, cumulative, sum, count := h.BucketCounts()

	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s histogram\n", h.name, h.help, h.name)
	for i, bound := range bounds {
		fmt.Fprintf(b, "%s_bucket%s %d\n",
			h.name, e.labelString(h.labels, "le", formatFloat(bound)), cumulative[i])
	}
	fmt.Fprintf(b, "%s_bucket%s %d\n", h.name, e.labelString(h.labels, "le", "+Inf"), count)

	base := e.labelString(h.labels, "", "")
	fmt.Fprintf(b, "%s_sum%s %s\n", h.name, base, formatFloat(sum))
	fmt.Fprintf(b, "%s_count%s %d\n\n", h.name, base, count)
}

// labelString merges const labels, per-metric labels, and an optional
// extra pair (the histogram le bound) into one sorted {k="v",...} block.
func (e *PrometheusExporter) labelString(labels map[string]string, extraKey, extraVal string) string {
	merged := make(map[string]string, len(e.constLbl)+len(labels)+1)
	for k, v := range e.constLbl {
		merged[k] = v
	}
	for k, v := range labels {
		merged[k] = v
	}
	if extraKey != "" {
		merged[extraKey] = extraVal
	}
	return formatLabels(merged)
}

// formatLabels renders a sorted {k="v",...} block, empty for no labels.
func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+strconv.Quote(labels[k]))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// formatFloat renders values the way Prometheus expects: bare integers
// without a decimal point, infinities as +Inf/-Inf.
func formatFloat(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	case math.IsNaN(v):
		return "NaN"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
