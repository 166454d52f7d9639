// Package report renders shopper-behaviour charts from stored events.
// These are operator-facing HTML pages for eyeballing a deployment without
// pulling the raw JSON.
package report

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/shelfsight/shelfsight/internal/httputil"
	"github.com/shelfsight/shelfsight/internal/store"
)

// eventTypeOrder fixes the bar ordering so charts are comparable day to day.
var eventTypeOrder = []string{"MOVED", "CART_ABANDONED", "WINDOW_SHOPPED", "PRODUCT_PURCHASED"}

// Handler serves the report pages.
type Handler struct {
	store *store.Store
}

// NewHandler creates a report handler over the given store.
func NewHandler(st *store.Store) *Handler {
	return &Handler{store: st}
}

// Routes registers the report endpoints on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/report/behavior", h.handleBehaviorReport)
}

// handleBehaviorReport renders event totals and hourly activity for the last
// N days (?days, default 1).
func (h *Handler) handleBehaviorReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	days := 1
	if d := r.URL.Query().Get("days"); d != "" {
		parsed, err := strconv.Atoi(d)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "invalid 'days' parameter")
			return
		}
		days = parsed
	}
	since := time.Now().Add(-time.Duration(days) * 24 * time.Hour)

	counts, err := h.store.EventCounts(since)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to count events: %v", err))
		return
	}
	events, err := h.store.ListEvents(store.EventFilter{Since: since})
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list events: %v", err))
		return
	}

	page := components.NewPage()
	page.AddCharts(h.totalsChart(counts, days), h.activityChart(events, since, days))

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render report: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func (h *Handler) totalsChart(counts map[string]int, days int) *charts.Bar {
	y := make([]opts.BarData, 0, len(eventTypeOrder))
	for _, typ := range eventTypeOrder {
		y = append(y, opts.BarData{Value: counts[typ]})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Shopper Behaviour", Subtitle: fmt.Sprintf("last %dd", days)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(eventTypeOrder).
		AddSeries("events", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}

func (h *Handler) activityChart(events []store.BehavioralEvent, since time.Time, days int) *charts.Line {
	hours := days * 24
	buckets := make([]int, hours)
	labels := make([]string, hours)
	start := since.Truncate(time.Hour)
	for i := range labels {
		labels[i] = start.Add(time.Duration(i) * time.Hour).Format("Jan 2 15:04")
	}
	for _, ev := range events {
		idx := int(ev.OccurredAt.Sub(start) / time.Hour)
		if idx >= 0 && idx < hours {
			buckets[idx]++
		}
	}

	y := make([]opts.LineData, hours)
	for i, n := range buckets {
		y[i] = opts.LineData{Value: n}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Hourly Activity"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	line.SetXAxis(labels).AddSeries("events", y)
	return line
}
