package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/fenceline/catsentry/internal/httputil"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// handleReport renders an hourly activity bar chart (detections and
// trigger attempts) as a self-contained HTML page.
// Query params:
//   - hours (optional; default 24, max 720) window ending now
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "event store not configured")
		return
	}

	hours := 24 // default
	if h := r.URL.Query().Get("hours"); h != "" {
		parsed, err := strconv.Atoi(h)
		if err != nil || parsed < 1 || parsed > 720 {
			httputil.BadRequest(w, "Invalid 'hours' parameter")
			return
		}
		hours = parsed
	}

	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	activity, err := s.db.HourlyActivity(since)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve hourly activity: %v", err))
		return
	}

	x := make([]string, 0, len(activity))
	detections := make([]opts.BarData, 0, len(activity))
	triggers := make([]opts.BarData, 0, len(activity))
	for _, bucket := range activity {
		x = append(x, bucket.Hour.Format("Jan 2 15:04"))
		detections = append(detections, opts.BarData{Value: bucket.Detections})
		triggers = append(triggers, opts.BarData{Value: bucket.Triggers})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Detection Activity", Width: "100%", Height: "720px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Hourly Activity", Subtitle: fmt.Sprintf("last %d hours, %d active buckets", hours, len(activity))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("detections", detections).
		AddSeries("triggers", triggers)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(bar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
