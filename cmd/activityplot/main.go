// Command activityplot renders an offline report from the events database:
// a summary of detection activity and confidence on stdout and a grouped
// hourly bar chart as a PNG.
package main

import (
	"flag"
	"fmt"
	"image/color"
	"log"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/fenceline/catsentry/internal/events"
)

var (
	dbPath    = flag.String("db", "catsentry.db", "Path to events database")
	hours     = flag.Int("hours", 168, "History window in hours")
	sampleCap = flag.Int("samples", 500, "Detection records to include in the confidence summary")
	output    = flag.String("output", "activity.png", "Output PNG path")
)

// maxAxisLabels bounds how many hour labels appear on the x axis so a
// week-long chart stays readable.
const maxAxisLabels = 12

func main() {
	flag.Parse()

	db, err := events.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	since := time.Now().UTC().Add(-time.Duration(*hours) * time.Hour)
	buckets, err := db.HourlyActivity(since)
	if err != nil {
		log.Fatalf("Failed to query hourly activity: %v", err)
	}

	detections, err := db.RecentDetections(*sampleCap)
	if err != nil {
		log.Fatalf("Failed to query detections: %v", err)
	}

	fmt.Print(summarize(*hours, since, buckets, detections))

	if len(buckets) == 0 {
		log.Printf("No activity in the last %dh; skipping chart", *hours)
		return
	}

	p, err := activityChart(buckets)
	if err != nil {
		log.Fatalf("Failed to build chart: %v", err)
	}
	if err := p.Save(14*vg.Inch, 6*vg.Inch, *output); err != nil {
		log.Fatalf("Failed to save chart: %v", err)
	}
	log.Printf("Wrote %s (%d hourly buckets)", *output, len(buckets))
}

// summarize formats the stdout report: totals, the busiest hour, per-hour
// spread, and the detection confidence distribution.
func summarize(windowHours int, since time.Time, buckets []events.HourlyCount, detections []events.DetectionEvent) string {
	var b strings.Builder

	totalDet, totalTrig := 0, 0
	busiest := -1
	for i, bucket := range buckets {
		totalDet += bucket.Detections
		totalTrig += bucket.Triggers
		if busiest < 0 || bucket.Detections > buckets[busiest].Detections {
			busiest = i
		}
	}

	fmt.Fprintln(&b, "=== Activity Summary ===")
	fmt.Fprintf(&b, "Window: last %dh (since %s UTC)\n", windowHours, since.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "Detections: %d across %d active hours\n", totalDet, len(buckets))
	fmt.Fprintf(&b, "Triggers:   %d\n", totalTrig)

	if busiest >= 0 {
		fmt.Fprintf(&b, "Busiest hour: %s UTC (%d detections)\n",
			buckets[busiest].Hour.Format("2006-01-02 15:04"), buckets[busiest].Detections)
	}

	if len(buckets) > 1 {
		perHour := make([]float64, len(buckets))
		for i, bucket := range buckets {
			perHour[i] = float64(bucket.Detections)
		}
		mean, std := stat.MeanStdDev(perHour, nil)
		fmt.Fprintf(&b, "Detections per active hour: mean %.1f, stddev %.1f\n", mean, std)
	}

	fmt.Fprintln(&b)
	fmt.Fprintln(&b, "=== Detection Confidence ===")
	if len(detections) == 0 {
		fmt.Fprintln(&b, "No detection records.")
		return b.String()
	}

	confs := make([]float64, len(detections))
	for i, d := range detections {
		confs[i] = d.Confidence
	}
	sort.Float64s(confs)

	mean, std := stat.MeanStdDev(confs, nil)
	fmt.Fprintf(&b, "Samples: %d\n", len(confs))
	fmt.Fprintf(&b, "Mean:    %.2f\n", mean)
	fmt.Fprintf(&b, "StdDev:  %.2f\n", std)
	fmt.Fprintf(&b, "Median:  %.2f\n", stat.Quantile(0.5, stat.Empirical, confs, nil))
	fmt.Fprintf(&b, "Range:   [%.2f, %.2f]\n", floats.Min(confs), floats.Max(confs))
	return b.String()
}

// activityChart builds a grouped bar chart with one detection bar and one
// trigger bar per active hour.
func activityChart(buckets []events.HourlyCount) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Hourly Activity"
	p.X.Label.Text = "Hour (UTC)"
	p.Y.Label.Text = "Events"

	detVals := make(plotter.Values, len(buckets))
	trigVals := make(plotter.Values, len(buckets))
	for i, bucket := range buckets {
		detVals[i] = float64(bucket.Detections)
		trigVals[i] = float64(bucket.Triggers)
	}

	w := vg.Points(12)

	detBars, err := plotter.NewBarChart(detVals, w)
	if err != nil {
		return nil, fmt.Errorf("detection bars: %w", err)
	}
	detBars.Color = color.RGBA{G: 180, A: 255}
	detBars.Offset = -w / 2

	trigBars, err := plotter.NewBarChart(trigVals, w)
	if err != nil {
		return nil, fmt.Errorf("trigger bars: %w", err)
	}
	trigBars.Color = color.RGBA{R: 200, A: 255}
	trigBars.Offset = w / 2

	p.Add(detBars, trigBars)
	p.Legend.Add("detections", detBars)
	p.Legend.Add("triggers", trigBars)
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	p.NominalX(axisLabels(buckets)...)
	return p, nil
}

// axisLabels thins the hour labels so at most maxAxisLabels are drawn.
func axisLabels(buckets []events.HourlyCount) []string {
	step := len(buckets) / maxAxisLabels
	if step < 1 {
		step = 1
	}
	labels := make([]string, len(buckets))
	for i, bucket := range buckets {
		if i%step == 0 {
			labels[i] = bucket.Hour.Format("Jan 2 15:04")
		}
	}
	return labels
}
