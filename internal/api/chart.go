package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/swim.report/internal/httputil"
	"github.com/banshee-data/swim.report/internal/race"
)

// showChart renders the current heat's lane times as an HTML bar chart.
// Lanes without a time are left as gaps.
func (s *Server) showChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	state, _ := s.keeper.Snapshot()
	summary := race.Summarize(state)

	x := make([]string, 0, race.LaneCount)
	y := make([]opts.BarData, 0, race.LaneCount)
	for _, lane := range state.Lanes {
		label := fmt.Sprintf("Lane %d", lane.Number)
		if lane.Name != "" {
			label += "\n" + lane.Name
		}
		x = append(x, label)

		bar := opts.BarData{Value: "-"}
		if lane.Time != nil {
			if d, ok := race.ParseTime(*lane.Time); ok && d > 0 {
				bar = opts.BarData{Value: d.Seconds(), Name: *lane.Time}
			}
		}
		y = append(y, bar)
	}

	title := state.EventTitle
	if title == "" {
		title = "Current heat"
	}
	subtitle := fmt.Sprintf("event %s heat %s, %d recorded", state.EventNumber, state.HeatNumber, summary.Recorded)
	if summary.FastestLane > 0 {
		subtitle += fmt.Sprintf(", fastest lane %d in %s", summary.FastestLane, summary.FastestTime)
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Lane times", Width: "100%", Height: "600px", AssetsHost: s.opts.AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "seconds"}),
	)
	bar.SetXAxis(x).
		AddSeries("time", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	page := components.NewPage()
	if s.opts.AssetsHost != "" {
		page.SetAssetsHost(s.opts.AssetsHost)
	}
	page.AddCharts(bar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
