// Package monitor serves debugging-only chart endpoints over the engine's
// recent frame trace. These are quick visual checks (no auth, throwaway
// HTML) for tuning the mapping and the blink threshold without a frontend.
package monitor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/gazepoint/internal/gaze"
)

// ChartServer renders debug charts for one engine.
type ChartServer struct {
	engine  *gaze.Engine
	screenW int
	screenH int
}

// NewChartServer creates a chart server over the given engine.
func NewChartServer(engine *gaze.Engine, screenW, screenH int) *ChartServer {
	return &ChartServer{engine: engine, screenW: screenW, screenH: screenH}
}

func (cs *ChartServer) writeJSONError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// HandleGazeChart renders the recent smoothed cursor positions as a scatter
// over the screen rectangle, colored by the frame's averaged EAR so blinks
// show up as dark points.
// Query params:
//   - max_points (optional; default 600) to reduce payload size
func (cs *ChartServer) HandleGazeChart(w http.ResponseWriter, r *http.Request) {
	trace := cs.engine.RecentTrace()
	if len(trace) == 0 {
		cs.writeJSONError(w, http.StatusNotFound, "no trace points available")
		return
	}

	maxPoints := 600
	if mp := r.URL.Query().Get("max_points"); mp != "" {
		if v, err := strconv.Atoi(mp); err == nil && v > 10 && v <= 10000 {
			maxPoints = v
		}
	}
	if len(trace) > maxPoints {
		trace = trace[len(trace)-maxPoints:]
	}

	data := make([]opts.ScatterData, 0, len(trace))
	maxEAR := 0.0
	for _, p := range trace {
		if p.AvgEAR > maxEAR {
			maxEAR = p.AvgEAR
		}
		// Screen Y grows downward; flip so the chart matches the display.
		data = append(data, opts.ScatterData{Value: []interface{}{p.X, float64(cs.screenH) - p.Y, p.AvgEAR}})
	}
	if maxEAR == 0 {
		maxEAR = 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Gaze Trace", Theme: "dark", Width: "960px", Height: "540px"}),
		charts.WithTitleOpts(opts.Title{Title: "Gaze Trace", Subtitle: fmt.Sprintf("points=%d screen=%dx%d", len(data), cs.screenW, cs.screenH)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: cs.screenW, Name: "X (px)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: cs.screenH, Name: "Y (px)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxEAR),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#31688e", "#35b779", "#fde725"}},
		}),
	)
	scatter.AddSeries("gaze", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		cs.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// HandleEARChart renders the EAR timeline for the recent trace. Dips below
// the blink threshold are the closures the detector debounces.
func (cs *ChartServer) HandleEARChart(w http.ResponseWriter, r *http.Request) {
	trace := cs.engine.RecentTrace()
	if len(trace) == 0 {
		cs.writeJSONError(w, http.StatusNotFound, "no trace points available")
		return
	}

	x := make([]string, 0, len(trace))
	y := make([]opts.LineData, 0, len(trace))
	for _, p := range trace {
		x = append(x, p.TS.Format(time.TimeOnly))
		y = append(y, opts.LineData{Value: p.AvgEAR})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "EAR Timeline", Theme: "dark", Width: "1200px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: "Eye Aspect Ratio", Subtitle: fmt.Sprintf("frames=%d", len(trace))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "EAR", NameLocation: "middle", NameGap: 35}),
	)
	line.SetXAxis(x).AddSeries("avg EAR", y)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		cs.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
