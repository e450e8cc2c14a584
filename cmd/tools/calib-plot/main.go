// Package main renders a saved gaze calibration model as a PNG scatter:
// the 9 pixel targets, the model's prediction for each averaged feature
// sample, and a residual segment joining each pair. Useful for eyeballing
// fit quality after a calibration session without starting the server.
package main

import (
	"flag"
	"fmt"
	"image/color"
	"log"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/gazepoint/internal/gaze"
)

var (
	modelPath = flag.String("model", "calibration.json", "Path to a saved calibration model")
	outPath   = flag.String("out", "calibration.png", "Output PNG path")
)

func main() {
	flag.Parse()

	mapper := gaze.NewPolynomialMapper(1, 1, 0.2)
	if err := mapper.Load(*modelPath); err != nil {
		log.Fatalf("failed to load calibration model: %v", err)
	}
	model := mapper.Model()
	if len(model.FeatureSamples) != len(model.TargetSamples) {
		log.Fatalf("model has %d feature samples but %d targets", len(model.FeatureSamples), len(model.TargetSamples))
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Calibration fit (%dx%d, %d samples)", model.ScreenW, model.ScreenH, len(model.TargetSamples))
	p.X.Label.Text = "Screen X (px)"
	p.Y.Label.Text = "Screen Y (px)"
	p.X.Min, p.X.Max = 0, float64(model.ScreenW)
	p.Y.Min, p.Y.Max = 0, float64(model.ScreenH)

	targets := make(plotter.XYs, 0, len(model.TargetSamples))
	predictions := make(plotter.XYs, 0, len(model.FeatureSamples))
	var worst float64
	for i, feature := range model.FeatureSamples {
		target := model.TargetSamples[i]
		px, py := mapper.Evaluate(gaze.Feature{X: feature[0], Y: feature[1]})

		// Screen Y grows downwards; flip so the plot matches the display.
		ty := float64(model.ScreenH) - target[1]
		pyFlipped := float64(model.ScreenH) - py
		targets = append(targets, plotter.XY{X: target[0], Y: ty})
		predictions = append(predictions, plotter.XY{X: px, Y: pyFlipped})

		residual := gaze.Point{X: target[0], Y: target[1]}.Dist(gaze.Point{X: px, Y: py})
		if residual > worst {
			worst = residual
		}

		segment, err := plotter.NewLine(plotter.XYs{
			{X: target[0], Y: ty},
			{X: px, Y: pyFlipped},
		})
		if err != nil {
			log.Fatalf("failed to build residual segment: %v", err)
		}
		segment.Color = color.RGBA{R: 180, G: 180, B: 180, A: 255}
		segment.Width = vg.Points(1)
		p.Add(segment)
	}

	targetScatter, err := plotter.NewScatter(targets)
	if err != nil {
		log.Fatalf("failed to build target scatter: %v", err)
	}
	targetScatter.GlyphStyle.Color = color.RGBA{B: 255, A: 255}
	targetScatter.GlyphStyle.Radius = vg.Points(4)

	predScatter, err := plotter.NewScatter(predictions)
	if err != nil {
		log.Fatalf("failed to build prediction scatter: %v", err)
	}
	predScatter.GlyphStyle.Color = color.RGBA{R: 255, A: 255}
	predScatter.GlyphStyle.Radius = vg.Points(3)

	p.Add(targetScatter, predScatter)
	p.Legend.Add("target", targetScatter)
	p.Legend.Add("model", predScatter)
	p.Legend.Top = true

	if err := p.Save(10*vg.Inch, 6*vg.Inch, *outPath); err != nil {
		log.Fatalf("failed to save plot: %v", err)
	}

	fmt.Fprintf(os.Stdout, "wrote %s (worst residual %.1f px)\n", *outPath, worst)
}
