package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/kubilitics/kubilitics-vitals/internal/analytics/report"
	"github.com/kubilitics/kubilitics-vitals/internal/models"
)

const timeLayout = "2006-01-02 15:04"

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// renderSamples prints dataset rows. limit > 0 keeps only the last limit rows.
func renderSamples(w io.Writer, ds *models.Dataset, limit int) error {
	rows := ds.Samples
	if limit > 0 {
		rows = ds.Tail(limit)
	}
	outlier := make(map[int]bool, len(ds.Outliers))
	for _, i := range ds.Outliers {
		outlier[i] = true
	}
	offset := ds.Len() - len(rows)

	tw := newTabWriter(w)
	fmt.Fprintln(tw, "#\tTIMESTAMP\tHR\tSPO2\tSTEPS\tSLEEP\tSTRESS\tTEMP\tINJECTED")
	for i, s := range rows {
		mark := ""
		if outlier[offset+i] {
			mark = "yes"
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%.1f\t%d\t%.1f\t%.1f\t%.1f\t%s\n",
			offset+i, s.Timestamp.Format(timeLayout), s.HeartRate, s.BloodOxygen, s.Steps,
			s.SleepQuality, s.StressLevel, s.BodyTemperature, mark)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d samples, %d injected outliers, seed %d\n", ds.Len(), len(ds.Outliers), ds.Seed)
	return nil
}

func signed(v float64) string {
	return fmt.Sprintf("%+.1f", v)
}

// renderReport prints the human-readable analysis.
func renderReport(w io.Writer, r *report.Report) error {
	fmt.Fprintf(w, "Health Report (%d samples over %d days, seed %d)\n", r.Samples, r.Days, r.Seed)
	fmt.Fprintln(w, strings.Repeat("=", 48))

	if r.Score != nil {
		fmt.Fprintf(w, "\nHealth Score: %.1f (%s)\n", r.Score.Overall, r.Score.Tier)
		tw := newTabWriter(w)
		fmt.Fprintln(tw, "  METRIC\tVALUE\tSCORE\tWEIGHT")
		for _, c := range r.Score.Components {
			fmt.Fprintf(tw, "  %s\t%.1f\t%.1f\t%.0f%%\n", c.Metric, c.Value, c.Score, c.Weight*100)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	v := r.Vitals
	fmt.Fprintf(w, "\nLatest Vitals (%s)\n", v.Timestamp.Format(timeLayout))
	tw := newTabWriter(w)
	fmt.Fprintf(tw, "  Heart rate\t%d bpm\t%s vs avg\n", v.HeartRate, signed(v.HeartRateDelta))
	fmt.Fprintf(tw, "  Blood oxygen\t%.1f%%\t%s vs avg\n", v.BloodOxygen, signed(v.BloodOxygenDelta))
	fmt.Fprintf(tw, "  Steps\t%d\t%s vs avg\n", v.Steps, signed(v.StepsDelta))
	fmt.Fprintf(tw, "  Temperature\t%.1f°F\t%s vs %.1f°F\n", v.Temperature, signed(v.TemperatureDelta), report.ReferenceTemperature)
	if err := tw.Flush(); err != nil {
		return err
	}

	d := r.Detection
	fmt.Fprintln(w, "\nAnomaly Detection")
	if d.Insufficient {
		fmt.Fprintln(w, "  Not enough samples to fit the detector; no samples flagged.")
	} else {
		fmt.Fprintf(w, "  %d samples flagged (contamination %.0f%%, threshold %.4f)\n", d.Flagged, d.Contamination*100, d.Threshold)
	}
	if len(d.DegenerateColumns) > 0 {
		fmt.Fprintf(w, "  Constant columns: %s\n", strings.Join(d.DegenerateColumns, ", "))
	}
	if len(r.RecentAnomalies) > 0 {
		tw = newTabWriter(w)
		fmt.Fprintln(tw, "  TIMESTAMP\tHR\tSPO2\tSCORE")
		for _, e := range r.RecentAnomalies {
			fmt.Fprintf(tw, "  %s\t%d\t%.1f\t%.3f\n", e.Timestamp.Format(timeLayout), e.HeartRate, e.BloodOxygen, e.Score)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintln(w, "\nInsights")
	for _, in := range r.Insights {
		fmt.Fprintf(w, "  [%s] %s\n", in.Category, in.Message)
	}

	wk := r.Weekly
	fmt.Fprintf(w, "\nLast %d Days (%d samples)\n", report.WeekDays, wk.Samples)
	tw = newTabWriter(w)
	fmt.Fprintf(tw, "  Avg heart rate\t%.1f bpm\n", wk.AvgHeartRate)
	fmt.Fprintf(tw, "  Avg sleep quality\t%.1f/10\n", wk.AvgSleepQuality)
	fmt.Fprintf(tw, "  Avg blood oxygen\t%.1f%%\n", wk.AvgBloodOxygen)
	fmt.Fprintf(tw, "  Avg stress level\t%.1f/10\n", wk.AvgStressLevel)
	fmt.Fprintf(tw, "  Total steps\t%d\n", wk.TotalSteps)
	fmt.Fprintf(tw, "  Anomalous samples\t%d\n", wk.AnomalousSamples)
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w, "\nCorrelations")
	tw = newTabWriter(w)
	header := make([]string, 0, len(r.Correlations.Features)+1)
	header = append(header, " ")
	for _, f := range r.Correlations.Features {
		header = append(header, string(f))
	}
	fmt.Fprintln(tw, "  "+strings.Join(header, "\t"))
	for i, f := range r.Correlations.Features {
		cells := []string{string(f)}
		for _, c := range r.Correlations.Matrix[i] {
			cells = append(cells, fmt.Sprintf("%.2f", c))
		}
		fmt.Fprintln(tw, "  "+strings.Join(cells, "\t"))
	}
	return tw.Flush()
}
