package models

// ChartKind is the visualisation picked for a result set.
type ChartKind string

const (
	ChartPie  ChartKind = "pie"
	ChartBar  ChartKind = "bar"
	ChartLine ChartKind = "line"
)

// ChartSpec tells the UI how to draw a result set. A nil *ChartSpec means the
// result is not charted.
type ChartSpec struct {
	Kind        ChartKind `json:"type"`
	Data        []Row     `json:"data"`
	ValueColumn string    `json:"dataKey"`
	LabelColumn string    `json:"nameKey"`
	Title       string    `json:"title"`
}
