package schema

// ValidationVerdict is the result of the SQL safety validator.
// Produced fresh per validation call and never mutated afterward.
type ValidationVerdict struct {
	Valid          bool     `json:"valid"`
	SanitizedQuery string   `json:"sanitized_query,omitempty"`
	OriginalQuery  string   `json:"original_query"`
	Errors         []string `json:"errors,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`
	SecurityScore  float64  `json:"security_score"`
}

// ReviewVerdict is the quality review outcome for one pipeline pass.
// Approved is recomputed by the iteration policy from OverallScore and the
// iteration position; it is never trusted verbatim from the review producer.
type ReviewVerdict struct {
	Approved     bool               `json:"approved"`
	OverallScore float64            `json:"overall_score"`
	Scores       map[string]float64 `json:"scores,omitempty"`
	Feedback     string             `json:"feedback"`
	Issues       []string           `json:"issues,omitempty"`
	Suggestions  []string           `json:"suggestions,omitempty"`
	Highlights   []string           `json:"highlights,omitempty"`
}

// GenerationResult is the structured output of the SQL generation stage.
type GenerationResult struct {
	SQLQuery      string   `json:"sql_query"`
	Explanation   string   `json:"explanation"`
	TablesUsed    []string `json:"tables_used,omitempty"`
	EstimatedRows int      `json:"estimated_rows,omitempty"`
	Confidence    float64  `json:"confidence_score,omitempty"`
}

// ChartSpec is the structured chart decision for the visualization stage.
type ChartSpec struct {
	ChartType   string `json:"chart_type"`
	Title       string `json:"title"`
	XColumn     string `json:"x_column,omitempty"`
	YColumn     string `json:"y_column,omitempty"`
	ColorColumn string `json:"color_column,omitempty"`
	Aggregation string `json:"aggregation,omitempty"`
	Reasoning   string `json:"reasoning,omitempty"`
}

// RunResult is what the caller receives when a run reaches a terminal stage:
// either a completed document plus its quality verdict, or the structured
// failure, never a raw fault.
type RunResult struct {
	RunID     string   `json:"run_id"`
	Stage     Stage    `json:"stage"`
	Document  []byte   `json:"document,omitempty"`
	ChartType string   `json:"chart_type,omitempty"`
	SQLQuery  string   `json:"sql_query,omitempty"`
	Score     float64  `json:"score"`
	Approved  bool     `json:"approved"`
	Iteration int      `json:"iteration"`
	Errors    []string `json:"errors,omitempty"`
}
