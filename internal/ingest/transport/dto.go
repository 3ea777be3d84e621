package transport

// FieldAnalysis is the heuristic type vote for one detected column.
type FieldAnalysis struct {
	Field         string  `json:"field"`
	DetectedType  string  `json:"detectedType"`
	Confidence    float64 `json:"confidence"`
	SampleValues  []string `json:"sampleValues"`
	EmptyFraction float64 `json:"emptyFraction"`
}

// PreviewResponse is the answer to the file preview/parse endpoint. It is
// the input material for building a start_bulk_upload_config payload.
type PreviewResponse struct {
	SourceFileID     string            `json:"sourceFileId,omitempty"`
	DetectedFields   []string          `json:"detectedFields"`
	SampleRows       []map[string]any  `json:"sampleRows"`
	TotalRows        int               `json:"totalRows"`
	FieldAnalysis    []FieldAnalysis   `json:"fieldAnalysis"`
	SuggestedMapping FieldMapping      `json:"suggestedMapping"`
	SuggestedHints   map[string]string `json:"suggestedTypeHints"`
}
