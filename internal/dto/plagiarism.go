package dto

// ResolvePlagiarismRequest is the callback payload posted by the external
// scanner once a pending report has been processed. Delivery is at-least-once;
// re-resolving a completed report is accepted silently.
type ResolvePlagiarismRequest struct {
	Score        float64 `json:"score" validate:"gte=0,lte=100"`
	SourcesFound int     `json:"sources_found" validate:"gte=0"`
	Notes        string  `json:"notes"`
}
