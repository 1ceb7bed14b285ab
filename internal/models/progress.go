package models

// NextDocumentDefenseReady is the sentinel returned when all six document
// types are approved and the final plagiarism check passed.
const NextDocumentDefenseReady = "DEFENSE_READY"

// DocumentTypeState summarises the latest version of one document type.
type DocumentTypeState struct {
	Type    DocumentType   `json:"type"`
	Status  DocumentStatus `json:"status,omitempty"`
	Version int            `json:"version,omitempty"`
	Locked  bool           `json:"locked"`
}

// ThesisProgress is the derived per-theme projection. It is recomputed from
// document rows on every read and never stored as independently writable
// truth; the Redis entry is a cache, invalidated on each transition.
type ThesisProgress struct {
	ThemeID             string              `json:"theme_id"`
	Types               []DocumentTypeState `json:"types"`
	ApprovedCount       int                 `json:"approved_count"`
	OverallProgress     int                 `json:"overall_progress"`
	NextAllowedDocument string              `json:"next_allowed_document"`
}
