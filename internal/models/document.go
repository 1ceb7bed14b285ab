package models

import "time"

// DocumentType enumerates the ordered thesis artifact categories.
type DocumentType string

const (
	DocumentTypePlan         DocumentType = "PLAN"
	DocumentTypeChapter1     DocumentType = "CHAPTER_1"
	DocumentTypeChapter2     DocumentType = "CHAPTER_2"
	DocumentTypeChapter3     DocumentType = "CHAPTER_3"
	DocumentTypeChapter4     DocumentType = "CHAPTER_4"
	DocumentTypeFinalVersion DocumentType = "FINAL_VERSION"
)

// DocumentTypeOrder is the authoritative submission order. Adding a new
// required artifact means inserting it here; the resolver and the transition
// engine derive everything from this slice.
var DocumentTypeOrder = []DocumentType{
	DocumentTypePlan,
	DocumentTypeChapter1,
	DocumentTypeChapter2,
	DocumentTypeChapter3,
	DocumentTypeChapter4,
	DocumentTypeFinalVersion,
}

var documentTypeRank = func() map[DocumentType]int {
	ranks := make(map[DocumentType]int, len(DocumentTypeOrder))
	for i, t := range DocumentTypeOrder {
		ranks[t] = i
	}
	return ranks
}()

// Rank returns the zero-based position of the type in the submission order,
// or -1 for unknown types.
func (t DocumentType) Rank() int {
	if rank, ok := documentTypeRank[t]; ok {
		return rank
	}
	return -1
}

// Valid reports whether the type is one of the six ordered categories.
func (t DocumentType) Valid() bool {
	_, ok := documentTypeRank[t]
	return ok
}

// Predecessor returns the type that must be approved before this one.
// The second value is false for PLAN and unknown types.
func (t DocumentType) Predecessor() (DocumentType, bool) {
	rank, ok := documentTypeRank[t]
	if !ok || rank == 0 {
		return "", false
	}
	return DocumentTypeOrder[rank-1], true
}

// Successor returns the next type in the order.
// The second value is false for FINAL_VERSION and unknown types.
func (t DocumentType) Successor() (DocumentType, bool) {
	rank, ok := documentTypeRank[t]
	if !ok || rank == len(DocumentTypeOrder)-1 {
		return "", false
	}
	return DocumentTypeOrder[rank+1], true
}

// DocumentStatus captures the review lifecycle of a single document version.
type DocumentStatus string

const (
	DocumentStatusSubmitted         DocumentStatus = "SUBMITTED"
	DocumentStatusUnderReview       DocumentStatus = "UNDER_REVIEW"
	DocumentStatusApproved          DocumentStatus = "APPROVED"
	DocumentStatusRejected          DocumentStatus = "REJECTED"
	DocumentStatusRevisionRequested DocumentStatus = "REVISION_REQUESTED"
)

// Reviewable reports whether a supervisor action may still be applied.
func (s DocumentStatus) Reviewable() bool {
	return s == DocumentStatusSubmitted || s == DocumentStatusUnderReview
}

// Document is one submitted artifact version. Older versions are retained as
// history and never mutated; only the latest version per (theme, type) is
// active.
type Document struct {
	ID          string         `db:"id" json:"id"`
	ThemeID     string         `db:"theme_id" json:"theme_id"`
	StudentID   string         `db:"student_id" json:"student_id"`
	Type        DocumentType   `db:"type" json:"type"`
	Status      DocumentStatus `db:"status" json:"status"`
	Version     int            `db:"version" json:"version"`
	FilePath    string         `db:"file_path" json:"-"`
	FileName    string         `db:"file_name" json:"file_name"`
	MimeType    string         `db:"mime_type" json:"mime_type"`
	SizeBytes   int64          `db:"size_bytes" json:"size_bytes"`
	ContentHash string         `db:"content_hash" json:"content_hash"`
	SubmittedAt time.Time      `db:"submitted_at" json:"submitted_at"`
	ReviewedBy  *string        `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time     `db:"reviewed_at" json:"reviewed_at,omitempty"`
	Feedback    *string        `db:"feedback" json:"feedback,omitempty"`
}

// DocumentFilter constrains history listing queries.
type DocumentFilter struct {
	ThemeID string
	Type    DocumentType
	Status  []DocumentStatus
	Limit   int
	Offset  int
}
