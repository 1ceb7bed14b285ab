package dto

import "github.com/noah-isme/thesis-flow-api/internal/models"

// SubmitDocumentRequest carries submission metadata; the file itself arrives
// as multipart content alongside this form.
type SubmitDocumentRequest struct {
	Type models.DocumentType `form:"type" json:"type" validate:"required"`
}

// ReviewDocumentRequest captures a supervisor decision on the active version.
type ReviewDocumentRequest struct {
	Action   ReviewAction `json:"action" validate:"required,oneof=START_REVIEW APPROVE REJECT REQUEST_REVISION"`
	Feedback string       `json:"feedback"`
}

// ReviewAction enumerates supervisor review operations.
type ReviewAction string

const (
	ReviewActionStartReview     ReviewAction = "START_REVIEW"
	ReviewActionApprove         ReviewAction = "APPROVE"
	ReviewActionReject          ReviewAction = "REJECT"
	ReviewActionRequestRevision ReviewAction = "REQUEST_REVISION"
)

// DocumentHistoryQuery mirrors supported history listing filters.
type DocumentHistoryQuery struct {
	Type   models.DocumentType
	Status []models.DocumentStatus
	Limit  int
	Offset int
}
