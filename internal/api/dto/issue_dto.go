package dto

import (
	"time"

	"github.com/spec-kit/issue-tracker/internal/domain"
)

// CreateIssueRequest payload.
type CreateIssueRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Priority    string `json:"priority"`
	Severity    string `json:"severity"`
}

// UpdateIssueRequest is the allow-listed partial update payload: omitted
// fields keep their stored values.
type UpdateIssueRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
	Priority    *string `json:"priority"`
	Severity    *string `json:"severity"`
}

// CreatorResponse is the hydrated creator reference.
type CreatorResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// IssueResponse is the public issue shape. CreatedBy carries the creator id
// on list/create/update responses and a CreatorResponse when hydrated.
type IssueResponse struct {
	ID          string                `json:"id"`
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Status      domain.IssueStatus    `json:"status"`
	Priority    domain.IssuePriority  `json:"priority"`
	Severity    *domain.IssueSeverity `json:"severity"`
	CreatedBy   any                   `json:"createdBy"`
	CreatedAt   time.Time             `json:"createdAt"`
	UpdatedAt   time.Time             `json:"updatedAt"`
}

// IssueListResponse is the paginated listing envelope.
type IssueListResponse struct {
	Data       []IssueResponse `json:"data"`
	Page       int             `json:"page"`
	Limit      int             `json:"limit"`
	Total      int64           `json:"total"`
	TotalPages int64           `json:"totalPages"`
}
