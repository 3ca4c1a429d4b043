package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/issue-tracker/internal/domain"
	"github.com/spec-kit/issue-tracker/internal/events"
	"github.com/spec-kit/issue-tracker/internal/repository"
	apperrors "github.com/spec-kit/issue-tracker/pkg/util"
)

// maxPageSize bounds the page size; the default of 10 applies at the
// transport layer when the query parameter is absent.
const maxPageSize = 100

// IssueService coordinates issue workflows.
type IssueService struct {
	issues     repository.IssueRepository
	stats      StatsCache
	dispatcher events.Dispatcher
}

// IssueDependencies bundles collaborators for the issue service.
type IssueDependencies struct {
	IssueRepo  repository.IssueRepository
	StatsCache StatsCache
	Dispatcher events.Dispatcher
}

// NewIssueService constructs the service.
func NewIssueService(deps IssueDependencies) *IssueService {
	return &IssueService{
		issues:     deps.IssueRepo,
		stats:      deps.StatsCache,
		dispatcher: deps.Dispatcher,
	}
}

// IssueCreateInput describes issue creation payload. Status, priority and
// severity are optional; defaults are Open/Medium and no severity.
type IssueCreateInput struct {
	Title       string
	Description string
	Status      string
	Priority    string
	Severity    string
}

// IssueUpdateInput is the allow-listed partial update: one optional field per
// mutable attribute, each validated before merge. An empty severity string
// clears the stored severity.
type IssueUpdateInput struct {
	Title       *string
	Description *string
	Status      *string
	Priority    *string
	Severity    *string
}

// IssueListInput carries listing criteria. Filter values pass through to the
// store unvalidated: an unrecognized status yields zero matches, not an error.
type IssueListInput struct {
	Search   string
	Status   string
	Priority string
	Severity string
	Page     int
	Limit    int
}

// IssueListResult is the paginated listing envelope.
type IssueListResult struct {
	Data       []domain.Issue
	Page       int
	Limit      int
	Total      int64
	TotalPages int64
}

// CreateIssue validates and stores a new issue bound to its creator.
func (s *IssueService) CreateIssue(ctx context.Context, creatorID string, input IssueCreateInput) (*domain.Issue, error) {
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	if title == "" || description == "" {
		return nil, apperrors.NewValidationError("Title and description are required.")
	}

	status := domain.IssueStatusOpen
	if input.Status != "" {
		status = domain.IssueStatus(input.Status)
		if !status.Valid() {
			return nil, apperrors.NewValidationError("Invalid status value.")
		}
	}
	priority := domain.IssuePriorityMedium
	if input.Priority != "" {
		priority = domain.IssuePriority(input.Priority)
		if !priority.Valid() {
			return nil, apperrors.NewValidationError("Invalid priority value.")
		}
	}
	var severity *domain.IssueSeverity
	if input.Severity != "" {
		sev := domain.IssueSeverity(input.Severity)
		if !sev.Valid() {
			return nil, apperrors.NewValidationError("Invalid severity value.")
		}
		severity = &sev
	}

	issue := &domain.Issue{
		Title:       title,
		Description: description,
		Status:      status,
		Priority:    priority,
		Severity:    severity,
	}
	if creatorID != "" {
		issue.CreatedBy = &creatorID
	}

	if err := s.issues.Create(ctx, issue); err != nil {
		return nil, err
	}

	s.publish(ctx, events.Event{
		Type:    events.EventIssueCreated,
		IssueID: issue.ID,
		ActorID: issue.CreatedBy,
		Payload: events.IssueCreatedPayload{
			Title:    issue.Title,
			Status:   issue.Status,
			Priority: issue.Priority,
		},
	})
	return issue, nil
}

// ListIssues executes the filter/pagination pipeline: a bounded page of
// matching records plus the total match count, newest first.
func (s *IssueService) ListIssues(ctx context.Context, input IssueListInput) (*IssueListResult, error) {
	page := input.Page
	if page < 1 {
		page = 1
	}
	limit := input.Limit
	if limit < 1 {
		limit = 1
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset := (page - 1) * limit

	filter := buildFilter(input.Search, input.Status, input.Priority, input.Severity)

	// Two independent reads; no transactional consistency between them.
	issues, err := s.issues.ListWithFilter(ctx, filter, limit, offset)
	if err != nil {
		return nil, err
	}
	total, err := s.issues.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	totalPages := int64(0)
	if total > 0 {
		totalPages = (total + int64(limit) - 1) / int64(limit)
	}

	return &IssueListResult{
		Data:       issues,
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
	}, nil
}

// GetIssue fetches an issue with its creator display fields hydrated.
func (s *IssueService) GetIssue(ctx context.Context, id string) (*domain.IssueWithCreator, error) {
	if err := validateIssueID(id); err != nil {
		return nil, err
	}
	issue, err := s.issues.GetByIDWithCreator(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("Issue not found.")
		}
		return nil, err
	}
	return issue, nil
}

// UpdateIssue merges the allow-listed fields over the stored record,
// re-validates and writes the result.
func (s *IssueService) UpdateIssue(ctx context.Context, id string, input IssueUpdateInput) (*domain.Issue, error) {
	if err := validateIssueID(id); err != nil {
		return nil, err
	}

	issue, err := s.issues.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("Issue not found.")
		}
		return nil, err
	}
	oldStatus := issue.Status

	if input.Title != nil {
		issue.Title = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil {
		issue.Description = strings.TrimSpace(*input.Description)
	}
	if issue.Title == "" || issue.Description == "" {
		return nil, apperrors.NewValidationError("Title and description are required.")
	}
	if input.Status != nil {
		status := domain.IssueStatus(*input.Status)
		if !status.Valid() {
			return nil, apperrors.NewValidationError("Invalid status value.")
		}
		issue.Status = status
	}
	if input.Priority != nil {
		priority := domain.IssuePriority(*input.Priority)
		if !priority.Valid() {
			return nil, apperrors.NewValidationError("Invalid priority value.")
		}
		issue.Priority = priority
	}
	if input.Severity != nil {
		if *input.Severity == "" {
			issue.Severity = nil
		} else {
			sev := domain.IssueSeverity(*input.Severity)
			if !sev.Valid() {
				return nil, apperrors.NewValidationError("Invalid severity value.")
			}
			issue.Severity = &sev
		}
	}

	if err := s.issues.Update(ctx, issue); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("Issue not found.")
		}
		return nil, err
	}

	s.publish(ctx, events.Event{
		Type:    events.EventIssueUpdated,
		IssueID: issue.ID,
		Payload: events.IssueUpdatedPayload{
			OldStatus: oldStatus,
			NewStatus: issue.Status,
		},
	})
	return issue, nil
}

// DeleteIssue removes an issue. Deletion is terminal.
func (s *IssueService) DeleteIssue(ctx context.Context, id string) error {
	if err := validateIssueID(id); err != nil {
		return err
	}

	issue, err := s.issues.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("Issue not found.")
		}
		return err
	}

	deleted, err := s.issues.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return apperrors.NewNotFound("Issue not found.")
	}

	s.publish(ctx, events.Event{
		Type:    events.EventIssueDeleted,
		IssueID: id,
		Payload: events.IssueDeletedPayload{Title: issue.Title},
	})
	return nil
}

// Stats returns issue counts grouped by status, served from the cache when
// warm. Statuses with zero issues are absent.
func (s *IssueService) Stats(ctx context.Context) (map[string]int64, error) {
	if s.stats != nil {
		if counts, ok := s.stats.Get(ctx); ok {
			return counts, nil
		}
	}

	counts, err := s.issues.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	if s.stats != nil {
		s.stats.Set(ctx, counts)
	}
	return counts, nil
}

// ExportIssues resolves the full filtered result set with creator display
// fields, newest first. Pagination never applies to export.
func (s *IssueService) ExportIssues(ctx context.Context, search, status, priority, severity string) ([]domain.IssueWithCreator, error) {
	filter := buildFilter(search, status, priority, severity)
	return s.issues.ListWithCreator(ctx, filter)
}

func (s *IssueService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	event.ID = uuid.NewString()
	event.Timestamp = time.Now()
	_ = s.dispatcher.Publish(ctx, event)
}

func buildFilter(search, status, priority, severity string) repository.IssueFilter {
	filter := repository.IssueFilter{}
	if search != "" {
		filter.SearchTerm = &search
	}
	if status != "" {
		filter.Status = &status
	}
	if priority != "" {
		filter.Priority = &priority
	}
	if severity != "" {
		filter.Severity = &severity
	}
	return filter
}

func validateIssueID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperrors.NewInvalidIdentifier("Invalid issue id.")
	}
	return nil
}
