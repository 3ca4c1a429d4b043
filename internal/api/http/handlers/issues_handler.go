package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/issue-tracker/internal/api/dto"
	"github.com/spec-kit/issue-tracker/internal/auth"
	"github.com/spec-kit/issue-tracker/internal/domain"
	"github.com/spec-kit/issue-tracker/internal/export"
	"github.com/spec-kit/issue-tracker/internal/service"
	apperrors "github.com/spec-kit/issue-tracker/pkg/util"
)

// IssuesHandler manages issue endpoints. Every route runs behind the auth
// middleware.
type IssuesHandler struct {
	service *service.IssueService
}

// NewIssuesHandler constructs handler.
func NewIssuesHandler(issueService *service.IssueService) *IssuesHandler {
	return &IssuesHandler{service: issueService}
}

// Create handles POST /issues.
func (h *IssuesHandler) Create(c *fiber.Ctx) error {
	user, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("Not authorized.")
	}
	var req dto.CreateIssueRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("Invalid payload.")
	}

	issue, err := h.service.CreateIssue(c.Context(), user.ID, service.IssueCreateInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
		Severity:    req.Severity,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"issue": issueResponse(issue)})
}

// List handles GET /issues.
func (h *IssuesHandler) List(c *fiber.Ctx) error {
	result, err := h.service.ListIssues(c.Context(), service.IssueListInput{
		Search:   c.Query("q"),
		Status:   c.Query("status"),
		Priority: c.Query("priority"),
		Severity: c.Query("severity"),
		Page:     parseIntDefault(c.Query("page"), 1),
		Limit:    parseIntDefault(c.Query("limit"), 10),
	})
	if err != nil {
		return err
	}

	items := make([]dto.IssueResponse, 0, len(result.Data))
	for i := range result.Data {
		items = append(items, issueResponse(&result.Data[i]))
	}
	return c.JSON(dto.IssueListResponse{
		Data:       items,
		Page:       result.Page,
		Limit:      result.Limit,
		Total:      result.Total,
		TotalPages: result.TotalPages,
	})
}

// Get handles GET /issues/:id.
func (h *IssuesHandler) Get(c *fiber.Ctx) error {
	issue, err := h.service.GetIssue(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"issue": issueWithCreatorResponse(issue)})
}

// Update handles PUT /issues/:id.
func (h *IssuesHandler) Update(c *fiber.Ctx) error {
	var req dto.UpdateIssueRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("Invalid payload.")
	}

	issue, err := h.service.UpdateIssue(c.Context(), c.Params("id"), service.IssueUpdateInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
		Severity:    req.Severity,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"issue": issueResponse(issue)})
}

// Delete handles DELETE /issues/:id.
func (h *IssuesHandler) Delete(c *fiber.Ctx) error {
	if err := h.service.DeleteIssue(c.Context(), c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Issue deleted."})
}

// Stats handles GET /issues/stats.
func (h *IssuesHandler) Stats(c *fiber.Ctx) error {
	counts, err := h.service.Stats(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"counts": counts})
}

// Export handles GET /issues/export. The export covers the full filtered set;
// page and limit are ignored here.
func (h *IssuesHandler) Export(c *fiber.Ctx) error {
	issues, err := h.service.ExportIssues(c.Context(),
		c.Query("q"),
		c.Query("status"),
		c.Query("priority"),
		c.Query("severity"),
	)
	if err != nil {
		return err
	}

	if strings.ToLower(c.Query("format", export.FormatJSON)) == export.FormatCSV {
		c.Set(fiber.HeaderContentType, "text/csv")
		c.Set(fiber.HeaderContentDisposition, `attachment; filename=issues.csv`)
		return c.SendString(export.CSV(issues))
	}

	items := make([]dto.IssueResponse, 0, len(issues))
	for i := range issues {
		items = append(items, issueWithCreatorResponse(&issues[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

func parseIntDefault(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return parsed
}

func issueResponse(issue *domain.Issue) dto.IssueResponse {
	resp := dto.IssueResponse{
		ID:          issue.ID,
		Title:       issue.Title,
		Description: issue.Description,
		Status:      issue.Status,
		Priority:    issue.Priority,
		Severity:    issue.Severity,
		CreatedAt:   issue.CreatedAt,
		UpdatedAt:   issue.UpdatedAt,
	}
	if issue.CreatedBy != nil {
		resp.CreatedBy = *issue.CreatedBy
	}
	return resp
}

func issueWithCreatorResponse(issue *domain.IssueWithCreator) dto.IssueResponse {
	resp := issueResponse(&issue.Issue)
	if issue.CreatedBy != nil {
		resp.CreatedBy = dto.CreatorResponse{
			ID:    *issue.CreatedBy,
			Name:  issue.CreatorName,
			Email: issue.CreatorEmail,
		}
	}
	return resp
}
