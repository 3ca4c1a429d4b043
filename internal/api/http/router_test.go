package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/issue-tracker/internal/api/http/handlers"
	"github.com/spec-kit/issue-tracker/internal/auth"
	"github.com/spec-kit/issue-tracker/internal/config"
	"github.com/spec-kit/issue-tracker/internal/domain"
	"github.com/spec-kit/issue-tracker/internal/events"
	"github.com/spec-kit/issue-tracker/internal/observability"
	"github.com/spec-kit/issue-tracker/internal/repository"
	"github.com/spec-kit/issue-tracker/internal/service"
)

type memUserRepo struct {
	users map[string]domain.User
}

func (r *memUserRepo) Create(_ context.Context, user *domain.User) error {
	user.ID = uuid.NewString()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	r.users[user.ID] = *user
	return nil
}

func (r *memUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	user, ok := r.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &user, nil
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, user := range r.users {
		if strings.EqualFold(user.Email, email) {
			u := user
			return &u, nil
		}
	}
	return nil, pgx.ErrNoRows
}

type memIssueRepo struct {
	users  *memUserRepo
	issues map[string]domain.Issue
	clock  time.Time
}

func (r *memIssueRepo) tick() time.Time {
	r.clock = r.clock.Add(time.Second)
	return r.clock
}

func (r *memIssueRepo) Create(_ context.Context, issue *domain.Issue) error {
	issue.ID = uuid.NewString()
	now := r.tick()
	issue.CreatedAt = now
	issue.UpdatedAt = now
	r.issues[issue.ID] = *issue
	return nil
}

func (r *memIssueRepo) GetByID(_ context.Context, id string) (*domain.Issue, error) {
	issue, ok := r.issues[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &issue, nil
}

func (r *memIssueRepo) GetByIDWithCreator(ctx context.Context, id string) (*domain.IssueWithCreator, error) {
	issue, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.join(*issue), nil
}

func (r *memIssueRepo) Update(_ context.Context, issue *domain.Issue) error {
	if _, ok := r.issues[issue.ID]; !ok {
		return pgx.ErrNoRows
	}
	issue.UpdatedAt = r.tick()
	r.issues[issue.ID] = *issue
	return nil
}

func (r *memIssueRepo) Delete(_ context.Context, id string) (bool, error) {
	if _, ok := r.issues[id]; !ok {
		return false, nil
	}
	delete(r.issues, id)
	return true, nil
}

func (r *memIssueRepo) ListWithFilter(_ context.Context, filter repository.IssueFilter, limit, offset int) ([]domain.Issue, error) {
	matches := r.matching(filter)
	if offset >= len(matches) {
		return nil, nil
	}
	matches = matches[offset:]
	if limit < len(matches) {
		matches = matches[:limit]
	}
	return matches, nil
}

func (r *memIssueRepo) ListWithCreator(_ context.Context, filter repository.IssueFilter) ([]domain.IssueWithCreator, error) {
	matches := r.matching(filter)
	rows := make([]domain.IssueWithCreator, 0, len(matches))
	for _, issue := range matches {
		rows = append(rows, *r.join(issue))
	}
	return rows, nil
}

func (r *memIssueRepo) Count(_ context.Context, filter repository.IssueFilter) (int64, error) {
	return int64(len(r.matching(filter))), nil
}

func (r *memIssueRepo) CountByStatus(_ context.Context) (map[string]int64, error) {
	counts := make(map[string]int64)
	for _, issue := range r.issues {
		counts[string(issue.Status)]++
	}
	return counts, nil
}

func (r *memIssueRepo) matching(filter repository.IssueFilter) []domain.Issue {
	var matches []domain.Issue
	for _, issue := range r.issues {
		if filter.Status != nil && string(issue.Status) != *filter.Status {
			continue
		}
		if filter.Priority != nil && string(issue.Priority) != *filter.Priority {
			continue
		}
		if filter.Severity != nil && (issue.Severity == nil || string(*issue.Severity) != *filter.Severity) {
			continue
		}
		if filter.SearchTerm != nil {
			term := strings.ToLower(strings.TrimSpace(*filter.SearchTerm))
			if term != "" &&
				!strings.Contains(strings.ToLower(issue.Title), term) &&
				!strings.Contains(strings.ToLower(issue.Description), term) {
				continue
			}
		}
		matches = append(matches, issue)
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	return matches
}

func (r *memIssueRepo) join(issue domain.Issue) *domain.IssueWithCreator {
	row := domain.IssueWithCreator{Issue: issue}
	if issue.CreatedBy != nil {
		if user, ok := r.users.users[*issue.CreatedBy]; ok {
			row.CreatorName = user.Name
			row.CreatorEmail = user.Email
		}
	}
	return &row
}

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()

	userRepo := &memUserRepo{users: make(map[string]domain.User)}
	issueRepo := &memIssueRepo{
		users:  userRepo,
		issues: make(map[string]domain.Issue),
		clock:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	authService := service.NewAuthService(config.AuthConfig{
		JWTSecret:     "test-secret",
		TokenTTLHours: 1,
		BcryptCost:    bcrypt.MinCost,
	}, userRepo)
	issueService := service.NewIssueService(service.IssueDependencies{
		IssueRepo:  issueRepo,
		Dispatcher: events.NewInMemoryDispatcher(),
	})

	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), observability.NewMetrics(), 0)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("test", "test", nil, nil),
		Users:          handlers.NewUsersHandler(authService),
		Issues:         handlers.NewIssuesHandler(issueService),
		AuthMiddleware: auth.NewMiddleware(authService.TokenManager(), userRepo),
	})
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, token string, body any) (*nethttp.Response, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var parsed map[string]any
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &parsed))
	} else {
		parsed = map[string]any{"_raw": string(raw)}
	}
	return resp, parsed
}

func registerUser(t *testing.T, app *fiber.App, email string) string {
	t.Helper()
	resp, body := doJSON(t, app, "POST", "/register", "", map[string]string{
		"name":     "Ada",
		"email":    email,
		"password": "s3cret",
	})
	require.Equal(t, 201, resp.StatusCode)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestRegisterLoginMe(t *testing.T) {
	app := newTestApp(t)

	resp, body := doJSON(t, app, "POST", "/register", "", map[string]string{
		"name":     "Ada",
		"email":    "Ada@Example.COM",
		"password": "s3cret",
	})
	require.Equal(t, 201, resp.StatusCode)
	user := body["user"].(map[string]any)
	assert.Equal(t, "ada@example.com", user["email"])
	assert.NotContains(t, user, "password")

	resp, _ = doJSON(t, app, "POST", "/register", "", map[string]string{"email": "ada@example.com"})
	assert.Equal(t, 400, resp.StatusCode)

	resp, body = doJSON(t, app, "POST", "/register", "", map[string]string{
		"email": "ada@example.com", "password": "other",
	})
	assert.Equal(t, 409, resp.StatusCode)
	assert.Equal(t, "Email already in use.", body["message"])

	resp, body = doJSON(t, app, "POST", "/login", "", map[string]string{
		"email": "ada@example.com", "password": "s3cret",
	})
	require.Equal(t, 200, resp.StatusCode)
	token := body["token"].(string)

	resp, body = doJSON(t, app, "GET", "/me", token, nil)
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "ada@example.com", body["user"].(map[string]any)["email"])
}

func TestLoginFailuresShareOneMessage(t *testing.T) {
	app := newTestApp(t)
	registerUser(t, app, "ada@example.com")

	resp1, body1 := doJSON(t, app, "POST", "/login", "", map[string]string{
		"email": "ada@example.com", "password": "wrong",
	})
	resp2, body2 := doJSON(t, app, "POST", "/login", "", map[string]string{
		"email": "ghost@example.com", "password": "wrong",
	})
	assert.Equal(t, 401, resp1.StatusCode)
	assert.Equal(t, 401, resp2.StatusCode)
	assert.Equal(t, body1["message"], body2["message"])
}

func TestIssuesRequireAuth(t *testing.T) {
	app := newTestApp(t)

	for _, path := range []string{"/issues", "/issues/stats", "/issues/export", "/me"} {
		resp, _ := doJSON(t, app, "GET", path, "", nil)
		assert.Equal(t, 401, resp.StatusCode, path)
	}

	resp, _ := doJSON(t, app, "GET", "/issues", "not-a-token", nil)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestIssueLifecycle(t *testing.T) {
	app := newTestApp(t)
	token := registerUser(t, app, "ada@example.com")

	resp, body := doJSON(t, app, "POST", "/issues", token, map[string]string{
		"title": "Crash on save", "description": "App crashes",
	})
	require.Equal(t, 201, resp.StatusCode)
	issue := body["issue"].(map[string]any)
	assert.Equal(t, "Open", issue["status"])
	assert.Equal(t, "Medium", issue["priority"])
	assert.Nil(t, issue["severity"])
	id := issue["id"].(string)

	resp, _ = doJSON(t, app, "POST", "/issues", token, map[string]string{"title": "no description"})
	assert.Equal(t, 400, resp.StatusCode)

	// listing filters by status
	resp, body = doJSON(t, app, "GET", "/issues?status=Open", token, nil)
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, float64(1), body["total"])

	resp, body = doJSON(t, app, "GET", "/issues?status=Closed", token, nil)
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, float64(0), body["total"])
	assert.Equal(t, float64(0), body["totalPages"])

	// detail hydrates the creator
	resp, body = doJSON(t, app, "GET", "/issues/"+id, token, nil)
	require.Equal(t, 200, resp.StatusCode)
	creator := body["issue"].(map[string]any)["createdBy"].(map[string]any)
	assert.Equal(t, "Ada", creator["name"])
	assert.Equal(t, "ada@example.com", creator["email"])

	resp, body = doJSON(t, app, "PUT", "/issues/"+id, token, map[string]string{"status": "Resolved"})
	require.Equal(t, 200, resp.StatusCode)
	updated := body["issue"].(map[string]any)
	assert.Equal(t, "Resolved", updated["status"])
	assert.Equal(t, "Crash on save", updated["title"])

	resp, _ = doJSON(t, app, "PUT", "/issues/"+id, token, map[string]string{"status": "Bogus"})
	assert.Equal(t, 400, resp.StatusCode)

	resp, body = doJSON(t, app, "DELETE", "/issues/"+id, token, nil)
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "Issue deleted.", body["message"])

	resp, _ = doJSON(t, app, "GET", "/issues/"+id, token, nil)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestIssueIdentifierValidation(t *testing.T) {
	app := newTestApp(t)
	token := registerUser(t, app, "ada@example.com")

	resp, _ := doJSON(t, app, "GET", "/issues/not-a-uuid", token, nil)
	assert.Equal(t, 400, resp.StatusCode)

	resp, _ = doJSON(t, app, "GET", "/issues/"+uuid.NewString(), token, nil)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestListPaginationQuery(t *testing.T) {
	app := newTestApp(t)
	token := registerUser(t, app, "ada@example.com")

	for i := 0; i < 12; i++ {
		resp, _ := doJSON(t, app, "POST", "/issues", token, map[string]string{
			"title": fmt.Sprintf("issue %d", i), "description": "d",
		})
		require.Equal(t, 201, resp.StatusCode)
	}

	resp, body := doJSON(t, app, "GET", "/issues?page=0&limit=1000", token, nil)
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, float64(1), body["page"])
	assert.Equal(t, float64(100), body["limit"])
	assert.Equal(t, float64(12), body["total"])
	assert.Equal(t, float64(1), body["totalPages"])

	// explicit limit=0 clamps to 1 instead of reverting to the default
	resp, body = doJSON(t, app, "GET", "/issues?limit=0", token, nil)
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, float64(1), body["limit"])
	assert.Equal(t, float64(12), body["totalPages"])
	assert.Len(t, body["data"].([]any), 1)

	resp, body = doJSON(t, app, "GET", "/issues?page=abc&limit=xyz", token, nil)
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, float64(1), body["page"])
	assert.Equal(t, float64(10), body["limit"])
	assert.Equal(t, float64(2), body["totalPages"])
	assert.Len(t, body["data"].([]any), 10)

	resp, body = doJSON(t, app, "GET", "/issues?page=2&limit=10", token, nil)
	require.Equal(t, 200, resp.StatusCode)
	assert.Len(t, body["data"].([]any), 2)
}

func TestStatsEndpoint(t *testing.T) {
	app := newTestApp(t)
	token := registerUser(t, app, "ada@example.com")

	for _, status := range []string{"", "", "Closed"} {
		payload := map[string]string{"title": "t", "description": "d"}
		if status != "" {
			payload["status"] = status
		}
		resp, _ := doJSON(t, app, "POST", "/issues", token, payload)
		require.Equal(t, 201, resp.StatusCode)
	}

	resp, body := doJSON(t, app, "GET", "/issues/stats", token, nil)
	require.Equal(t, 200, resp.StatusCode)
	counts := body["counts"].(map[string]any)
	assert.Equal(t, float64(2), counts["Open"])
	assert.Equal(t, float64(1), counts["Closed"])
	assert.NotContains(t, counts, "Resolved")
}

func TestExportEndpoint(t *testing.T) {
	app := newTestApp(t)
	token := registerUser(t, app, "ada@example.com")

	resp, _ := doJSON(t, app, "POST", "/issues", token, map[string]string{
		"title": "Comma, in title", "description": "d",
	})
	require.Equal(t, 201, resp.StatusCode)

	resp, body := doJSON(t, app, "GET", "/issues/export", token, nil)
	require.Equal(t, 200, resp.StatusCode)
	data := body["data"].([]any)
	require.Len(t, data, 1)
	creator := data[0].(map[string]any)["createdBy"].(map[string]any)
	assert.Equal(t, "ada@example.com", creator["email"])

	resp, body = doJSON(t, app, "GET", "/issues/export?format=csv", token, nil)
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
	assert.Equal(t, `attachment; filename=issues.csv`, resp.Header.Get("Content-Disposition"))

	raw := body["_raw"].(string)
	lines := strings.Split(raw, "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "title,description,status,priority,severity,createdByName,createdByEmail,createdAt,updatedAt", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], `"Comma, in title",d,Open,Medium,,Ada,ada@example.com,`))

	// export ignores pagination parameters
	resp, body = doJSON(t, app, "GET", "/issues/export?limit=1&page=5", token, nil)
	require.Equal(t, 200, resp.StatusCode)
	assert.Len(t, body["data"].([]any), 1)
}
