package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/issue-tracker/internal/domain"
	"github.com/spec-kit/issue-tracker/internal/repository"
)

// fakeIssueRepo is an in-memory IssueRepository mirroring the store's filter
// semantics: exact-match fields, case-insensitive substring search, newest
// first.
type fakeIssueRepo struct {
	mu     sync.Mutex
	issues map[string]domain.Issue
	users  *fakeUserRepo
	clock  time.Time
}

func newFakeIssueRepo(users *fakeUserRepo) *fakeIssueRepo {
	return &fakeIssueRepo{
		issues: make(map[string]domain.Issue),
		users:  users,
		clock:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (r *fakeIssueRepo) tick() time.Time {
	r.clock = r.clock.Add(time.Second)
	return r.clock
}

func (r *fakeIssueRepo) Create(_ context.Context, issue *domain.Issue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	issue.ID = uuid.NewString()
	now := r.tick()
	issue.CreatedAt = now
	issue.UpdatedAt = now
	r.issues[issue.ID] = *issue
	return nil
}

func (r *fakeIssueRepo) GetByID(_ context.Context, id string) (*domain.Issue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	issue, ok := r.issues[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &issue, nil
}

func (r *fakeIssueRepo) GetByIDWithCreator(ctx context.Context, id string) (*domain.IssueWithCreator, error) {
	issue, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.withCreator(*issue), nil
}

func (r *fakeIssueRepo) Update(_ context.Context, issue *domain.Issue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.issues[issue.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	issue.CreatedAt = stored.CreatedAt
	issue.UpdatedAt = r.tick()
	r.issues[issue.ID] = *issue
	return nil
}

func (r *fakeIssueRepo) Delete(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.issues[id]; !ok {
		return false, nil
	}
	delete(r.issues, id)
	return true, nil
}

func (r *fakeIssueRepo) ListWithFilter(_ context.Context, filter repository.IssueFilter, limit, offset int) ([]domain.Issue, error) {
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

func (r *fakeIssueRepo) ListWithCreator(_ context.Context, filter repository.IssueFilter) ([]domain.IssueWithCreator, error) {
	matches := r.matching(filter)
	result := make([]domain.IssueWithCreator, 0, len(matches))
	for _, issue := range matches {
		result = append(result, *r.withCreator(issue))
	}
	return result, nil
}

func (r *fakeIssueRepo) Count(_ context.Context, filter repository.IssueFilter) (int64, error) {
	return int64(len(r.matching(filter))), nil
}

func (r *fakeIssueRepo) CountByStatus(_ context.Context) (map[string]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[string]int64)
	for _, issue := range r.issues {
		counts[string(issue.Status)]++
	}
	return counts, nil
}

func (r *fakeIssueRepo) matching(filter repository.IssueFilter) []domain.Issue {
	r.mu.Lock()
	defer r.mu.Unlock()
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

func (r *fakeIssueRepo) withCreator(issue domain.Issue) *domain.IssueWithCreator {
	row := domain.IssueWithCreator{Issue: issue}
	if issue.CreatedBy != nil && r.users != nil {
		if user, err := r.users.GetByID(context.Background(), *issue.CreatedBy); err == nil {
			row.CreatorName = user.Name
			row.CreatorEmail = user.Email
		}
	}
	return &row
}

// fakeUserRepo is an in-memory UserRepository with case-insensitive email lookup.
type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]domain.User)}
}

func (r *fakeUserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user.ID = uuid.NewString()
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.users[user.ID] = *user
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &user, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if strings.EqualFold(user.Email, email) {
			u := user
			return &u, nil
		}
	}
	return nil, pgx.ErrNoRows
}

// fakeStatsCache records interactions for assertions.
type fakeStatsCache struct {
	mu          sync.Mutex
	counts      map[string]int64
	warm        bool
	hits        int
	sets        int
	invalidated int
}

func (c *fakeStatsCache) Get(_ context.Context) (map[string]int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.warm {
		return nil, false
	}
	c.hits++
	return c.counts, true
}

func (c *fakeStatsCache) Set(_ context.Context, counts map[string]int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts = counts
	c.warm = true
	c.sets++
}

func (c *fakeStatsCache) Invalidate(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts = nil
	c.warm = false
	c.invalidated++
}
