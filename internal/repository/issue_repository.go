package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/issue-tracker/internal/domain"
)

// IssueFilter captures optional listing criteria. Exact-match fields are
// carried as raw strings and passed through unvalidated: an unrecognized
// status simply matches nothing. SearchTerm matches title or description as
// a case-insensitive substring.
type IssueFilter struct {
	Status     *string
	Priority   *string
	Severity   *string
	SearchTerm *string
}

// IssueRepository encapsulates issue persistence.
type IssueRepository interface {
	Create(ctx context.Context, issue *domain.Issue) error
	GetByID(ctx context.Context, id string) (*domain.Issue, error)
	GetByIDWithCreator(ctx context.Context, id string) (*domain.IssueWithCreator, error)
	Update(ctx context.Context, issue *domain.Issue) error
	Delete(ctx context.Context, id string) (bool, error)
	ListWithFilter(ctx context.Context, filter IssueFilter, limit, offset int) ([]domain.Issue, error)
	ListWithCreator(ctx context.Context, filter IssueFilter) ([]domain.IssueWithCreator, error)
	Count(ctx context.Context, filter IssueFilter) (int64, error)
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

type issueRepository struct {
	pool *pgxpool.Pool
}

// NewIssueRepository instantiates the repository.
func NewIssueRepository(pool *pgxpool.Pool) IssueRepository {
	return &issueRepository{pool: pool}
}

func (r *issueRepository) Create(ctx context.Context, issue *domain.Issue) error {
	const query = `
        INSERT INTO issues (title, description, status, priority, severity, created_by)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		issue.Title,
		issue.Description,
		issue.Status,
		issue.Priority,
		severityArg(issue.Severity),
		issue.CreatedBy,
	).Scan(&issue.ID, &issue.CreatedAt, &issue.UpdatedAt)
}

func (r *issueRepository) Update(ctx context.Context, issue *domain.Issue) error {
	const query = `
        UPDATE issues SET title=$1, description=$2, status=$3, priority=$4, severity=$5, updated_at=NOW()
        WHERE id=$6
        RETURNING updated_at`
	if err := r.pool.QueryRow(ctx, query,
		issue.Title,
		issue.Description,
		issue.Status,
		issue.Priority,
		severityArg(issue.Severity),
		issue.ID,
	).Scan(&issue.UpdatedAt); err != nil {
		return err
	}
	return nil
}

func (r *issueRepository) GetByID(ctx context.Context, id string) (*domain.Issue, error) {
	const query = `
        SELECT id, title, description, status, priority, severity, created_by, created_at, updated_at
        FROM issues WHERE id=$1`

	var issue domain.Issue
	var severity *string
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&issue.ID,
		&issue.Title,
		&issue.Description,
		&issue.Status,
		&issue.Priority,
		&severity,
		&issue.CreatedBy,
		&issue.CreatedAt,
		&issue.UpdatedAt,
	); err != nil {
		return nil, err
	}
	issue.Severity = severityVal(severity)
	return &issue, nil
}

func (r *issueRepository) GetByIDWithCreator(ctx context.Context, id string) (*domain.IssueWithCreator, error) {
	const query = `
        SELECT i.id, i.title, i.description, i.status, i.priority, i.severity,
               i.created_by, i.created_at, i.updated_at,
               COALESCE(u.name, ''), COALESCE(u.email, '')
        FROM issues i
        LEFT JOIN users u ON u.id = i.created_by
        WHERE i.id=$1`

	var row domain.IssueWithCreator
	var severity *string
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&row.ID,
		&row.Title,
		&row.Description,
		&row.Status,
		&row.Priority,
		&severity,
		&row.CreatedBy,
		&row.CreatedAt,
		&row.UpdatedAt,
		&row.CreatorName,
		&row.CreatorEmail,
	); err != nil {
		return nil, err
	}
	row.Severity = severityVal(severity)
	return &row, nil
}

func (r *issueRepository) Delete(ctx context.Context, id string) (bool, error) {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM issues WHERE id=$1`, id)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

// whereClause builds the conjunctive filter shared by list, export and count.
// Placeholder numbering continues from the supplied args slice.
func whereClause(filter IssueFilter, args []any) (string, []any) {
	clauses := []string{"1=1"}

	if filter.Status != nil {
		args = append(args, *filter.Status)
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}
	if filter.Priority != nil {
		args = append(args, *filter.Priority)
		clauses = append(clauses, fmt.Sprintf("priority=$%d", len(args)))
	}
	if filter.Severity != nil {
		args = append(args, *filter.Severity)
		clauses = append(clauses, fmt.Sprintf("severity=$%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(title) LIKE %s OR LOWER(description) LIKE %s)", placeholder, placeholder))
	}

	return strings.Join(clauses, " AND "), args
}

func (r *issueRepository) ListWithFilter(ctx context.Context, filter IssueFilter, limit, offset int) ([]domain.Issue, error) {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}

	where, args := whereClause(filter, nil)
	query := fmt.Sprintf(`
        SELECT id, title, description, status, priority, severity, created_by, created_at, updated_at
        FROM issues WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`, where, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIssues(rows)
}

// ListWithCreator returns the full filtered set joined with creator display
// fields, for export. No pagination applies here.
func (r *issueRepository) ListWithCreator(ctx context.Context, filter IssueFilter) ([]domain.IssueWithCreator, error) {
	where, args := whereClause(filter, nil)
	query := fmt.Sprintf(`
        SELECT i.id, i.title, i.description, i.status, i.priority, i.severity,
               i.created_by, i.created_at, i.updated_at,
               COALESCE(u.name, ''), COALESCE(u.email, '')
        FROM issues i
        LEFT JOIN users u ON u.id = i.created_by
        WHERE %s ORDER BY i.created_at DESC`, where)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.IssueWithCreator
	for rows.Next() {
		var row domain.IssueWithCreator
		var severity *string
		if err := rows.Scan(
			&row.ID,
			&row.Title,
			&row.Description,
			&row.Status,
			&row.Priority,
			&severity,
			&row.CreatedBy,
			&row.CreatedAt,
			&row.UpdatedAt,
			&row.CreatorName,
			&row.CreatorEmail,
		); err != nil {
			return nil, err
		}
		row.Severity = severityVal(severity)
		result = append(result, row)
	}
	return result, rows.Err()
}

func (r *issueRepository) Count(ctx context.Context, filter IssueFilter) (int64, error) {
	where, args := whereClause(filter, nil)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM issues WHERE %s`, where)

	var total int64
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// CountByStatus groups all issues by status. Statuses with no issues are
// absent from the result.
func (r *issueRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM issues GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func scanIssues(rows pgx.Rows) ([]domain.Issue, error) {
	var result []domain.Issue
	for rows.Next() {
		var issue domain.Issue
		var severity *string
		if err := rows.Scan(
			&issue.ID,
			&issue.Title,
			&issue.Description,
			&issue.Status,
			&issue.Priority,
			&severity,
			&issue.CreatedBy,
			&issue.CreatedAt,
			&issue.UpdatedAt,
		); err != nil {
			return nil, err
		}
		issue.Severity = severityVal(severity)
		result = append(result, issue)
	}
	return result, rows.Err()
}

func severityArg(s *domain.IssueSeverity) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}

func severityVal(s *string) *domain.IssueSeverity {
	if s == nil {
		return nil
	}
	v := domain.IssueSeverity(*s)
	return &v
}
