package domain

import "time"

// IssueStatus enumerates lifecycle states for issues.
type IssueStatus string

const (
	IssueStatusOpen       IssueStatus = "Open"
	IssueStatusInProgress IssueStatus = "In Progress"
	IssueStatusResolved   IssueStatus = "Resolved"
	IssueStatusClosed     IssueStatus = "Closed"
)

// Valid reports whether the status is a member of the enumeration.
func (s IssueStatus) Valid() bool {
	switch s {
	case IssueStatusOpen, IssueStatusInProgress, IssueStatusResolved, IssueStatusClosed:
		return true
	}
	return false
}

// IssuePriority enumerates urgency levels.
type IssuePriority string

const (
	IssuePriorityLow      IssuePriority = "Low"
	IssuePriorityMedium   IssuePriority = "Medium"
	IssuePriorityHigh     IssuePriority = "High"
	IssuePriorityCritical IssuePriority = "Critical"
)

// Valid reports whether the priority is a member of the enumeration.
func (p IssuePriority) Valid() bool {
	switch p {
	case IssuePriorityLow, IssuePriorityMedium, IssuePriorityHigh, IssuePriorityCritical:
		return true
	}
	return false
}

// IssueSeverity enumerates impact levels. Severity is optional and has no default.
type IssueSeverity string

const (
	IssueSeverityMinor    IssueSeverity = "Minor"
	IssueSeverityMajor    IssueSeverity = "Major"
	IssueSeverityCritical IssueSeverity = "Critical"
)

// Valid reports whether the severity is a member of the enumeration.
func (s IssueSeverity) Valid() bool {
	switch s {
	case IssueSeverityMinor, IssueSeverityMajor, IssueSeverityCritical:
		return true
	}
	return false
}

// Issue is the aggregate for trackable work items.
type Issue struct {
	ID          string
	Title       string
	Description string
	Status      IssueStatus
	Priority    IssuePriority
	Severity    *IssueSeverity
	CreatedBy   *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IssueWithCreator carries an issue hydrated with its creator's display fields.
// Name and Email are empty when the weak creator reference does not resolve.
type IssueWithCreator struct {
	Issue
	CreatorName  string
	CreatorEmail string
}
