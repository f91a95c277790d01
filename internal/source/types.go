package source

import "time"

// Topic describes a named sub-thread inside a forum-style chat. Discovery is
// best-effort: ApproxMessageCount and LastActivityAt may be zero/nil when the
// probe budget ran out, and CountIsApproximate marks counts derived from a
// bounded fetch rather than an authoritative listing.
type Topic struct {
	ID                 int
	Title              string
	ApproxMessageCount int
	CountIsApproximate bool
	LastActivityAt     *time.Time
}

// GetOptions scope a GetMessages call. Zero values mean unscoped.
type GetOptions struct {
	TopicID  int
	BeforeID int
}
