package chat

import (
	"time"

	"github.com/PaulBabatuyi/marketChat-gRPC/internal/normalize"
)

type ReportReason string

const (
	ReasonSpam          ReportReason = "spam"
	ReasonHarassment    ReportReason = "harassment"
	ReasonScam          ReportReason = "scam"
	ReasonInappropriate ReportReason = "inappropriate"
	ReasonOther         ReportReason = "other"
)

func (r ReportReason) Valid() bool {
	switch r {
	case ReasonSpam, ReasonHarassment, ReasonScam, ReasonInappropriate, ReasonOther:
		return true
	}
	return false
}

// ReportStatus is the moderation state of a report.
type ReportStatus string

const (
	ReportPending   ReportStatus = "pending"
	ReportReviewed  ReportStatus = "reviewed"
	ReportResolved  ReportStatus = "resolved"
	ReportDismissed ReportStatus = "dismissed"
)

func (s ReportStatus) Valid() bool {
	switch s {
	case ReportPending, ReportReviewed, ReportResolved, ReportDismissed:
		return true
	}
	return false
}

// CanTransition reports whether moderation may move a report from s to next.
// pending → reviewed → {resolved, dismissed}; nothing moves backward.
func (s ReportStatus) CanTransition(next ReportStatus) bool {
	switch s {
	case ReportPending:
		return next == ReportReviewed
	case ReportReviewed:
		return next == ReportResolved || next == ReportDismissed
	}
	return false
}

// ReportTransition is one entry of a report's append-only history.
type ReportTransition struct {
	From ReportStatus `bson:"from"`
	To   ReportStatus `bson:"to"`
	By   string       `bson:"by"`
	Note string       `bson:"note,omitempty"`
	At   time.Time    `bson:"at"`
}

// Report is a user's complaint about a message.
type Report struct {
	ID             string             `bson:"_id"`
	MessageID      string             `bson:"message_id"`
	ConversationID string             `bson:"conversation_id"`
	ReporterID     string             `bson:"reporter_id"`
	Reason         ReportReason       `bson:"reason"`
	Description    string             `bson:"description,omitempty"`
	Status         ReportStatus       `bson:"status"`
	CreatedAt      time.Time          `bson:"created_at"`
	UpdatedAt      time.Time          `bson:"updated_at"`
	History        []ReportTransition `bson:"history"`
}

const (
	MaxReportDescriptionRunes = 2000
	MaxReportNoteRunes        = 1000
)

// NewReport describes a report to file.
type NewReport struct {
	MessageID   string
	ReporterID  string
	Reason      ReportReason
	Description string
}

// Validate checks the report and normalizes its description in place.
func (r *NewReport) Validate() error {
	if r.MessageID == "" {
		return Invalid("message_id", "required")
	}
	if !r.Reason.Valid() {
		return Invalid("reason", "unknown reason "+string(r.Reason))
	}
	r.Description = normalize.Content(r.Description)
	if normalize.Runes(r.Description) > MaxReportDescriptionRunes {
		return Invalid("description", "too long")
	}
	return nil
}
