package data

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/PaulBabatuyi/marketChat-gRPC/internal/chat"
	"github.com/PaulBabatuyi/marketChat-gRPC/internal/normalize"
)

// ReportsStore holds message reports and their moderation history.
type ReportsStore struct {
	base
}

func NewReportsStore(cols Collections, opts ...Option) *ReportsStore {
	return &ReportsStore{base: newBase(cols, opts)}
}

// File records a new pending report. Repeated reports of the same message by
// the same user are kept as separate reports.
func (s *ReportsStore) File(ctx context.Context, nr chat.NewReport) (*chat.Report, error) {
	if err := nr.Validate(); err != nil {
		return nil, err
	}
	m, err := s.visibleMessage(ctx, nr.MessageID, nr.ReporterID)
	if err != nil {
		return nil, chat.Internal("file_report", nr.MessageID, err)
	}

	now := s.timestamp()
	r := chat.Report{
		ID:             newID(),
		MessageID:      m.ID,
		ConversationID: m.ConversationID,
		ReporterID:     nr.ReporterID,
		Reason:         nr.Reason,
		Description:    nr.Description,
		Status:         chat.ReportPending,
		CreatedAt:      now,
		UpdatedAt:      now,
		History:        []chat.ReportTransition{},
	}
	if _, err := s.cols.Reports.InsertOne(ctx, r); err != nil {
		return nil, chat.Internal("file_report", nr.MessageID, err)
	}
	return &r, nil
}

// Transition moves a report to status to and appends the change to its
// history. The write is conditional on the status read, so two moderators
// acting at once cannot both succeed; the loser gets ErrConflict.
func (s *ReportsStore) Transition(ctx context.Context, reportID, actorID string, to chat.ReportStatus, note string) (*chat.Report, error) {
	if !to.Valid() {
		return nil, chat.Invalid("status", "unknown status "+string(to))
	}
	note = normalize.Content(note)
	if normalize.Runes(note) > chat.MaxReportNoteRunes {
		return nil, chat.Invalid("note", "too long")
	}

	var r chat.Report
	err := s.cols.Reports.FindOne(ctx, bson.D{{Key: "_id", Value: reportID}}).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: report %s", chat.ErrNotFound, reportID)
	}
	if err != nil {
		return nil, chat.Internal("transition_report", reportID, err)
	}
	if !r.Status.CanTransition(to) {
		return nil, chat.Invalid("status", fmt.Sprintf("cannot move report from %s to %s", r.Status, to))
	}

	now := s.timestamp()
	entry := chat.ReportTransition{From: r.Status, To: to, By: actorID, Note: note, At: now}
	res, err := s.cols.Reports.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: reportID}, {Key: "status", Value: r.Status}},
		bson.D{
			{Key: "$set", Value: bson.D{{Key: "status", Value: to}, {Key: "updated_at", Value: now}}},
			{Key: "$push", Value: bson.D{{Key: "history", Value: entry}}},
		},
	)
	if err != nil {
		return nil, chat.Internal("transition_report", reportID, err)
	}
	if res.MatchedCount == 0 {
		return nil, fmt.Errorf("%w: report %s changed concurrently", chat.ErrConflict, reportID)
	}

	r.Status = to
	r.UpdatedAt = now
	r.History = append(r.History, entry)
	return &r, nil
}

// List returns reports newest first, optionally only those in status.
func (s *ReportsStore) List(ctx context.Context, status chat.ReportStatus, limit int) ([]chat.Report, error) {
	filter := bson.D{}
	if status != "" {
		if !status.Valid() {
			return nil, chat.Invalid("status", "unknown status "+string(status))
		}
		filter = append(filter, bson.E{Key: "status", Value: status})
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(chat.PageSize(limit)))

	cur, err := s.cols.Reports.Find(ctx, filter, opts)
	if err != nil {
		return nil, chat.Internal("list_reports", "", err)
	}
	var out []chat.Report
	if err := cur.All(ctx, &out); err != nil {
		return nil, chat.Internal("list_reports", "", err)
	}
	return out, nil
}
