package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"loanportal/pkg/domain"
	"loanportal/pkg/realtime"
	"loanportal/pkg/store"
)

// UpdateDocumentStatus records a review decision. Approve and reject are
// admin actions; owners may only put their document back to pending.
func (a *App) UpdateDocumentStatus(ctx context.Context, id domain.Identity, documentID string, status domain.DocumentStatus, notes string) (domain.Document, error) {
	if _, ok := domain.ParseDocumentStatus(string(status)); !ok {
		return domain.Document{}, ErrInvalidStatus
	}
	notes = strings.ToValidUTF8(notes, "")
	if status == domain.DocumentRejected && strings.TrimSpace(notes) == "" {
		return domain.Document{}, ErrReviewNotesRequired
	}
	doc, owner, err := a.visibleDocument(id, documentID)
	if err != nil {
		return domain.Document{}, err
	}
	if !id.Admin() && status != domain.DocumentPending {
		return domain.Document{}, ErrAdminRequired
	}

	updated, err := a.store.UpdateDocumentReview(doc.ID, store.DocumentReview{
		Status:     status,
		Notes:      notes,
		ReviewedBy: id.UserID,
		ReviewedAt: a.timestamp(),
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Document{}, ErrDocumentNotFound
		}
		return domain.Document{}, fmt.Errorf("update document: %w", err)
	}
	a.log(ctx).Info("document reviewed", "document_id", doc.ID, "from", string(doc.Status), "to", string(status), "by", id.UserID)

	a.publish(ctx, realtime.TableDocuments, realtime.EventUpdate, owner, updated)
	title, message := reviewNotification(updated, id.UserID == owner)
	a.notify(ctx, owner, title, message)
	return updated, nil
}

// reviewNotification picks the text for a review transition. self is true
// when the owner acted on their own document.
func reviewNotification(doc domain.Document, self bool) (string, string) {
	label := doc.Category.Label()
	switch doc.Status {
	case domain.DocumentApproved:
		if self {
			return "Document Approved", fmt.Sprintf("You approved your %s document.", label)
		}
		return "Document Approved", fmt.Sprintf("Your %s document has been approved.", label)
	case domain.DocumentRejected:
		if self {
			return "Document Needs Attention", fmt.Sprintf("You rejected your %s document: %s", label, doc.ReviewNotes)
		}
		return "Document Needs Attention", fmt.Sprintf("Your %s document needs attention: %s", label, doc.ReviewNotes)
	default:
		if self {
			return "Document Under Review", fmt.Sprintf("You resubmitted your %s document for review.", label)
		}
		return "Document Under Review", fmt.Sprintf("Your %s document is being reviewed again.", label)
	}
}

// PendingDocuments is the admin review queue, oldest first.
func (a *App) PendingDocuments(_ context.Context, id domain.Identity, limit int) ([]domain.Document, error) {
	if err := requireAdmin(id); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return a.store.ListDocumentsByStatus(domain.DocumentPending, limit)
}
