package app

import (
	"context"
	"errors"
	"fmt"

	"loanportal/pkg/domain"
	"loanportal/pkg/queue"
	"loanportal/pkg/realtime"
	"loanportal/pkg/store"
)

// DocumentGroup is the documents of one category under its display label.
type DocumentGroup struct {
	Category  domain.DocumentCategory `json:"category"`
	Label     string                  `json:"label"`
	Documents []domain.Document       `json:"documents"`
}

// GroupDocuments buckets docs by category in display order. Every known
// category is present, possibly empty. Unknown categories follow.
func GroupDocuments(docs []domain.Document) []DocumentGroup {
	groups := make([]DocumentGroup, 0, len(domain.DocumentCategories()))
	index := make(map[domain.DocumentCategory]int)
	for _, c := range domain.DocumentCategories() {
		index[c] = len(groups)
		groups = append(groups, DocumentGroup{Category: c, Label: c.Label(), Documents: []domain.Document{}})
	}
	for _, d := range docs {
		i, ok := index[d.Category]
		if !ok {
			i = len(groups)
			index[d.Category] = i
			groups = append(groups, DocumentGroup{Category: d.Category, Label: d.Category.Label(), Documents: []domain.Document{}})
		}
		groups[i].Documents = append(groups[i].Documents, d)
	}
	return groups
}

// ListDocuments returns the documents of an application the caller may see.
func (a *App) ListDocuments(_ context.Context, id domain.Identity, applicationID string) ([]domain.Document, error) {
	if err := requireIdentity(id); err != nil {
		return nil, err
	}
	app, err := a.loadApplication(id, applicationID)
	if err != nil {
		return nil, err
	}
	return a.store.ListDocuments(app.ID)
}

// GetDocument returns one document the caller may see.
func (a *App) GetDocument(_ context.Context, id domain.Identity, documentID string) (domain.Document, error) {
	doc, _, err := a.visibleDocument(id, documentID)
	return doc, err
}

// documentOwner loads a document and the user id that owns it.
func (a *App) documentOwner(documentID string) (domain.Document, string, error) {
	doc, ok, err := a.store.GetDocument(documentID)
	if err != nil {
		return domain.Document{}, "", fmt.Errorf("load document: %w", err)
	}
	if !ok {
		return domain.Document{}, "", ErrDocumentNotFound
	}
	owner := ""
	app, ok, err := a.store.GetApplication(doc.ApplicationID)
	if err != nil {
		return domain.Document{}, "", fmt.Errorf("load application: %w", err)
	}
	if ok {
		owner = app.UserID
	}
	return doc, owner, nil
}

// visibleDocument loads a document whose application the caller owns, or any
// document for an admin, along with the owning user id. The uploader gets no
// access of its own.
func (a *App) visibleDocument(id domain.Identity, documentID string) (domain.Document, string, error) {
	if err := requireIdentity(id); err != nil {
		return domain.Document{}, "", err
	}
	doc, owner, err := a.documentOwner(documentID)
	if err != nil {
		return domain.Document{}, "", err
	}
	if !id.Admin() && owner != id.UserID {
		return domain.Document{}, "", ErrPermissionDenied
	}
	return doc, owner, nil
}

// DeleteDocument removes the blob best-effort and then the row. Only the row
// deletion can fail the call.
func (a *App) DeleteDocument(ctx context.Context, id domain.Identity, documentID string) error {
	doc, owner, err := a.visibleDocument(id, documentID)
	if err != nil {
		return err
	}
	log := a.log(ctx).With("document_id", doc.ID, "key", doc.Filename)

	if err := a.objects.Delete(ctx, doc.Filename); err != nil {
		a.metrics.SideEffectFailed("blob_delete")
		log.Warn("blob delete failed, queued for cleanup", "err", err)
		a.enqueueCleanup(ctx, doc.Filename, queue.ReasonDeleteFailed)
	}
	if err := a.store.DeleteDocument(doc.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrDocumentNotFound
		}
		return fmt.Errorf("delete document: %w", err)
	}
	log.Info("document deleted", "by", id.UserID)
	a.publish(ctx, realtime.TableDocuments, realtime.EventDelete, owner, map[string]string{"id": doc.ID, "applicationId": doc.ApplicationID})
	return nil
}
