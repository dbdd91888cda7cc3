package store

import (
	"time"

	"gorm.io/gorm"

	"loanportal/pkg/domain"
)

var documentColumns = []string{
	"category", "filename", "original_name", "content_type", "size_bytes",
	"status", "review_notes", "reviewed_by", "metadata", "reviewed_at",
}

func (s *GormStore) SaveDocument(d domain.Document) error {
	model := documentToModel(d)
	return upsert(s.db, &model, documentColumns)
}

func (s *GormStore) GetDocument(id string) (domain.Document, bool, error) {
	var model DocumentModel
	found, err := first(s.db, &model, "id = ?", id)
	if !found || err != nil {
		return domain.Document{}, false, err
	}
	return documentFromModel(model), true, nil
}

// ListDocuments returns an application's documents, newest first.
func (s *GormStore) ListDocuments(applicationID string) ([]domain.Document, error) {
	return s.listDocuments(s.db.Where("application_id = ?", applicationID))
}

// ListDocumentsByStatus feeds the admin review queue, oldest first.
func (s *GormStore) ListDocumentsByStatus(status domain.DocumentStatus, limit int) ([]domain.Document, error) {
	q := s.db.Where("status = ?", string(status))
	if limit > 0 {
		q = q.Limit(limit)
	}
	var models []DocumentModel
	if err := q.Order("uploaded_at asc").Find(&models).Error; err != nil {
		return nil, err
	}
	return documentsFromModels(models), nil
}

func (s *GormStore) listDocuments(q *gorm.DB) ([]domain.Document, error) {
	var models []DocumentModel
	if err := q.Order("uploaded_at desc").Find(&models).Error; err != nil {
		return nil, err
	}
	return documentsFromModels(models), nil
}

// UpdateDocumentReview writes the review fields and returns the new row.
func (s *GormStore) UpdateDocumentReview(id string, review DocumentReview) (domain.Document, error) {
	reviewedAt := review.ReviewedAt
	if reviewedAt.IsZero() {
		reviewedAt = time.Now().UTC()
	}
	res := s.db.Model(&DocumentModel{}).Where("id = ?", id).Updates(map[string]any{
		"status":       string(review.Status),
		"review_notes": review.Notes,
		"reviewed_by":  review.ReviewedBy,
		"reviewed_at":  reviewedAt,
	})
	if res.Error != nil {
		return domain.Document{}, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.Document{}, ErrNotFound
	}
	doc, found, err := s.GetDocument(id)
	if err != nil {
		return domain.Document{}, err
	}
	if !found {
		return domain.Document{}, ErrNotFound
	}
	return doc, nil
}

func (s *GormStore) DeleteDocument(id string) error {
	res := s.db.Where("id = ?", id).Delete(&DocumentModel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func documentsFromModels(models []DocumentModel) []domain.Document {
	out := make([]domain.Document, 0, len(models))
	for _, m := range models {
		out = append(out, documentFromModel(m))
	}
	return out
}
