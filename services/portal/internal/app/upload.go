package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"loanportal/internal/util"
	"loanportal/pkg/domain"
	"loanportal/pkg/inspect"
	"loanportal/pkg/queue"
	"loanportal/pkg/realtime"
	"loanportal/pkg/storage"
	"loanportal/pkg/textutil"
)

var allowedTypes = map[string]string{
	"image/jpeg":      "jpg",
	"image/png":       "png",
	"application/pdf": "pdf",
	"image/heic":      "heic",
}

// UploadFile is one file received from the client.
type UploadFile struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// ValidateFile checks the declared type and size. It has no side effects.
func ValidateFile(contentType string, size int64) error {
	if size > MaxFileSize {
		return &ValidationError{Message: "File is too large. Maximum size is 10MB."}
	}
	if _, ok := allowedTypes[normalizeContentType(contentType)]; !ok {
		return &ValidationError{Message: "File type not supported. Please upload a JPEG, PNG, PDF, or HEIC file."}
	}
	return nil
}

// UploadDocument stores file for an application and records it once the
// blob is confirmed retrievable. An empty applicationID means the caller's
// own application.
func (a *App) UploadDocument(ctx context.Context, id domain.Identity, applicationID string, category domain.DocumentCategory, file UploadFile) (domain.Document, error) {
	if err := ValidateFile(file.ContentType, file.Size); err != nil {
		return domain.Document{}, err
	}
	if err := requireIdentity(id); err != nil {
		return domain.Document{}, err
	}
	if !category.Valid() {
		return domain.Document{}, ErrInvalidCategory
	}
	app, err := a.loadApplication(id, applicationID)
	if err != nil {
		return domain.Document{}, err
	}

	data, err := io.ReadAll(io.LimitReader(file.Body, MaxFileSize+1))
	if err != nil {
		return domain.Document{}, fmt.Errorf("read upload: %w", err)
	}
	if len(data) > MaxFileSize {
		return domain.Document{}, ValidateFile(file.ContentType, int64(len(data)))
	}
	contentType := normalizeContentType(file.ContentType)
	key := a.storageKey(id.UserID, category, file.Name, contentType)
	log := a.log(ctx).With("application_id", app.ID, "key", key)

	progress := a.progressPublisher(ctx, id.UserID, key)
	if err := a.objects.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType, progress); err != nil {
		a.metrics.Upload("storage_error")
		if errors.Is(err, storage.ErrAccessDenied) {
			return domain.Document{}, ErrRestricted
		}
		return domain.Document{}, fmt.Errorf("store file: %w", err)
	}

	if err := a.sleep(ctx, a.consistencyDelay); err != nil {
		a.enqueueCleanup(ctx, key, queue.ReasonUploadUnverified)
		return domain.Document{}, err
	}
	if _, err := a.GetFileURL(ctx, key, a.urlRetries); err != nil {
		a.metrics.Upload("unverified")
		log.Warn("uploaded file not retrievable", "err", err)
		a.enqueueCleanup(ctx, key, queue.ReasonUploadUnverified)
		return domain.Document{}, err
	}

	doc := domain.Document{
		ID:            util.NewEntityID(),
		ApplicationID: app.ID,
		Category:      category,
		Filename:      key,
		OriginalName:  textutil.Truncate(textutil.Normalize(filepath.Base(file.Name)), 255),
		ContentType:   contentType,
		SizeBytes:     int64(len(data)),
		Status:        domain.DocumentPending,
		UploadedBy:    id.UserID,
		UploadedAt:    a.timestamp(),
	}
	if meta, err := inspect.Inspect(contentType, data); err == nil {
		doc.Metadata = meta
	} else if !errors.Is(err, inspect.ErrUnsupported) {
		log.Info("document inspection skipped", "err", err)
	}
	if err := a.store.SaveDocument(doc); err != nil {
		a.metrics.Upload("db_error")
		a.enqueueCleanup(ctx, key, queue.ReasonUploadUnverified)
		return domain.Document{}, fmt.Errorf("save document: %w", err)
	}
	a.metrics.Upload("ok")
	log.Info("document uploaded", "document_id", doc.ID, "category", string(category), "size", doc.SizeBytes)

	a.publish(ctx, realtime.TableDocuments, realtime.EventInsert, app.UserID, doc)
	label := category.Label()
	if app.UserID == id.UserID {
		a.notify(ctx, app.UserID, "Document Uploaded Successfully",
			fmt.Sprintf("Your %s document has been uploaded and is pending review.", label))
	} else {
		a.notify(ctx, app.UserID, "New Document Added",
			fmt.Sprintf("Your loan specialist added a %s document to your application.", label))
	}
	return doc, nil
}

func (a *App) storageKey(uploaderID string, category domain.DocumentCategory, name, contentType string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if ext == "" || len(ext) > 5 || strings.ContainsAny(ext, "/\\") {
		ext = allowedTypes[contentType]
	}
	return fmt.Sprintf("%s/%s/%d.%s", uploaderID, category, a.now().UnixMilli(), ext)
}

// progressPublisher emits upload_progress events at 10% steps.
func (a *App) progressPublisher(ctx context.Context, userID, key string) storage.ProgressFunc {
	if a.events == nil {
		return nil
	}
	last := -1
	return func(sent, total int64) {
		p := realtime.NewUploadProgress(key, sent, total)
		if p.Percent < 100 && p.Percent-last < 10 {
			return
		}
		if p.Percent == last {
			return
		}
		last = p.Percent
		a.publish(ctx, realtime.TableUploadProgress, realtime.EventUpdate, userID, p)
	}
}

func normalizeContentType(ct string) string {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct == "image/jpg" {
		return "image/jpeg"
	}
	return ct
}
