package donorsvc

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/dalemusser/donorhub/internal/app/system/metrics"
	"github.com/dalemusser/donorhub/internal/app/system/timeouts"
	"github.com/dalemusser/donorhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Upload is a document received from a client.
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// AttachDocument stores the upload and records its metadata on the donor.
// If the metadata write fails the stored object is removed again.
func (s *Service) AttachDocument(ctx context.Context, id string, up Upload, actorID string) (doc models.DonorDocument, err error) {
	defer func() { metrics.Mutation("attach_document", err) }()
	if actorID == "" {
		return models.DonorDocument{}, ErrUnauthenticated
	}
	if s.files == nil {
		return models.DonorDocument{}, ErrNoStorage
	}
	oid, err := parseID(id)
	if err != nil {
		return models.DonorDocument{}, err
	}
	name := sanitizeFilename(up.Name)
	if up.Body == nil {
		return models.DonorDocument{}, &ValidationError{Fields: map[string]string{"file": "A file is required."}}
	}

	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Long(), s.logger, "donor attach document")
	defer cancel()

	if _, err := s.store.GetByID(ctx, oid); err != nil {
		return models.DonorDocument{}, err
	}

	now := s.now()
	docID := uuid.NewString()
	doc = models.DonorDocument{
		ID:          docID,
		Name:        name,
		Key:         path.Join("donors", oid.Hex(), docID[:8]+"-"+name),
		ContentType: up.ContentType,
		Size:        up.Size,
		UploadedAt:  now,
		UploadedBy:  actorID,
	}
	if doc.ContentType == "" {
		doc.ContentType = "application/octet-stream"
	}

	if err := s.files.Put(ctx, doc.Key, up.Body, &storage.PutOptions{ContentType: doc.ContentType}); err != nil {
		return models.DonorDocument{}, fmt.Errorf("store document: %w", err)
	}
	if err := s.store.AddDocument(ctx, oid, doc, s.stamp(actorID)); err != nil {
		s.removeObject(ctx, doc.Key)
		return models.DonorDocument{}, err
	}
	s.invalidate(ctx, oid)
	return doc, nil
}

// RemoveDocument detaches the document and deletes its object. An unknown
// document id is ErrNotFound.
func (s *Service) RemoveDocument(ctx context.Context, id, docID, actorID string) (err error) {
	defer func() { metrics.Mutation("remove_document", err) }()
	if actorID == "" {
		return ErrUnauthenticated
	}
	oid, err := parseID(id)
	if err != nil {
		return err
	}

	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Medium(), s.logger, "donor remove document")
	defer cancel()

	d, err := s.store.GetByID(ctx, oid)
	if err != nil {
		return err
	}
	doc, ok := findDocument(d, docID)
	if !ok {
		return ErrNotFound
	}
	if err := s.store.RemoveDocument(ctx, oid, docID, s.stamp(actorID)); err != nil {
		return err
	}
	s.invalidate(ctx, oid)
	s.removeObject(ctx, doc.Key)
	return nil
}

// DocumentURL returns a download link for a document: the served path for
// local storage, a short-lived signed URL otherwise.
func (s *Service) DocumentURL(ctx context.Context, id, docID string) (string, error) {
	if s.files == nil {
		return "", ErrNoStorage
	}
	d, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if d == nil {
		return "", ErrNotFound
	}
	doc, ok := findDocument(*d, docID)
	if !ok {
		return "", ErrNotFound
	}
	if _, ok := s.files.(*storage.Local); ok {
		return s.files.URL(doc.Key), nil
	}
	return s.files.PresignedURL(ctx, doc.Key, &storage.PresignOptions{
		Expires:            15 * time.Minute,
		ContentDisposition: `attachment; filename="` + doc.Name + `"`,
	})
}

func findDocument(d models.Donor, docID string) (models.DonorDocument, bool) {
	for _, doc := range d.Documents {
		if doc.ID == docID {
			return doc, true
		}
	}
	return models.DonorDocument{}, false
}

func (s *Service) removeObject(ctx context.Context, key string) {
	if s.files == nil || key == "" {
		return
	}
	if err := s.files.Delete(context.WithoutCancel(ctx), key); err != nil {
		s.logger.Warn("document object not removed", zap.String("key", key), zap.Error(err))
	}
}

// sanitizeFilename keeps the base name and replaces anything outside a
// conservative character set.
func sanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := b.String()
	if out == "" || out == "." || out == ".." || out == "/" {
		return "file"
	}
	if len(out) > 100 {
		ext := path.Ext(out)
		if len(ext) > 0 && len(ext) < 10 {
			out = out[:100-len(ext)] + ext
		} else {
			out = out[:100]
		}
	}
	return out
}
