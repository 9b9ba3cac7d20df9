package packages

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	apperrors "github.com/bpsong/mailroom/internal/errors"
	"github.com/bpsong/mailroom/internal/models"
)

// MaxAttachmentSize is S_max from spec.md 4.8.1.
const MaxAttachmentSize = 5 * 1024 * 1024

// allowedMIMETypes maps a sniffed MIME type to its canonical stored
// extension. Extension is never taken from the client-supplied
// filename.
var allowedMIMETypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// UploadedFile is the input to attachment validation: raw bytes plus
// the filename the client supplied (display-only, never used to decide
// MIME type or storage path).
type UploadedFile struct {
	OriginalFilename string
	Content          []byte
}

type validatedAttachment struct {
	storedPath string
	mimeType   string
	size       int64
}

// validateAttachment sniffs the MIME type from content bytes, enforces
// the size cap and allowed-type set, and computes an opaque stored path
// under uploadRoot/packages/YYYY/MM/<uuid><ext>. It does not write the
// file; persistAttachmentBytes does that after the database row is
// committed.
func (c *Core) validateAttachment(f UploadedFile) (*validatedAttachment, error) {
	if int64(len(f.Content)) > MaxAttachmentSize {
		return nil, apperrors.NewValidation("file_too_large", fmt.Sprintf("attachment exceeds maximum size of %d bytes", MaxAttachmentSize))
	}

	mtype := mimetype.Detect(f.Content)
	ext, ok := allowedMIMETypes[mtype.String()]
	if !ok {
		return nil, apperrors.NewValidation("unsupported_file_type", "attachment must be a JPEG, PNG, or WebP image")
	}

	now := time.Now().UTC()
	relPath := filepath.Join("packages", now.Format("2006"), now.Format("01"), uuid.NewString()+ext)

	return &validatedAttachment{
		storedPath: relPath,
		mimeType:   mtype.String(),
		size:       int64(len(f.Content)),
	}, nil
}

// persistAttachmentBytes writes validated content to uploadRoot/relPath,
// rejecting any path that would escape uploadRoot (defense in depth;
// relPath is always generated by validateAttachment, never from
// caller-supplied input, but the check costs nothing and documents the
// invariant).
func (c *Core) persistAttachmentBytes(relPath string, content []byte) error {
	fullPath := filepath.Join(c.uploadRoot, relPath)
	cleanRoot := filepath.Clean(c.uploadRoot)
	if !isWithinRoot(cleanRoot, fullPath) {
		return fmt.Errorf("resolved attachment path escapes upload root")
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("create attachment directory: %w", err)
	}
	if err := os.WriteFile(fullPath, content, 0o644); err != nil {
		return fmt.Errorf("write attachment: %w", err)
	}
	return nil
}

// AttachPhoto adds a photo to an already-registered package without
// changing its status (e.g. a delivery proof photo added after the
// "delivered" transition itself was recorded via UpdateStatus).
func (c *Core) AttachPhoto(ctx context.Context, pkgID string, f UploadedFile, actorID string) (*models.Attachment, error) {
	if _, err := c.Get(ctx, pkgID); err != nil {
		return nil, err
	}

	validated, err := c.validateAttachment(f)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	if err := c.queue.Submit(ctx,
		`INSERT INTO attachments (id, package_id, original_filename, stored_path, mime_type, byte_size, uploaded_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, datetime('now'))`,
		id, pkgID, f.OriginalFilename, validated.storedPath, validated.mimeType, validated.size, actorID,
	); err != nil {
		return nil, apperrors.NewInternal(err)
	}

	if err := c.persistAttachmentBytes(validated.storedPath, f.Content); err != nil {
		return nil, apperrors.Wrap(apperrors.Internal, "attachment_write_failed", "attachment recorded but could not be stored", err)
	}

	return &models.Attachment{
		ID: id, PackageID: pkgID, OriginalFilename: f.OriginalFilename,
		MIMEType: validated.mimeType, ByteSize: validated.size, UploadedBy: actorID,
	}, nil
}

func isWithinRoot(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
