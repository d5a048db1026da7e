package api

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"commenthub/pkg/models"
)

// Upload limits enforced by the comment service
const (
	MaxTextAttachmentSize  = 100 * 1024
	MaxImageAttachmentSize = 5 * 1024 * 1024
)

// Upload is a file to attach to a new comment
type Upload struct {
	FileName string
	Size     int64
	Content  io.Reader
}

// ValidateUpload rejects files the service would refuse, before anything is sent
func ValidateUpload(u Upload) error {
	ext := strings.ToLower(filepath.Ext(u.FileName))
	switch ext {
	case ".txt":
		if u.Size > MaxTextAttachmentSize {
			return invalidAttachment("file %s is too big, max TXT file size is 100KB", u.FileName)
		}
	case ".jpg", ".jpeg", ".png", ".gif":
		if u.Size > MaxImageAttachmentSize {
			return invalidAttachment("file %s is too big, max JPG, PNG, GIF file size is 5MB", u.FileName)
		}
	default:
		return invalidAttachment("file %s has invalid format, only TXT, JPG, PNG, GIF allowed", u.FileName)
	}
	if u.Content == nil {
		return invalidAttachment("file %s has no content", u.FileName)
	}
	return nil
}

func invalidAttachment(format string, args ...interface{}) error {
	return models.NewProtocolError(models.ErrCodeInvalidAttachment, fmt.Sprintf(format, args...), nil)
}
