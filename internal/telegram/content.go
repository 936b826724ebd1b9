package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/AnnoyBoT/internal/models"
)

// maxDownloadSize matches the Bot API limit for getFile
const maxDownloadSize = 20 << 20

// Download fetches the file behind contentID into a temporary file. The
// caller owns the returned blob and must remove it.
func (b *Bot) Download(ctx context.Context, contentID string) (*models.Blob, error) {
	link, err := b.fileLink(contentID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve file %s: %w", contentID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build download request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download file %s: %w", contentID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download file %s: unexpected status %d", contentID, resp.StatusCode)
	}

	f, err := os.CreateTemp(b.tempDir, "annoybot-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	blob := &models.Blob{Path: f.Name()}
	size, err := io.Copy(f, io.LimitReader(resp.Body, maxDownloadSize))
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = blob.Remove()
		return nil, fmt.Errorf("failed to store file %s: %w", contentID, err)
	}

	mime, err := mimetype.DetectFile(blob.Path)
	if err != nil {
		_ = blob.Remove()
		return nil, fmt.Errorf("failed to detect content type: %w", err)
	}

	blob.Size = size
	blob.ContentType = mime.String()
	blob.Extension = mime.Extension()

	b.logger.WithFields(logrus.Fields{
		"content_id":   contentID,
		"content_type": blob.ContentType,
		"size":         blob.Size,
	}).Debug("Downloaded content")

	return blob, nil
}
