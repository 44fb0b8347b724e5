package uploads

import (
	"fmt"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Dir returns the directory uploaded files are stored under.
func Dir() string {
	if d := os.Getenv("UPLOAD_DIR"); d != "" {
		return d
	}
	return "uploads"
}

var allowedExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".pdf":  true,
}

// Save stores a multipart file under a fresh uuid name inside a subdirectory
// (e.g. "id_pictures", "payment_screenshots") and returns the relative path
// persisted with the owning record.
func Save(c *fiber.Ctx, fh *multipart.FileHeader, subdir string) (string, error) {
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if !allowedExts[ext] {
		return "", fiber.NewError(fiber.StatusBadRequest, "Unsupported file type: "+ext)
	}

	dir := filepath.Join(Dir(), subdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload dir: %w", err)
	}

	name := uuid.NewString() + ext
	dst := filepath.Join(dir, name)
	if err := c.SaveFile(fh, dst); err != nil {
		return "", fmt.Errorf("failed to save upload: %w", err)
	}
	return filepath.ToSlash(filepath.Join(subdir, name)), nil
}
