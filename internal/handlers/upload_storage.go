package handlers

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// uploadURLPrefix is where the router serves the upload directory.
const uploadURLPrefix = "/uploads/"

func uploadURL(rel string) string {
	return uploadURLPrefix + strings.TrimPrefix(filepath.ToSlash(rel), "/")
}

// safeDeleteUpload removes a file previously stored under uploadDir. Paths
// that resolve outside uploadDir are refused.
func safeDeleteUpload(uploadDir, urlPath string) error {
	trimmed := strings.TrimSpace(urlPath)
	if trimmed == "" {
		return nil
	}
	if !strings.HasPrefix(trimmed, uploadURLPrefix) {
		return fmt.Errorf("refusing to delete non-upload path: %s", urlPath)
	}

	cleanRel := path.Clean("/" + strings.TrimPrefix(trimmed, uploadURLPrefix))
	cleanRel = strings.TrimPrefix(cleanRel, "/")
	if cleanRel == "" || cleanRel == "." {
		return fmt.Errorf("refusing to delete upload root: %s", urlPath)
	}

	cleanBase := filepath.Clean(uploadDir)
	cleanTarget := filepath.Clean(filepath.Join(cleanBase, filepath.FromSlash(cleanRel)))
	if !strings.HasPrefix(cleanTarget, cleanBase+string(os.PathSeparator)) {
		return fmt.Errorf("refusing to delete path outside upload dir: %s", urlPath)
	}

	if err := os.Remove(cleanTarget); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	return nil
}
