package utils

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

const (
	// Base directory for storing uploaded files
	uploadBaseDir = "uploads"
	// Base URL for serving files
	baseURL = "/uploads"
	// Maximum file size (10MB)
	MaxFileSize = 10 * 1024 * 1024
)

// Allowed proof document extensions
var allowedProofExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".pdf":  true,
}

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// cleanFilename removes any potentially dangerous characters from the filename
func cleanFilename(filename string) string {
	// Remove any path components
	filename = filepath.Base(filename)
	// Remove any non-alphanumeric characters except for dots and hyphens
	reg := regexp.MustCompile(`[^a-zA-Z0-9.-]`)
	return reg.ReplaceAllString(filename, "")
}

// ValidateProofFileType checks that the file extension is allowed for a
// proof document.
func ValidateProofFileType(filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedProofExts[ext] {
		return fmt.Errorf("unsupported proof format. Allowed formats: jpg, jpeg, png, pdf")
	}
	return nil
}

// InitializeStorage creates necessary directories for file storage
func InitializeStorage() error {
	if err := os.MkdirAll(uploadBaseDir, 0755); err != nil {
		return fmt.Errorf("failed to create uploads directory: %v", err)
	}

	dirs := []string{
		filepath.Join(uploadBaseDir, "proofs"),
		filepath.Join(uploadBaseDir, "thumbnails"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %v", dir, err)
		}
	}

	return nil
}

// LocalFileStore persists proof documents under uploads/ and serves them from
// /uploads. It implements services.FileStore.
type LocalFileStore struct{}

func NewLocalFileStore() *LocalFileStore {
	return &LocalFileStore{}
}

// SaveProof writes the file under uploads/proofs with a unique name and, for
// image content, renders a dashboard thumbnail alongside it. A thumbnail
// failure does not fail the upload.
func (fs *LocalFileStore) SaveProof(data []byte, filename string) (string, string, error) {
	if len(data) > MaxFileSize {
		return "", "", fmt.Errorf("file too large. Maximum size is %d bytes", MaxFileSize)
	}

	cleanName := cleanFilename(filename)
	if err := ValidateProofFileType(cleanName); err != nil {
		return "", "", err
	}

	if err := InitializeStorage(); err != nil {
		return "", "", err
	}

	ext := strings.ToLower(filepath.Ext(cleanName))
	storedName := fmt.Sprintf("%s%s", uuid.New().String(), ext)
	fullPath := filepath.Join(uploadBaseDir, "proofs", storedName)

	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		return "", "", fmt.Errorf("failed to write file: %v", err)
	}

	fileURL := fmt.Sprintf("%s/proofs/%s", baseURL, storedName)

	thumbnailURL := ""
	if imageExts[ext] {
		thumbURL, err := generateImageThumbnail(data, storedName)
		if err == nil {
			thumbnailURL = thumbURL
		}
	}

	return fileURL, thumbnailURL, nil
}

// Remove deletes a previously stored file and its thumbnail if any.
func (fs *LocalFileStore) Remove(fileURL string) error {
	relPath := strings.TrimPrefix(fileURL, baseURL+"/")
	fullPath := filepath.Join(uploadBaseDir, relPath)

	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove file %s: %v", fullPath, err)
	}

	storedName := filepath.Base(relPath)
	thumbName := strings.TrimSuffix(storedName, filepath.Ext(storedName)) + ".jpg"
	thumbPath := filepath.Join(uploadBaseDir, "thumbnails", thumbName)
	if err := os.Remove(thumbPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove thumbnail %s: %v", thumbPath, err)
	}

	return nil
}

// generateImageThumbnail resizes an image proof to a 320px-wide JPEG for the
// dashboard.
func generateImageThumbnail(data []byte, storedName string) (string, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %v", err)
	}

	// Resize to max width of 320px while maintaining aspect ratio
	resized := imaging.Resize(img, 320, 0, imaging.Lanczos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 85}); err != nil {
		return "", fmt.Errorf("failed to encode thumbnail: %v", err)
	}

	thumbName := strings.TrimSuffix(storedName, filepath.Ext(storedName)) + ".jpg"
	thumbPath := filepath.Join(uploadBaseDir, "thumbnails", thumbName)

	if err := os.MkdirAll(filepath.Dir(thumbPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create thumbnail directory: %v", err)
	}
	if err := os.WriteFile(thumbPath, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("failed to save thumbnail: %v", err)
	}

	return fmt.Sprintf("%s/thumbnails/%s", baseURL, thumbName), nil
}
