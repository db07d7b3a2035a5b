package service

import (
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/gabriel-vasile/mimetype"
	"github.com/tyemirov/guiderelay/internal/model"
	"golang.org/x/text/unicode/norm"
)

const defaultUploadContentType = "application/octet-stream"

var allowedImageExtensions = map[string]struct{}{
	"png":  {},
	"jpg":  {},
	"jpeg": {},
	"gif":  {},
	"bmp":  {},
	"webp": {},
}

var unsafeFilenameCharacters = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// AttachmentEncoder turns an uploaded image into a backend attachment.
type AttachmentEncoder interface {
	EncodeFileHeader(fileHeader *multipart.FileHeader) (model.UploadAttachment, error)
}

// UploadEncoder validates image uploads, keeps a scratch copy, and encodes them as data URIs.
type UploadEncoder struct {
	scratchDir string
	logger     *slog.Logger
}

// NewUploadEncoder creates the scratch directory when missing.
func NewUploadEncoder(scratchDir string, logger *slog.Logger) (*UploadEncoder, error) {
	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload folder %s: %w", scratchDir, err)
	}
	return &UploadEncoder{scratchDir: scratchDir, logger: logger}, nil
}

// EncodeFileHeader reads a multipart file part and encodes it.
func (encoder *UploadEncoder) EncodeFileHeader(fileHeader *multipart.FileHeader) (model.UploadAttachment, error) {
	if !AllowedImageFile(fileHeader.Filename) {
		return model.UploadAttachment{}, ErrFileTypeNotAllowed
	}

	file, err := fileHeader.Open()
	if err != nil {
		return model.UploadAttachment{}, fmt.Errorf("open upload %q: %w", fileHeader.Filename, err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return model.UploadAttachment{}, fmt.Errorf("read upload %q: %w", fileHeader.Filename, err)
	}
	return encoder.Encode(fileHeader.Filename, fileHeader.Header.Get("Content-Type"), content)
}

// Encode validates fileName, writes content to the scratch directory, and builds the attachment.
// declaredType is the Content-Type supplied with the upload, if any.
func (encoder *UploadEncoder) Encode(fileName string, declaredType string, content []byte) (model.UploadAttachment, error) {
	if !AllowedImageFile(fileName) {
		return model.UploadAttachment{}, ErrFileTypeNotAllowed
	}

	// An allowed extension always survives sanitizing, so storedName is never empty.
	storedName := SanitizeFilename(fileName)

	scratchPath := filepath.Join(encoder.scratchDir, storedName)
	if err := os.WriteFile(scratchPath, content, 0o644); err != nil {
		return model.UploadAttachment{}, fmt.Errorf("save upload %s: %w", scratchPath, err)
	}

	mimeType := ResolveMimeType(declaredType, storedName, content)
	encoder.logger.Debug("upload_encoded", "file_name", storedName, "mime_type", mimeType, "size_bytes", len(content))

	return model.UploadAttachment{
		FileName: storedName,
		MimeType: mimeType,
		DataURI:  "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(content),
	}, nil
}

// AllowedImageFile reports whether the extension after the last dot is an accepted image type.
func AllowedImageFile(fileName string) bool {
	extension := fileExtension(fileName)
	if extension == "" {
		return false
	}
	_, allowed := allowedImageExtensions[extension]
	return allowed
}

func fileExtension(fileName string) string {
	separatorIndex := strings.LastIndex(fileName, ".")
	if separatorIndex < 0 {
		return ""
	}
	return strings.ToLower(fileName[separatorIndex+1:])
}

// ResolveMimeType prefers the declared type, then the file extension, then content sniffing.
func ResolveMimeType(declaredType string, fileName string, content []byte) string {
	if mediaType := parseMediaType(declaredType); mediaType != "" {
		return mediaType
	}
	if byExtension := parseMediaType(mime.TypeByExtension(filepath.Ext(fileName))); byExtension != "" {
		return byExtension
	}
	if len(content) > 0 {
		detected := mimetype.Detect(content)
		if strings.HasPrefix(detected.String(), "image/") {
			return parseMediaType(detected.String())
		}
	}
	return defaultUploadContentType
}

func parseMediaType(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(trimmed)
	if err != nil {
		return ""
	}
	return mediaType
}

// SanitizeFilename reduces a client-supplied name to a safe ASCII file name.
// It returns an empty string when nothing usable remains.
func SanitizeFilename(fileName string) string {
	decomposed := norm.NFKD.String(fileName)

	var asciiBuilder strings.Builder
	for _, character := range decomposed {
		if character > unicode.MaxASCII {
			continue
		}
		if character == '/' || character == '\\' {
			asciiBuilder.WriteRune(' ')
			continue
		}
		asciiBuilder.WriteRune(character)
	}

	joined := strings.Join(strings.Fields(asciiBuilder.String()), "_")
	cleaned := unsafeFilenameCharacters.ReplaceAllString(joined, "")
	return strings.Trim(cleaned, "._")
}
