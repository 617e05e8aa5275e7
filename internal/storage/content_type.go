package storage

import (
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// DetectContentType determines the MIME type of a file.
//
// An explicit providedType wins. Otherwise the extension of filename is
// looked up, then up to 512 bytes of data are sniffed, and finally
// "application/octet-stream" is returned.
func DetectContentType(providedType, filename string, data io.Reader) string {
	if providedType != "" && providedType != "application/octet-stream" {
		return providedType
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if contentType := mime.TypeByExtension(ext); contentType != "" {
		return contentType
	}

	if data != nil {
		buffer := make([]byte, 512)
		n, err := io.ReadFull(data, buffer)
		if err == nil || err == io.EOF || err == io.ErrUnexpectedEOF {
			return http.DetectContentType(buffer[:n])
		}
	}

	return "application/octet-stream"
}

// AllowedAttachmentTypes are the MIME types an incident report accepts as
// attachments: PDF documents and JPEG/PNG photos.
var AllowedAttachmentTypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/jpg":       true,
	"image/png":       true,
}

func baseType(contentType string) string {
	t, _, _ := strings.Cut(contentType, ";")
	return strings.TrimSpace(strings.ToLower(t))
}

// IsAllowedAttachmentType reports whether contentType may be attached to a
// report.
func IsAllowedAttachmentType(contentType string) bool {
	return AllowedAttachmentTypes[baseType(contentType)]
}

// IsImage returns true if the content type is any image format.
func IsImage(contentType string) bool {
	return strings.HasPrefix(baseType(contentType), "image/")
}

// IsPDF returns true if the content type is a PDF document.
func IsPDF(contentType string) bool {
	return baseType(contentType) == "application/pdf"
}

// ExtensionForContentType returns a file extension for a MIME type, used
// when an upload arrives without a usable filename.
func ExtensionForContentType(contentType string) string {
	switch baseType(contentType) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "application/pdf":
		return ".pdf"
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
