package media

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// Kind selects the attachment folder.
type Kind string

const (
	KindImage Kind = "image"
	KindVoice Kind = "voice"
)

const uploadsRoot = "uploads"

func (k Kind) folder() string {
	if k == KindVoice {
		return "voices"
	}
	return "images"
}

func (k Kind) prefix() string {
	if k == KindVoice {
		return "voice"
	}
	return "img"
}

func (k Kind) defaultExt() string {
	if k == KindVoice {
		return ".webm"
	}
	return ".jpg"
}

// PatientFolder is the per-patient directory under uploads/patients.
func PatientFolder(nationalID string) string {
	return "patient_" + nationalID
}

// ResolvePath maps a stored media reference to its canonical uploads path.
// Paths already rooted at uploads/ are returned cleaned. A bare filename goes
// to the patient's folder, or to the flat legacy folder when the record has
// no national ID. Empty input yields an empty string.
func ResolvePath(stored, nationalID string, kind Kind) string {
	p := strings.TrimSpace(strings.ReplaceAll(stored, "\\", "/"))
	p = strings.TrimLeft(p, "/")
	if p == "" {
		return ""
	}
	if strings.HasPrefix(p, uploadsRoot+"/") {
		return path.Clean(p)
	}
	if strings.HasPrefix(p, "patients/") {
		return path.Clean(uploadsRoot + "/" + p)
	}
	name := path.Base(p)
	if name == "." || name == ".." {
		return ""
	}
	if nationalID == "" {
		return path.Join(uploadsRoot, kind.folder(), name)
	}
	return path.Join(uploadsRoot, "patients", PatientFolder(nationalID), kind.folder(), name)
}

// ObjectKey builds the storage key for a freshly uploaded attachment. seq
// numbers attachments of the same kind within one upload; the first keeps the
// plain timestamp name and later ones get a _<seq> suffix so none overwrite.
func ObjectKey(nationalID string, kind Kind, at time.Time, originalName string, seq int) string {
	ext := strings.ToLower(path.Ext(originalName))
	if ext == "" {
		ext = kind.defaultExt()
	}
	name := fmt.Sprintf("%s_%s", kind.prefix(), at.UTC().Format("20060102150405"))
	if seq > 1 {
		name = fmt.Sprintf("%s_%d", name, seq)
	}
	return path.Join(uploadsRoot, "patients", PatientFolder(nationalID), kind.folder(), name+ext)
}

// ValidKey reports whether key is a canonical uploads path that may be served.
func ValidKey(key string) bool {
	if key == "" || strings.Contains(key, "..") {
		return false
	}
	if path.Clean(key) != key || !strings.HasPrefix(key, uploadsRoot+"/") {
		return false
	}
	return strings.Contains(key, "/images/") || strings.Contains(key, "/voices/")
}
