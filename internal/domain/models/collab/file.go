package collab

import (
	"path/filepath"
	"strings"
	"time"
)

type FileType string

const (
	FileTypePython     FileType = "PYTHON"
	FileTypeJava       FileType = "JAVA"
	FileTypeJavaScript FileType = "JAVASCRIPT"
	FileTypeOther      FileType = "OTHER"
)

var extensionTypes = map[string]FileType{
	".py":   FileTypePython,
	".java": FileTypeJava,
	".js":   FileTypeJavaScript,
	".mjs":  FileTypeJavaScript,
	".cjs":  FileTypeJavaScript,
}

// Valid reports whether t is a known file type
func (t FileType) Valid() bool {
	switch t {
	case FileTypePython, FileTypeJava, FileTypeJavaScript, FileTypeOther:
		return true
	}
	return false
}

// FileTypeFromName derives the file type from the name's extension
func FileTypeFromName(name string) FileType {
	if t, ok := extensionTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return t
	}
	return FileTypeOther
}

type File struct {
	ID         string    `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	Type       FileType  `json:"file_type" db:"file_type"`
	Contents   string    `json:"contents" db:"contents"`
	CommentIDs []string  `json:"comments" db:"comment_ids"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}
