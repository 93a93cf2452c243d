package collab

import (
	"fmt"
	"strings"

	models "collabedit/internal/domain/models/collab"
)

// notBlank rejects strings that are empty after trimming
func notBlank(value interface{}) error {
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("must be a string")
	}
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("cannot be blank")
	}
	return nil
}

func validateRole(value interface{}) error {
	role, ok := value.(models.Role)
	if !ok {
		return fmt.Errorf("must be a role")
	}
	if !role.Valid() {
		return fmt.Errorf("must be one of OWNER, EDITOR, VIEWER")
	}
	return nil
}

func validateFileType(value interface{}) error {
	t, ok := value.(models.FileType)
	if !ok {
		return fmt.Errorf("must be a file type")
	}
	if t != "" && !t.Valid() {
		return fmt.Errorf("must be one of PYTHON, JAVA, JAVASCRIPT, OTHER")
	}
	return nil
}

// validateFileName rejects names that would be ambiguous on disk or in a path
func validateFileName(value interface{}) error {
	name, ok := value.(string)
	if !ok {
		return fmt.Errorf("must be a string")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("cannot be blank")
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("cannot contain path separators")
	}
	return nil
}
