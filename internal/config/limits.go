package config

const (
	// MaxProjectNameLength is the maximum length for project names.
	// Limited to 255 to fit in PostgreSQL VARCHAR(255).
	MaxProjectNameLength = 255

	// MaxFileNameLength is the maximum length for file names.
	MaxFileNameLength = 255

	// MaxFileContentBytes caps a single file's contents, for both REST
	// creates and live edits.
	MaxFileContentBytes = 1 << 20

	// MaxCollaborators is the maximum number of collaborators per project,
	// the creator included.
	MaxCollaborators = 50

	// MaxUsernameLength is the maximum length for usernames
	MaxUsernameLength = 64
)
