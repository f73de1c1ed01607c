package domain

import "time"

// Artifact is a rendered export file.
type Artifact struct {
	ID          string
	FileName    string
	ContentType string
	Content     []byte
	CreatedAt   time.Time
}
