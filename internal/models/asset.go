package models

import "time"

// Asset is a stored image produced by the upload pipeline.
// Assets are never mutated or deleted once written.
type Asset struct {
	Name       string    `json:"name"`
	URL        string    `json:"url"`
	Size       int64     `json:"size"`
	UploaderID string    `json:"uploader_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
