package domain

import (
	"time"

	"github.com/google/uuid"
)

// Session is one user's working set: the image collection in drop order and
// the export settings. Sessions live only in process memory.
type Session struct {
	ID        uuid.UUID     `json:"id"`
	Images    []ImageRecord `json:"images"`
	Export    ExportConfig  `json:"export"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// NewSession creates an empty session with default export settings.
func NewSession(now time.Time) *Session {
	return &Session{
		ID:        uuid.New(),
		Images:    []ImageRecord{},
		Export:    DefaultExportConfig(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy so callers can mutate it without affecting
// readers of the original.
func (s *Session) Clone() *Session {
	c := *s
	c.Images = make([]ImageRecord, len(s.Images))
	for i, img := range s.Images {
		c.Images[i] = img.Clone()
	}
	return &c
}

// ImageIndex returns the position of an image in the collection.
func (s *Session) ImageIndex(id uuid.UUID) (int, bool) {
	for i, img := range s.Images {
		if img.ID == id {
			return i, true
		}
	}
	return -1, false
}

// Image returns a copy of the image with the given ID.
func (s *Session) Image(id uuid.UUID) (ImageRecord, bool) {
	i, ok := s.ImageIndex(id)
	if !ok {
		return ImageRecord{}, false
	}
	return s.Images[i].Clone(), true
}

// ReplaceImage swaps in a new version of an existing record.
func (s *Session) ReplaceImage(r ImageRecord) bool {
	i, ok := s.ImageIndex(r.ID)
	if !ok {
		return false
	}
	s.Images[i] = r
	return true
}
