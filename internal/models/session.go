package models

import "github.com/golang/geo/r2"

// Session is the transient state of one open/close cycle of one document.
// It is never persisted.
type Session struct {
	Identity  string
	Document  *Document
	Page      int
	NumPages  int
	Zoom      float64
	Tool      Kind
	DragStart r2.Point
}

// DocumentID returns the open document's id, or "" when nothing is open.
func (s *Session) DocumentID() string {
	if s.Document == nil {
		return ""
	}
	return s.Document.ID
}

// SessionView is the read model of a session sent to clients.
type SessionView struct {
	DocumentID string  `json:"documentId,omitempty"`
	Page       int     `json:"page"`
	NumPages   int     `json:"numPages"`
	Zoom       float64 `json:"zoom"`
	Tool       Kind    `json:"tool"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Drawing    bool    `json:"drawing"`
}
