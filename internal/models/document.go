// Package models defines core data structures for documents, annotations, and viewing sessions.
package models

import "time"

// Document is the metadata record of an uploaded PDF.
// The stored bytes live in blob storage under StoragePath.
type Document struct {
	ID            string        `json:"id" db:"id"`
	Owner         string        `json:"-" db:"owner"`
	OriginalName  string        `json:"originalName" db:"original_name"`
	StoragePath   string        `json:"storagePath" db:"storage_path"`
	PublicURL     string        `json:"publicUrl" db:"public_url"`
	UploadedAt    time.Time     `json:"uploadedAt" db:"uploaded_at"`
	AnnotationMap AnnotationMap `json:"annotationMap" db:"annotations"`
}

// ExportBundle is the downloadable JSON artifact of a document's annotations.
type ExportBundle struct {
	PdfName     string        `json:"pdfName"`
	ExportedAt  time.Time     `json:"exportedAt"`
	Annotations AnnotationMap `json:"annotations"`
}
