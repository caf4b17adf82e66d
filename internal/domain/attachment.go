package domain

import "strings"

// AttachmentKind categorizes an attachment for viewer selection.
type AttachmentKind string

const (
	AttachmentKindImage AttachmentKind = "IMAGE"
	AttachmentKindPDF   AttachmentKind = "PDF"
	AttachmentKindOther AttachmentKind = "OTHER"
)

// Attachment references uploaded bytes associated with exactly one message.
// Created once per upload, immutable, no independent lifecycle.
type Attachment struct {
	URL         string
	StorageKey  string
	FileName    string
	ContentType string
	SizeBytes   int64
}

// Kind derives the viewer category from the content type.
func (a *Attachment) Kind() AttachmentKind {
	switch {
	case strings.HasPrefix(a.ContentType, "image/"):
		return AttachmentKindImage
	case a.ContentType == "application/pdf":
		return AttachmentKindPDF
	}
	return AttachmentKindOther
}
