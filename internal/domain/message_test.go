package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageEmpty(t *testing.T) {
	assert.True(t, (&Message{}).Empty())
	assert.False(t, (&Message{Text: "hi"}).Empty())
	assert.False(t, (&Message{Attachment: &Attachment{FileName: "a.pdf"}}).Empty())
	assert.False(t, (&Message{Text: "hi", Attachment: &Attachment{}}).Empty())
}

func TestMessageIsSystem(t *testing.T) {
	assert.True(t, (&Message{Sender: SenderSystem}).IsSystem())
	assert.False(t, (&Message{Sender: SenderAdmin}).IsSystem())
}

func TestAttachmentKind(t *testing.T) {
	tests := []struct {
		contentType string
		want        AttachmentKind
	}{
		{"image/png", AttachmentKindImage},
		{"image/jpeg", AttachmentKindImage},
		{"application/pdf", AttachmentKindPDF},
		{"video/mp4", AttachmentKindOther},
		{"", AttachmentKindOther},
	}
	for _, tt := range tests {
		a := &Attachment{ContentType: tt.contentType}
		assert.Equal(t, tt.want, a.Kind(), tt.contentType)
	}
}

func TestSenderRoleIsResponder(t *testing.T) {
	assert.True(t, SenderAdmin.IsResponder())
	assert.True(t, SenderTeacher.IsResponder())
	assert.True(t, SenderAssociate.IsResponder())
	assert.False(t, SenderRequester.IsResponder())
	assert.False(t, SenderSystem.IsResponder())
}

func TestTicketIsClosed(t *testing.T) {
	assert.True(t, (&Ticket{Status: TicketStatusClosed}).IsClosed())
	assert.False(t, (&Ticket{Status: TicketStatusOpen}).IsClosed())
}
