package dto

import (
	"sort"

	"github.com/spec-kit/conversation-service/internal/session"
)

// SessionState is the wire form of one view-model snapshot.
type SessionState struct {
	Groups         []TicketGroup     `json:"groups"`
	SelectedGroup  string            `json:"selected_group"`
	SelectedTicket *TicketSummary    `json:"selected_ticket,omitempty"`
	Messages       []MessageResponse `json:"messages"`
	StatusFilter   string            `json:"status_filter"`
	DraftText      string            `json:"draft_text"`
	StagedFileName string            `json:"staged_file_name"`
	UploadProgress float64           `json:"upload_progress"`
	Sending        bool              `json:"sending"`
	Notice         string            `json:"notice,omitempty"`
	DirectoryDown  bool              `json:"directory_down,omitempty"`
	LogDown        bool              `json:"log_down,omitempty"`
}

// FromViewState maps a session snapshot, ordering groups by key for a
// stable render.
func FromViewState(state session.ViewState) SessionState {
	out := SessionState{
		SelectedGroup:  state.SelectedGroup,
		StatusFilter:   string(state.StatusFilter),
		DraftText:      state.DraftText,
		StagedFileName: state.StagedFileName,
		UploadProgress: state.UploadProgress,
		Sending:        state.Sending,
		Notice:         state.Notice,
		DirectoryDown:  state.DirectoryDown,
		LogDown:        state.LogDown,
	}

	keys := make([]string, 0, len(state.Groups))
	for key := range state.Groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		tickets := state.Groups[key]
		group := TicketGroup{GroupKey: key, Tickets: make([]TicketSummary, 0, len(tickets))}
		for i := range tickets {
			group.Tickets = append(group.Tickets, FromTicket(&tickets[i]))
		}
		out.Groups = append(out.Groups, group)
	}

	if state.SelectedTicket != nil {
		summary := FromTicket(state.SelectedTicket)
		out.SelectedTicket = &summary
	}
	out.Messages = make([]MessageResponse, 0, len(state.Messages))
	for i := range state.Messages {
		out.Messages = append(out.Messages, FromMessage(&state.Messages[i]))
	}
	return out
}
