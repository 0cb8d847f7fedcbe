package api

import "github.com/satriahrh/lexvoice/domain/entities"

// TranscribeResponse is returned by the first phase of the REST flow
type TranscribeResponse struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

// ProcessQueryRequest is the second phase of the REST flow
type ProcessQueryRequest struct {
	Transcript string `json:"transcript"`
	UserID     string `json:"userId"`
}

// QueryResponse carries the reply of a turn. AudioURL is null when
// synthesis failed.
type QueryResponse struct {
	ConversationID string  `json:"conversationId"`
	Response       string  `json:"response"`
	AudioURL       *string `json:"audioUrl"`
}

// VoiceQueryResponse also returns the transcript, which is empty on silence
type VoiceQueryResponse struct {
	ConversationID string  `json:"conversationId"`
	Transcript     string  `json:"transcript"`
	Response       string  `json:"response"`
	AudioURL       *string `json:"audioUrl"`
}

// ArchiveResponse is returned after archiving a conversation
type ArchiveResponse struct {
	Message      string                 `json:"message"`
	Conversation *entities.Conversation `json:"conversation"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
