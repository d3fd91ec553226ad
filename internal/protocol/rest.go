package protocol

// REST payloads exchanged with the room server

// CreateRoomResponse is returned by POST /rooms
type CreateRoomResponse struct {
	RoomID string `json:"roomId"`
}

// SuggestionRequest is the body of POST /autocomplete
type SuggestionRequest struct {
	Code           string `json:"code"`
	CursorPosition int    `json:"cursorPosition"`
	Language       string `json:"language"`
}

// SuggestionResponse is returned by POST /autocomplete
type SuggestionResponse struct {
	Suggestion string `json:"suggestion"`
	Detail     string `json:"detail,omitempty"`
}
