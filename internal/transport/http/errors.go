package http

// ErrorResponse is the body of every failed API request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

const (
	msgInvalidBody   = "Invalid request body"
	msgInternal      = "Internal server error"
	msgNotRoomMember = "User is not a room member"
	msgMissingRoomID = "Missing required route param: roomId"
)
