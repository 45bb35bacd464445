package response

// Error is the extras payload of a failed request.
type Error struct {
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
	Game    any    `json:"game,omitempty"`
}

func (e Error) Error() string {
	return e.Message
}

// NewError builds an error payload. reason and game are optional.
func NewError(message, reason string, game any) Error {
	return Error{
		Message: message,
		Reason:  reason,
		Game:    game,
	}
}
