package derror

import "errors"

var (
	ErrSessionBusy       = errors.New("a request is already in flight for this session")
	ErrSessionLoading    = errors.New("a load is already in flight for this session")
	ErrEmptyConversation = errors.New("conversation has no messages to save")
	ErrStaleResponse     = errors.New("response arrived for a superseded session")
)
