package service

type ErrRunQueueFull struct{}

func (e ErrRunQueueFull) Error() string {
	return "run queue is full"
}

func NewErrRunQueueFull() *ErrRunQueueFull {
	return &ErrRunQueueFull{}
}

type RunCancelError struct {
	Message string
}

func (rce RunCancelError) Error() string {
	return rce.Message
}

// ErrSecretNotFound is returned by the credential broker when a
// pipeline script references a credential name that does not exist.
type ErrSecretNotFound struct {
	ID string
}

func (e ErrSecretNotFound) Error() string {
	return "secret '" + e.ID + "' not found"
}
