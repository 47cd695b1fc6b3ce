package session

// loadFailureError wraps an engine failure; the previous session, if
// any, is retained untouched.
type loadFailureError struct {
	path string
	err  error
}

func (e *loadFailureError) Error() string { return "load failed for " + e.path + ": " + e.err.Error() }
func (e *loadFailureError) Unwrap() error { return e.err }

// ErrLoadFailure wraps an engine error for a given model path.
func ErrLoadFailure(path string, err error) error { return &loadFailureError{path: path, err: err} }

// IsLoadFailure reports whether err is a failed engine load.
func IsLoadFailure(err error) bool {
	_, ok := err.(*loadFailureError)
	return ok
}

// lastModelMissingError means the persisted last-used pointer refers to
// a model that is no longer in the registry.
type lastModelMissingError struct{ path string }

func (e *lastModelMissingError) Error() string {
	if e.path == "" {
		return "no last-used model recorded"
	}
	return "last-used model no longer available: " + e.path
}

// ErrLastModelMissing reports a dangling or absent last-used pointer.
// An empty path means no pointer was ever recorded.
func ErrLastModelMissing(path string) error { return &lastModelMissingError{path: path} }

// IsLastModelMissing reports whether err indicates a dangling or absent
// last-used pointer.
func IsLastModelMissing(err error) bool {
	_, ok := err.(*lastModelMissingError)
	return ok
}

// notLoadedError is returned by operations that require an active model.
type notLoadedError struct{}

func (notLoadedError) Error() string { return "no model loaded" }

// ErrNotLoaded is returned when an operation needs an active model.
func ErrNotLoaded() error { return notLoadedError{} }

// IsNotLoaded reports whether err means no model is currently active.
func IsNotLoaded(err error) bool {
	_, ok := err.(notLoadedError)
	return ok
}
