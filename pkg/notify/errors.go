package notify

import "errors"

// ErrValidation marks malformed or missing required input. Checked before
// any state mutation; callers must fix the request, no retry.
var ErrValidation = errors.New("validation failed")

// ErrNotFound marks a lookup miss that the route layer maps to a 404.
var ErrNotFound = errors.New("not found")
