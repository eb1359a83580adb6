package session

import "errors"

// ErrNoSession reports an operation against a tenant with no uploaded
// dataset.
var ErrNoSession = errors.New("no dataset session is active")
