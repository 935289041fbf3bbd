package accounts

import "github.com/cockroachdb/errors"

// ErrInvalidUsername is returned for offline usernames that are empty after
// trimming, too long or contain control characters.
var ErrInvalidUsername = errors.New("invalid username")
