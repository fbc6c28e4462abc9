package session

import "errors"

// ErrNothingPlaying is returned by controls that need a current track
var ErrNothingPlaying = errors.New("nothing is playing")
