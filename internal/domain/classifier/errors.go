package classifier

import "errors"

// Classifier errors.
var (
	ErrInvalidArtifact = errors.New("invalid model artifact")
	ErrLoad            = errors.New("load model")
	ErrMalformedVector = errors.New("malformed feature vector")
	ErrAlreadyLoaded   = errors.New("model already loaded")
	ErrNotLoaded       = errors.New("model not loaded")
)
