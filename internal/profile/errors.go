package profile

import "errors"

// Per-URL failure classes. None of them aborts a batch.
var (
	// ErrSourceUnavailable covers search failures and pages neither fetch tier could load.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrExtractionMalformed means the extractor answered with something that is not a JSON object.
	ErrExtractionMalformed = errors.New("extraction output malformed")
	// ErrNoMatch means the extracted name did not pass the similarity threshold.
	ErrNoMatch = errors.New("extracted name does not match")
)
