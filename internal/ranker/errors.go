package ranker

import (
	"errors"
	"fmt"
)

var (
	// ErrClaimConflict reports that another worker holds a live claim, or the
	// channel is already done for the stage.
	ErrClaimConflict = errors.New("channel already claimed")
	// ErrClaimLost reports that the caller's claim was superseded after going stale.
	ErrClaimLost = errors.New("claim no longer owned by worker")
	// ErrDataIntegrity reports a write that would break a cross-stage reference,
	// such as an analysis row for a channel without a raw profile.
	ErrDataIntegrity = errors.New("data integrity violation")
)

// ExtractError is a typed enrichment failure.
type ExtractError struct {
	ChannelURL string
	Permanent  bool
	Err        error
}

func (e *ExtractError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("extract %s (%s): %v", e.ChannelURL, kind, e.Err)
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}

// IsPermanent reports whether err carries a permanent ExtractError.
func IsPermanent(err error) bool {
	var extractErr *ExtractError
	if errors.As(err, &extractErr) {
		return extractErr.Permanent
	}
	return false
}
