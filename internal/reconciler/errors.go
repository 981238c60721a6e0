package reconciler

import "errors"

var (
	// ErrMissingAttempt means the guesser has not consented to share a
	// draft yet. Running analysis without one is an upstream sequencing
	// bug, so this propagates instead of being swallowed.
	ErrMissingAttempt = errors.New("no empathy attempt for direction")

	// ErrMissingWitnessContent means the subject has no ground-truth
	// statements to compare against.
	ErrMissingWitnessContent = errors.New("no witness content for subject")

	// ErrNoPendingOffer signals a client/state desync: a response arrived
	// for an offer that does not exist or is already resolved.
	ErrNoPendingOffer = errors.New("no pending share offer")

	ErrSessionNotFound = errors.New("session not found")
	ErrNotParticipant  = errors.New("user is not a session participant")
	ErrAlreadyRevealed = errors.New("attempt already revealed")
	ErrNotRevealed     = errors.New("attempt not yet revealed")
	ErrEmptyContent    = errors.New("empty content")
)
