package reconciler

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/accord/internal/oracle"
)

// Status is the visible state of one empathy attempt. HELD and SKIPPED are
// written by the upstream session flow (a draft the author has not consented
// to share yet, and a stage the couple skipped); they are carried here so
// status reporting and the reveal barrier account for them.
type Status string

const (
	StatusHeld            Status = "HELD"
	StatusAnalyzing       Status = "ANALYZING"
	StatusReady           Status = "READY"
	StatusAwaitingSharing Status = "AWAITING_SHARING"
	StatusNeedsWork       Status = "NEEDS_WORK"
	StatusRefining        Status = "REFINING"
	StatusRevealed        Status = "REVEALED"
	StatusValidated       Status = "VALIDATED"
	StatusSkipped         Status = "SKIPPED"
)

// Completed reports whether the direction has finished analysis, whether the
// oracle signed off or the circuit breaker forced it through.
func (s Status) Completed() bool {
	return s == StatusReady || s == StatusRevealed || s == StatusValidated
}

type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "PENDING"
	DeliveryDelivered DeliveryStatus = "DELIVERED"
)

// EmpathyAttempt is one partner's guess about the other's feelings. At most
// one non-superseded attempt exists per (session, sourceUser). Content is
// immutable once revealed; only status-level changes follow.
type EmpathyAttempt struct {
	ID             uuid.UUID
	SessionID      uuid.UUID
	SourceUserID   uuid.UUID
	Content        string
	Status         Status
	RevisionCount  int
	DeliveryStatus DeliveryStatus
	SharedAt       *time.Time
	RevealedAt     *time.Time
	DeliveredAt    *time.Time
	SeenAt         *time.Time
}

// AnalysisRecord is the current oracle verdict for one direction. It is
// replaced, not versioned, on resubmission.
type AnalysisRecord struct {
	ID                  uuid.UUID             `json:"id"`
	SessionID           uuid.UUID             `json:"sessionId"`
	GuesserID           uuid.UUID             `json:"guesserId"`
	SubjectID           uuid.UUID             `json:"subjectId"`
	Alignment           oracle.Alignment      `json:"alignment"`
	Gaps                oracle.GapAssessment  `json:"gaps"`
	Recommendation      oracle.Recommendation `json:"recommendation"`
	AreaHint            string                `json:"areaHint"`
	GuidanceType        string                `json:"guidanceType"`
	PromptSeed          string                `json:"promptSeed"`
	SuggestedShareFocus string                `json:"suggestedShareFocus"`
}

type OfferStatus string

const (
	OfferPending  OfferStatus = "PENDING"
	OfferOffered  OfferStatus = "OFFERED"
	OfferAccepted OfferStatus = "ACCEPTED"
	OfferDeclined OfferStatus = "DECLINED"
	OfferRefined  OfferStatus = "REFINED"
	OfferSkipped  OfferStatus = "SKIPPED"
)

// Resolved reports whether the offer reached a terminal state.
func (s OfferStatus) Resolved() bool {
	return s == OfferAccepted || s == OfferDeclined || s == OfferRefined || s == OfferSkipped
}

// ShareOffer invites the subject of a direction to disclose extra context to
// a struggling guesser. Only the subject may respond; terminal once resolved.
type ShareOffer struct {
	ID               uuid.UUID   `json:"id"`
	SessionID        uuid.UUID   `json:"sessionId"`
	UserID           uuid.UUID   `json:"userId"`
	GuesserID        uuid.UUID   `json:"guesserId"`
	ResultID         uuid.UUID   `json:"resultId"`
	Status           OfferStatus `json:"status"`
	SuggestedContent string      `json:"suggestedContent"`
	SuggestedReason  string      `json:"suggestedReason"`
	ResponseContent  string      `json:"responseContent,omitempty"`
}

type ShareAction string

const (
	ShareAccept  ShareAction = "accept"
	ShareDecline ShareAction = "decline"
	ShareRefine  ShareAction = "refine"
	ShareSkip    ShareAction = "skip"
)

// ShareResponse is the outcome of the subject responding to a share offer.
type ShareResponse struct {
	Status        OfferStatus `json:"status"`
	SharedContent string      `json:"sharedContent,omitempty"`
}

type Participant struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"displayName"`
}

// Session is a two-participant conflict-resolution session.
type Session struct {
	ID       uuid.UUID   `json:"id"`
	PartnerA Participant `json:"partnerA"`
	PartnerB Participant `json:"partnerB"`
}

func (s *Session) NameOf(userID uuid.UUID) string {
	switch userID {
	case s.PartnerA.ID:
		return s.PartnerA.DisplayName
	case s.PartnerB.ID:
		return s.PartnerB.DisplayName
	}
	return ""
}

// PartnerOf returns the other participant of the session.
func (s *Session) PartnerOf(userID uuid.UUID) (Participant, bool) {
	switch userID {
	case s.PartnerA.ID:
		return s.PartnerB, true
	case s.PartnerB.ID:
		return s.PartnerA, true
	}
	return Participant{}, false
}

// DirectionOutcome is the result of one reconciler run for one direction.
// Result is nil when the circuit breaker forced completion.
type DirectionOutcome struct {
	Result            *AnalysisRecord `json:"result"`
	EmpathyStatus     Status          `json:"empathyStatus"`
	ShareOffer        *ShareOffer     `json:"shareOffer"`
	TransitionMessage string          `json:"transitionMessage,omitempty"`
}

// DirectionKey identifies one half of the exchange for counter keys.
func DirectionKey(guesserID, subjectID uuid.UUID) string {
	return fmt.Sprintf("%s->%s", guesserID, subjectID)
}

// Realtime event names consumed by the mobile clients.
const (
	EventEmpathyRevealed      = "empathy.revealed"
	EventEmpathyRefining      = "empathy.refining"
	EventContextShared        = "empathy.context_shared"
	EventPartnerEmpathyShared = "partner.empathy_shared"
	EventShareSuggested       = "empathy.share_suggested"
	EventAnalysisComplete     = "empathy.analysis_complete"
	EventWitnessRecorded      = "witness.recorded"
)
