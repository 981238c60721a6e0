package reconciler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/accord/internal/oracle"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeStore struct {
	mu       sync.Mutex
	session  *Session
	attempts map[uuid.UUID]*EmpathyAttempt
	results  map[uuid.UUID]*AnalysisRecord
	offers   []*ShareOffer
	witness  map[uuid.UUID][]string
	shared   map[uuid.UUID][]string
}

func newFakeStore(sess *Session) *fakeStore {
	return &fakeStore{
		session:  sess,
		attempts: make(map[uuid.UUID]*EmpathyAttempt),
		results:  make(map[uuid.UUID]*AnalysisRecord),
		witness:  make(map[uuid.UUID][]string),
		shared:   make(map[uuid.UUID][]string),
	}
}

func (f *fakeStore) GetSession(_ context.Context, sessionID uuid.UUID) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == nil || f.session.ID != sessionID {
		return nil, ErrSessionNotFound
	}
	cp := *f.session
	return &cp, nil
}

func (f *fakeStore) GetAttempt(_ context.Context, _, userID uuid.UUID) (*EmpathyAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attempts[userID]
	if !ok {
		return nil, ErrMissingAttempt
	}
	cp := *a
	return &cp, nil
}

func (f *fakeStore) SessionAttempts(_ context.Context, _ uuid.UUID) ([]EmpathyAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []EmpathyAttempt
	for _, id := range []uuid.UUID{f.session.PartnerA.ID, f.session.PartnerB.ID} {
		if a, ok := f.attempts[id]; ok {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertAttempt(_ context.Context, sessionID, userID uuid.UUID, content string) (*EmpathyAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attempts[userID]
	if !ok {
		now := time.Now().UTC()
		a = &EmpathyAttempt{
			ID:             uuid.New(),
			SessionID:      sessionID,
			SourceUserID:   userID,
			Content:        content,
			Status:         StatusAnalyzing,
			RevisionCount:  1,
			DeliveryStatus: DeliveryPending,
			SharedAt:       &now,
		}
		f.attempts[userID] = a
		cp := *a
		return &cp, nil
	}
	if a.Status == StatusRevealed || a.Status == StatusValidated {
		return nil, ErrAlreadyRevealed
	}
	a.Content = content
	a.Status = StatusAnalyzing
	a.RevisionCount++
	cp := *a
	return &cp, nil
}

func (f *fakeStore) UpdateAttemptStatus(_ context.Context, _, userID uuid.UUID, status Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attempts[userID]
	if !ok {
		return ErrMissingAttempt
	}
	a.Status = status
	return nil
}

func (f *fakeStore) RevealBoth(_ context.Context, _ uuid.UUID, at time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ready []*EmpathyAttempt
	for _, a := range f.attempts {
		if a.Status == StatusReady {
			ready = append(ready, a)
		}
	}
	if len(ready) != 2 {
		return 0, nil
	}
	for _, a := range ready {
		a.Status = StatusRevealed
		a.DeliveryStatus = DeliveryDelivered
		t := at
		a.RevealedAt = &t
		a.DeliveredAt = &t
	}
	return 2, nil
}

func (f *fakeStore) MarkValidated(_ context.Context, _, userID uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attempts[userID]
	if !ok {
		return ErrMissingAttempt
	}
	a.Status = StatusValidated
	t := at
	a.SeenAt = &t
	return nil
}

func (f *fakeStore) ReplaceResult(_ context.Context, rec *AnalysisRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *rec
	f.results[rec.GuesserID] = &cp
	return nil
}

func (f *fakeStore) GetResult(_ context.Context, _, guesserID uuid.UUID) (*AnalysisRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.results[guesserID]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeStore) CreateOffer(_ context.Context, offer *ShareOffer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.offers {
		if o.GuesserID == offer.GuesserID && !o.Status.Resolved() {
			o.Status = OfferSkipped
		}
	}
	cp := *offer
	f.offers = append(f.offers, &cp)
	return nil
}

func (f *fakeStore) OpenOfferFor(_ context.Context, _, userID uuid.UUID) (*ShareOffer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.offers) - 1; i >= 0; i-- {
		o := f.offers[i]
		if o.UserID == userID && !o.Status.Resolved() {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) MarkOfferOffered(_ context.Context, offerID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.offers {
		if o.ID == offerID && o.Status == OfferPending {
			o.Status = OfferOffered
		}
	}
	return nil
}

func (f *fakeStore) ResolveOffer(_ context.Context, offerID uuid.UUID, status OfferStatus, responseContent string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.offers {
		if o.ID == offerID {
			if o.Status.Resolved() {
				return ErrNoPendingOffer
			}
			o.Status = status
			o.ResponseContent = responseContent
			return nil
		}
	}
	return ErrNoPendingOffer
}

func (f *fakeStore) CloseOpenOffers(_ context.Context, _, guesserID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.offers {
		if o.GuesserID == guesserID && !o.Status.Resolved() {
			o.Status = OfferSkipped
		}
	}
	return nil
}

func (f *fakeStore) AddWitnessStatement(_ context.Context, _, userID uuid.UUID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.witness[userID] = append(f.witness[userID], content)
	return nil
}

func (f *fakeStore) WitnessContent(_ context.Context, _, userID uuid.UUID) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.witness[userID]...), nil
}

func (f *fakeStore) AddSharedContext(_ context.Context, _, userID uuid.UUID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shared[userID] = append(f.shared[userID], content)
	return nil
}

func (f *fakeStore) SharedContext(_ context.Context, _, userID uuid.UUID) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.shared[userID]...), nil
}

type fakeCounters struct {
	mu     sync.Mutex
	counts map[string]int
}

func newFakeCounters() *fakeCounters {
	return &fakeCounters{counts: make(map[string]int)}
}

func (c *fakeCounters) key(sessionID uuid.UUID, direction string) string {
	return sessionID.String() + ":" + direction
}

func (c *fakeCounters) Get(_ context.Context, sessionID uuid.UUID, direction string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[c.key(sessionID, direction)], nil
}

func (c *fakeCounters) Incr(_ context.Context, sessionID uuid.UUID, direction string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := c.key(sessionID, direction)
	c.counts[k]++
	return c.counts[k], nil
}

func (c *fakeCounters) set(sessionID uuid.UUID, direction string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[c.key(sessionID, direction)] = n
}

type fakeLocker struct {
	mu sync.Mutex
}

func (l *fakeLocker) WithLock(ctx context.Context, _ string, fn func(context.Context) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(ctx)
}

type sentEvent struct {
	kind    string // "partner" or "session"
	event   string
	payload map[string]any
	exclude uuid.UUID
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []sentEvent
}

func (n *fakeNotifier) NotifyPartner(_ context.Context, _ uuid.UUID, event string, payload map[string]any, excludeUserID uuid.UUID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, sentEvent{kind: "partner", event: event, payload: payload, exclude: excludeUserID})
	return nil
}

func (n *fakeNotifier) PublishSessionEvent(_ context.Context, _ uuid.UUID, event string, payload map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, sentEvent{kind: "session", event: event, payload: payload})
	return nil
}

func (n *fakeNotifier) byEvent(event string) []sentEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentEvent
	for _, e := range n.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

type fakeOracle struct {
	mu        sync.Mutex
	cmp       *oracle.Comparison
	err       error
	calls     int
	lastInput oracle.CompareInput
}

func (o *fakeOracle) Compare(_ context.Context, in oracle.CompareInput) (*oracle.Comparison, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	o.lastInput = in
	if o.err != nil {
		return nil, o.err
	}
	cp := *o.cmp
	return &cp, nil
}

func (o *fakeOracle) callCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

type testRig struct {
	engine   *Engine
	store    *fakeStore
	counters *fakeCounters
	notify   *fakeNotifier
	oracle   *fakeOracle
	session  *Session
	alex     uuid.UUID // partner A
	sam      uuid.UUID // partner B
}

func alignedComparison() *oracle.Comparison {
	return &oracle.Comparison{
		Alignment:      oracle.Alignment{Score: 85},
		Gaps:           oracle.GapAssessment{Severity: oracle.SeverityNone, Description: "captures what matters"},
		Recommendation: oracle.Recommendation{Action: oracle.ActionProceed},
		AreaHint:       "nothing major",
	}
}

func gappedComparison() *oracle.Comparison {
	return &oracle.Comparison{
		Alignment:           oracle.Alignment{Score: 35},
		Gaps:                oracle.GapAssessment{Severity: oracle.SeveritySignificant, Description: "misses the core hurt"},
		Recommendation:      oracle.Recommendation{Action: oracle.ActionOfferSharing},
		AreaHint:            "how long this has been building",
		GuidanceType:        "depth",
		PromptSeed:          "What might have been building up over time?",
		SuggestedShareFocus: "the weeks before the argument",
		SuggestedContent:    "This has been weighing on me since early spring.",
		SuggestedReason:     "It would help them see this is not about one evening.",
	}
}

func newTestRig() *testRig {
	alex := uuid.New()
	sam := uuid.New()
	sess := &Session{
		ID:       uuid.New(),
		PartnerA: Participant{ID: alex, DisplayName: "Alex"},
		PartnerB: Participant{ID: sam, DisplayName: "Sam"},
	}

	st := newFakeStore(sess)
	ct := newFakeCounters()
	nt := &fakeNotifier{}
	or := &fakeOracle{cmp: alignedComparison()}

	eng := NewEngine(st, or, ct, &fakeLocker{}, nt, DefaultBreakerThreshold, discardLogger())
	return &testRig{
		engine:   eng,
		store:    st,
		counters: ct,
		notify:   nt,
		oracle:   or,
		session:  sess,
		alex:     alex,
		sam:      sam,
	}
}

// seedDirection installs an attempt for the guesser and witness content for
// the subject so analysis preconditions hold.
func (r *testRig) seedDirection(guesserID, subjectID uuid.UUID, status Status) {
	r.store.attempts[guesserID] = &EmpathyAttempt{
		ID:             uuid.New(),
		SessionID:      r.session.ID,
		SourceUserID:   guesserID,
		Content:        "I think you felt dismissed",
		Status:         status,
		RevisionCount:  1,
		DeliveryStatus: DeliveryPending,
	}
	r.store.witness[subjectID] = append(r.store.witness[subjectID], "I felt invisible at dinner")
}
