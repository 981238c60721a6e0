package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/accord/internal/anthropic"
)

// ErrUnavailable marks a comparison that could not run because the model
// timed out or the transport failed. Callers must treat this as retryable,
// never as a gap classification.
var ErrUnavailable = errors.New("oracle unavailable")

type Severity string

const (
	SeverityNone        Severity = "none"
	SeverityMinor       Severity = "minor"
	SeveritySignificant Severity = "significant"
)

type Action string

const (
	ActionProceed       Action = "PROCEED"
	ActionOfferOptional Action = "OFFER_OPTIONAL"
	ActionOfferSharing  Action = "OFFER_SHARING"
)

type Alignment struct {
	Score int `json:"score"`
}

type GapAssessment struct {
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
}

type Recommendation struct {
	Action Action `json:"action"`
}

// Comparison is the structured verdict on one empathy guess. AreaHint and
// PromptSeed coach the guesser without quoting the subject's actual words;
// the suggested_* fields seed a share offer when a significant gap is found.
type Comparison struct {
	Alignment           Alignment      `json:"alignment"`
	Gaps                GapAssessment  `json:"gaps"`
	Recommendation      Recommendation `json:"recommendation"`
	AreaHint            string         `json:"area_hint"`
	GuidanceType        string         `json:"guidance_type"`
	PromptSeed          string         `json:"prompt_seed"`
	SuggestedShareFocus string         `json:"suggested_share_focus"`
	SuggestedContent    string         `json:"suggested_content"`
	SuggestedReason     string         `json:"suggested_reason"`
}

// CompareInput carries one direction's texts: the guesser's empathy guess and
// the subject's ground-truth statements, plus any context the subject later
// chose to share.
type CompareInput struct {
	Guess             string
	SubjectStatements []string
	SharedContext     []string
	GuesserName       string
	SubjectName       string
}

type Oracle struct {
	llm     *anthropic.Client
	timeout time.Duration
	logger  *slog.Logger
}

func New(llm *anthropic.Client, timeout time.Duration, logger *slog.Logger) *Oracle {
	return &Oracle{llm: llm, timeout: timeout, logger: logger}
}

// Compare asks the model how well the guess matches the subject's statements.
func (o *Oracle) Compare(ctx context.Context, in CompareInput) (*Comparison, error) {
	if strings.TrimSpace(in.Guess) == "" {
		return nil, fmt.Errorf("empty guess")
	}
	if len(in.SubjectStatements) == 0 {
		return nil, fmt.Errorf("no subject statements")
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	prompt := buildComparePrompt(in)
	messages := []anthropic.Message{
		{Role: "user", Content: prompt},
	}

	o.logger.Info("comparing empathy guess",
		"guesser", in.GuesserName,
		"subject", in.SubjectName,
		"guess_len", len(in.Guess),
		"statements", len(in.SubjectStatements),
		"shared_context", len(in.SharedContext),
	)

	raw, err := o.llm.Complete(ctx, compareSystemPrompt, messages, 2048)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var cmp Comparison
	if err := json.Unmarshal([]byte(extractJSON(raw)), &cmp); err != nil {
		o.logger.Error("failed to parse comparison response",
			"error", err,
			"raw", raw,
		)
		return nil, fmt.Errorf("parse comparison: %w", err)
	}
	normalize(&cmp)

	o.logger.Info("comparison complete",
		"score", cmp.Alignment.Score,
		"severity", cmp.Gaps.Severity,
		"action", cmp.Recommendation.Action,
	)

	return &cmp, nil
}

// extractJSON pulls a JSON object out of possibly-fenced model output.
// Models sometimes wrap the payload in ```json fences despite instructions.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

func normalize(cmp *Comparison) {
	cmp.Gaps.Severity = Severity(strings.ToLower(string(cmp.Gaps.Severity)))
	switch cmp.Gaps.Severity {
	case SeverityNone, SeverityMinor, SeveritySignificant:
	default:
		cmp.Gaps.Severity = SeverityMinor
	}

	cmp.Recommendation.Action = Action(strings.ToUpper(string(cmp.Recommendation.Action)))
	switch cmp.Recommendation.Action {
	case ActionProceed, ActionOfferOptional, ActionOfferSharing:
	default:
		cmp.Recommendation.Action = ActionProceed
	}

	if cmp.Alignment.Score < 0 {
		cmp.Alignment.Score = 0
	}
	if cmp.Alignment.Score > 100 {
		cmp.Alignment.Score = 100
	}
}
