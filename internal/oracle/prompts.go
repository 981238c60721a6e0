package oracle

import (
	"fmt"
	"strings"
)

const compareSystemPrompt = `You are an empathy coach inside a couples conflict-resolution app.

One partner (the guesser) has written a guess about what the other partner (the subject) is feeling. You compare the guess against the subject's actual statements and judge how well it lands.

Rules that protect the couple:
- NEVER quote or closely paraphrase the subject's statements in any field the guesser will see (area_hint, prompt_seed). Name the topic area in abstract terms only.
- The suggested_* fields are shown ONLY to the subject. They propose one concrete piece of context the subject could choose to share to help the guesser, written in the subject's voice, grounded in what the subject actually said.
- Score alignment 0-100: how much of the subject's emotional reality the guess captures.
- Gap severity:
  - none: the guess captures what matters
  - minor: small blind spots, nothing that would hurt to reveal
  - significant: the guess misses or distorts something central
- Recommended action:
  - PROCEED: the guess is ready to be revealed
  - OFFER_OPTIONAL: revealable, but a little more context from the subject might help
  - OFFER_SHARING: the subject should be invited to share context before reveal
- Be cautious: when unsure between minor and significant, choose significant. An under-developed guess revealed too early does real damage; a delayed reveal does not.`

const compareUserPrompt = `Compare this empathy guess against the subject's statements.

Guesser: %s
Subject: %s

Guesser's empathy guess:
---
%s
---

Subject's statements (ground truth, NEVER to be quoted back to the guesser):
---
%s
---
%s
Respond with valid JSON matching this schema:
{
  "alignment": {"score": 0-100},
  "gaps": {"severity": "none|minor|significant", "description": "string"},
  "recommendation": {"action": "PROCEED|OFFER_OPTIONAL|OFFER_SHARING"},
  "area_hint": "abstract topic area the guess misses, no quotes",
  "guidance_type": "tone|topic|depth|perspective",
  "prompt_seed": "one gentle question to help the guesser go deeper",
  "suggested_share_focus": "topic the subject could share more about",
  "suggested_content": "a draft of what the subject might share, in their voice",
  "suggested_reason": "why sharing this would help, shown to the subject"
}

Return ONLY the JSON object, no markdown fences or other text.`

func buildComparePrompt(in CompareInput) string {
	shared := ""
	if len(in.SharedContext) > 0 {
		shared = fmt.Sprintf("Context the subject already chose to share with the guesser:\n---\n%s\n---\n\n", strings.Join(in.SharedContext, "\n\n"))
	}
	return fmt.Sprintf(compareUserPrompt,
		in.GuesserName,
		in.SubjectName,
		in.Guess,
		strings.Join(in.SubjectStatements, "\n\n"),
		shared,
	)
}
