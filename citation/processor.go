// Package citation implements spec §4.5: given a synthesized Draft and the
// session's SourceTable, insert numeric citation anchors against
// substantive claims without altering the surrounding prose. The identity
// invariant — stripping inserted anchors reproduces the Draft byte-for-byte
// — is enforced mechanically, never trusted to the model.
package citation

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/brightfield-labs/deepresearch/events"
	"github.com/brightfield-labs/deepresearch/model"
	"github.com/brightfield-labs/deepresearch/session"
	"github.com/brightfield-labs/deepresearch/sourcetable"
)

// anchorPattern matches an inserted citation anchor: a sentinel that cannot
// collide with ordinary prose, e.g. "⟦3⟧" for source index 3.
var anchorPattern = regexp.MustCompile(`⟦\d+(?:,\d+)*⟧`)

const systemPrompt = `You insert citation anchors into a research report.
Copy the report text EXACTLY, character for character, and insert anchors of the form ⟦N⟧ (or ⟦N,M⟧ for multiple sources) immediately after substantive factual claims: numbers, named entities, dated events, quoted statements.
Do not cite background or transitional prose. At most one anchor per source per sentence.
Do not change, add, or remove any other character of the input text. Output only the annotated report.`

// Style selects how the trailing bibliography is rendered. It never affects
// the inline ⟦N⟧ anchor sentinel, which the identity invariant is checked
// against regardless of style.
type Style string

const (
	StyleNumeric  Style = "numeric"
	StyleFootnote Style = "footnote"
)

// Processor turns a Draft into a CitedOutput.
type Processor struct {
	Model   model.Client
	ModelID string
	Bus     *events.Bus

	// Style controls the bibliography format. Empty defaults to numeric.
	Style Style
}

// Process runs the citation pass for one session, retrying once with a
// stricter prompt on an identity-invariant violation before degrading to an
// uncited Draft plus a mechanical References section.
func (p *Processor) Process(ctx context.Context, sess *session.Session, draft session.Draft, sources *sourcetable.Table) session.CitedOutput {
	sourceSummary := summarizeSources(sources)

	for attempt := 0; attempt < 2; attempt++ {
		prompt := systemPrompt
		if attempt == 1 {
			prompt += "\nYour previous attempt altered the prose outside the anchors. Be exact this time: copy every character verbatim and only insert ⟦N⟧ tokens."
		}
		resp, err := p.Model.Complete(ctx, model.Request{
			Model: p.ModelID,
			Messages: []model.Message{
				{Role: model.RoleSystem, Parts: []model.Part{model.TextPart{Text: prompt}}},
				{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: fmt.Sprintf(
					"Sources (index: title — url):\n%s\n\nReport:\n%s", sourceSummary, draft.Text,
				)}}},
			},
		})
		if err != nil {
			continue
		}

		candidate := resp.Text
		if !preservesIdentity(candidate, draft.Text) {
			continue
		}

		out := session.CitedOutput{
			Text:          candidate + "\n\n" + p.referencesSection(sources),
			CitationCount: countAnchoredSources(candidate),
		}
		p.Bus.Publish(events.NewCitationComplete(sess.ID, out.CitationCount))
		return out
	}

	p.Bus.Publish(events.NewCitationDegraded(sess.ID, "identity invariant failed twice"))
	out := session.CitedOutput{
		Text:     draft.Text + "\n\n" + p.referencesSection(sources),
		Degraded: true,
	}
	p.Bus.Publish(events.NewCitationComplete(sess.ID, 0))
	return out
}

// preservesIdentity reports whether candidate, with every anchor span
// removed, is byte-for-byte identical to draft. This is the mechanical
// enforcement the processor never delegates to the model.
func preservesIdentity(candidate, draft string) bool {
	stripped := anchorPattern.ReplaceAllString(candidate, "")
	return stripped == draft
}

// countAnchoredSources returns the number of distinct source indices
// referenced by any anchor in text.
func countAnchoredSources(text string) int {
	seen := map[string]struct{}{}
	for _, m := range anchorPattern.FindAllString(text, -1) {
		inner := strings.Trim(m, "⟦⟧")
		for _, idx := range strings.Split(inner, ",") {
			seen[idx] = struct{}{}
		}
	}
	return len(seen)
}

func summarizeSources(sources *sourcetable.Table) string {
	var b strings.Builder
	for _, s := range sources.Ordered() {
		fmt.Fprintf(&b, "%d: %s — %s\n", s.Index, s.Title, s.URL)
	}
	return b.String()
}

// referencesSection mechanically generates the trailing bibliography from
// the SourceTable, independent of the model's output. Numeric style lists
// "N. title — url"; footnote style emits Markdown footnote definitions
// ("[^N]: title — url") matching the ⟦N⟧ anchors the reader follows inline.
func (p *Processor) referencesSection(sources *sourcetable.Table) string {
	var b strings.Builder
	if p.Style == StyleFootnote {
		b.WriteString("## Notes\n")
		for _, s := range sources.Ordered() {
			title := s.Title
			if title == "" {
				title = s.URL
			}
			fmt.Fprintf(&b, "[^%d]: %s — %s\n", s.Index, title, s.URL)
		}
		return b.String()
	}

	b.WriteString("## References\n")
	for _, s := range sources.Ordered() {
		title := s.Title
		if title == "" {
			title = s.URL
		}
		fmt.Fprintf(&b, "%d. %s — %s\n", s.Index, title, s.URL)
	}
	return b.String()
}
