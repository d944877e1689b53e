// Package render turns a validated structured result into the final
// markdown report. Rendering is a pure function: same result, pack and
// template in, same text out. Template ids switch presentational
// details only; the section order never changes.
package render

import (
	"fmt"
	"strings"

	"github.com/DanielWarg/fortknox/core/schema/v1/knox"
)

const (
	maxObservations  = 7
	maxOpenQuestions = 7
	maxIncludedItems = 10
	maxNextSteps     = 7
)

// style is the set of presentational choices a template id selects.
type style struct {
	bullet          string
	numberedHeadings bool
}

func styleFor(templateID string) style {
	switch templateID {
	case "brief_v1":
		return style{bullet: "*", numberedHeadings: false}
	default:
		return style{bullet: "-", numberedHeadings: true}
	}
}

// Render produces the report markdown from a validated result and the
// pack it was compiled from. The audit footer names the policy, the
// ruleset hash and a truncated fingerprint so a reader can tie the
// report back to its exact inputs.
func Render(result knox.StructuredResult, pack knox.InputPack, policy knox.Policy, templateID string) string {
	st := styleFor(templateID)
	var b builder

	title := strings.TrimSpace(result.Title)
	if title == "" {
		title = "Report"
	}
	b.line("# " + title)
	b.blank()

	b.heading(st, 0, "Summary")
	if result.ExecutiveSummary != "" {
		b.line(result.ExecutiveSummary)
	} else {
		b.line("This summary is compiled from the selected material. No personal data or raw source text is exposed in this report.")
	}
	b.blank()

	b.heading(st, 1, "What we know")
	observations := collectBullets(result.Themes)
	if len(observations) > 0 {
		for _, obs := range capped(observations, maxObservations) {
			b.bullet(st, obs)
		}
	} else {
		b.bullet(st, "No clear observations could be extracted from the material.")
	}
	b.blank()

	b.heading(st, 2, "To verify")
	if len(result.OpenQuestions) > 0 {
		for _, q := range capped(result.OpenQuestions, maxOpenQuestions) {
			b.bullet(st, q)
		}
	} else {
		b.bullet(st, "No specific verification points were identified.")
	}
	b.blank()

	b.heading(st, 3, "Timeline")
	if len(result.TimelineHighLevel) > 0 {
		for _, entry := range result.TimelineHighLevel {
			b.bullet(st, entry)
		}
	} else {
		b.line("No clear timeline in the selected material.")
	}
	b.blank()

	b.heading(st, 4, "Included material")
	listed := 0
	total := 0
	for _, entry := range pack.Manifest {
		if entry.Kind != knox.KindDocument && entry.Kind != knox.KindNote {
			continue
		}
		total++
		if listed >= maxIncludedItems {
			continue
		}
		label := "Document"
		if entry.Kind == knox.KindNote {
			label = "Note"
		}
		b.bullet(st, fmt.Sprintf("[%s] %s (sanitize: %s)", label, entry.ID, entry.SanitizeLevel))
		listed++
	}
	if remaining := total - listed; remaining > 0 {
		b.line(fmt.Sprintf("(+%d more)", remaining))
	}
	b.blank()

	b.heading(st, 5, "Risks and privacy")
	if len(result.Risks) > 0 {
		for _, risk := range result.Risks {
			b.bullet(st, fmt.Sprintf("%s (mitigation: %s)", risk.Risk, risk.Mitigation))
		}
	} else {
		b.line("No PII indicators in the output and the re-identification guard passed without warnings.")
	}
	b.blank()

	b.heading(st, 6, "Recommended next steps")
	if len(result.NextSteps) > 0 {
		for _, step := range capped(result.NextSteps, maxNextSteps) {
			b.bullet(st, step)
		}
	} else {
		b.bullet(st, "No explicit next steps identified.")
	}
	b.blank()

	b.heading(st, 0, "Appendix: Audit")
	b.line(fmt.Sprintf("Policy: %s v%s", policy.PolicyID, policy.PolicyVersion))
	b.line(fmt.Sprintf("Ruleset: %s", policy.RulesetHash))
	b.line(fmt.Sprintf("Input fingerprint: %s...", truncate(pack.Fingerprint, 16)))
	b.blank()

	return b.String()
}

type builder struct {
	lines []string
}

func (b *builder) line(text string) { b.lines = append(b.lines, text) }
func (b *builder) blank()           { b.lines = append(b.lines, "") }

// heading numbers sections 1..n when the style asks for it; number 0
// marks an unnumbered section.
func (b *builder) heading(st style, number int, text string) {
	if st.numberedHeadings && number > 0 {
		b.line(fmt.Sprintf("## %d. %s", number, text))
	} else {
		b.line("## " + text)
	}
	b.blank()
}

func (b *builder) bullet(st style, text string) {
	b.line(st.bullet + " " + text)
}

func (b *builder) String() string {
	return strings.Join(b.lines, "\n")
}

func collectBullets(themes []knox.Theme) []string {
	var bullets []string
	for _, theme := range themes {
		bullets = append(bullets, theme.Bullets...)
	}
	return bullets
}

func capped(values []string, limit int) []string {
	if len(values) <= limit {
		return values
	}
	return values[:limit]
}

func truncate(value string, n int) string {
	if len(value) <= n {
		return value
	}
	return value[:n]
}
