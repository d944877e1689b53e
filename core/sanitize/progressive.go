package sanitize

import (
	coreerrors "github.com/DanielWarg/fortknox/core/errors"
	"github.com/DanielWarg/fortknox/core/schema/v1/knox"
)

// Result is the outcome of progressive sanitization. Masked is the text
// at the chosen level; Restrictions follow from that level.
type Result struct {
	Masked       string
	Level        knox.SanitizeLevel
	Restrictions knox.UsageRestrictions
}

// Progressive normalizes raw text and masks it at the lowest level whose
// output passes the PII gate: normal, then strict, then paranoid.
// Paranoid is structurally guaranteed to pass; if it ever does not, that
// is an internal bug and surfaces as INTERNAL_ERROR rather than a gate
// failure.
func Progressive(raw string) (Result, error) {
	text := Normalize(raw)

	for _, level := range []knox.SanitizeLevel{knox.LevelNormal, knox.LevelStrict} {
		masked := Mask(text, level)
		if ok, _ := GateCheck(masked); ok {
			return Result{
				Masked:       masked,
				Level:        level,
				Restrictions: knox.UsageRestrictions{AIAllowed: true, ExportAllowed: true},
			}, nil
		}
	}

	masked := Mask(text, knox.LevelParanoid)
	if ok, reasons := GateCheck(masked); !ok {
		return Result{}, coreerrors.New(
			coreerrors.CategoryInternal,
			coreerrors.CodeInternal,
			PrefixReasons("pii_gate_", reasons),
			"paranoid masking failed its own gate",
			false,
		)
	}

	return Result{
		Masked:       masked,
		Level:        knox.LevelParanoid,
		Restrictions: knox.UsageRestrictions{AIAllowed: false, ExportAllowed: false},
	}, nil
}
