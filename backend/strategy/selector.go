package strategy

import (
	"strings"

	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/backend/config"
	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/backend/textutil"
)

// Selection is the selector's verdict: which strategy runs and with what
// parameters.
type Selection struct {
	Kind        Kind
	TargetWords int
	Aggressive  bool
}

// Select maps an input to a strategy. The rules are checked in a fixed
// order and the first match wins; expansion intent beats every shape and
// length heuristic because only the expansion strategy streams sections
// live for very large targets.
func Select(wordCount int, instructions, text string, fidelity Fidelity, tuning config.Tuning) (Selection, error) {
	hasInstructions := strings.TrimSpace(instructions) != ""
	hasText := strings.TrimSpace(text) != ""

	if !hasText && !hasInstructions {
		return Selection{}, ErrInvalidInput
	}

	// 1. Expansion intent.
	if hasInstructions {
		if directive, ok := textutil.ParseExpansionDirective(
			instructions, wordCount, tuning.SmallInputWords, tuning.DefaultExpansionTarget,
		); ok {
			return Selection{
				Kind:        KindUniversalExpansion,
				TargetWords: directive.TargetWords,
				Aggressive:  fidelity != FidelityConservative,
			}, nil
		}
	}

	// 2. Position-list shape.
	if textutil.IsPositionList(text) {
		return Selection{Kind: KindPositionList}, nil
	}

	// 3. Medium band.
	if wordCount >= tuning.MediumMinWords && wordCount <= tuning.MediumMaxWords {
		return Selection{Kind: KindOutlineFirst}, nil
	}

	// 4. Long documents.
	if wordCount > tuning.MediumMaxWords {
		return Selection{Kind: KindCrossChunk}, nil
	}

	// 5. Any other instructions.
	if hasInstructions {
		return Selection{Kind: KindDirectInstruction}, nil
	}

	// 6. Short text, no instructions.
	return Selection{
		Kind:       KindDiagnostic,
		Aggressive: fidelity == FidelityAggressive,
	}, nil
}
