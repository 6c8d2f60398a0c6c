// Package prompt holds the instruction text sent to providers. Prompt
// wording is configuration, not algorithm: strategies ask the library for a
// prompt and never embed wording themselves, so deployments can swap the
// library without touching orchestration code.
package prompt

import (
	"fmt"
	"strings"
)

// The six defect labels the diagnostic strategy may assign.
var DiagnosisLabels = []string{
	"vague-claim",
	"weak-argument",
	"false-claim",
	"obscure-but-sound",
	"needs-empirical-support",
	"elliptical",
}

type Library struct {
	DiagnosticSystem    string
	DirectSystem        string
	OutlineSystem       string
	SectionSystem       string
	CrossChunkSystem    string
	ExpansionSystem     string
	PositionSystem      string
	EntityLockClause    string
	VoicePreserveClause string
}

func DefaultLibrary() *Library {
	return &Library{
		DiagnosticSystem:    "You are an analytical editor. Diagnose the argumentative defect in the text, then repair it.",
		DirectSystem:        "You are a careful rewriting assistant. Follow the user's instructions exactly and return only the transformed text.",
		OutlineSystem:       "You extract the structural skeleton of documents and answer only in JSON.",
		SectionSystem:       "You regenerate one section of a document under a fixed outline, preserving the author's voice.",
		CrossChunkSystem:    "You rewrite one segment of a long document while keeping terminology and claims consistent with earlier segments. Answer only in JSON.",
		ExpansionSystem:     "You write one substantial new section of a growing document, continuing from what exists without repeating it.",
		PositionSystem:      "You transform one discrete position from a list according to the user's instructions.",
		EntityLockClause:    "Do not invent names, numbers, examples or citations absent from the source.",
		VoicePreserveClause: "Preserve the original authorial voice, register and terminology.",
	}
}

// Diagnostic builds the single-call diagnose-then-repair prompt. The reply
// contract is one DIAGNOSIS line followed by the repaired text.
func (l *Library) Diagnostic(text string, aggressive bool) (system, user string) {
	scope := "Repair only the single most salient defect and leave the rest untouched."
	if aggressive {
		scope = "Repair every defect you find, point by point."
	}

	user = fmt.Sprintf(`Classify the main argumentative defect of the text below as exactly one of: %s.

%s %s %s

Reply in exactly this shape:
DIAGNOSIS: <label>

<repaired text>

Text:
%s`,
		strings.Join(DiagnosisLabels, ", "), scope, l.VoicePreserveClause, l.EntityLockClause, text)
	return l.DiagnosticSystem, user
}

func (l *Library) Direct(text, instructions string) (system, user string) {
	user = fmt.Sprintf("Instructions: %s\n\n%s %s\n\nText:\n%s",
		instructions, l.VoicePreserveClause, l.EntityLockClause, text)
	return l.DirectSystem, user
}

// OutlineExtract asks for the document skeleton as JSON with keys thesis,
// keyPoints, keyTerms, constraints.
func (l *Library) OutlineExtract(text string) (system, user string) {
	user = fmt.Sprintf(`Extract the structural outline of this document as JSON:
{"thesis": string, "keyPoints": [string], "keyTerms": [string], "constraints": [string]}

keyPoints must be in document order, one per major section of the argument.

Document:
%s`, text)
	return l.OutlineSystem, user
}

// Section builds the per-key-point regeneration prompt. The outline is the
// fixed shared context for every section of the job.
func (l *Library) Section(outlineJSON string, pointIndex int, point, sourceRegion string) (system, user string) {
	user = fmt.Sprintf(`Full outline (fixed, shared by all sections):
%s

Regenerate section %d, covering this key point:
%s

%s %s

Source material for this section:
%s`,
		outlineJSON, pointIndex+1, point, l.VoicePreserveClause, l.EntityLockClause, sourceRegion)
	return l.SectionSystem, user
}

// CrossChunk builds the per-chunk transformation prompt carrying the
// rolling global state. The reply contract is JSON:
// {"section": string, "state": {...}}.
func (l *Library) CrossChunk(chunkText, stateJSON, instructions string) (system, user string) {
	extra := ""
	if strings.TrimSpace(instructions) != "" {
		extra = "Additional instructions: " + instructions + "\n\n"
	}
	user = fmt.Sprintf(`Global state established by earlier segments (follow its terminology and claims):
%s

%sRewrite the segment below. %s %s

Reply only with JSON: {"section": "<rewritten segment>", "state": {"thesis": string, "keyTerms": [string], "decisions": [string], "summary": string}} where state is the updated global state after this segment.

Segment:
%s`, stateJSON, extra, l.VoicePreserveClause, l.EntityLockClause, chunkText)
	return l.CrossChunkSystem, user
}

// ExpansionSection asks for the next section of a document being grown
// toward a word target.
func (l *Library) ExpansionSection(sourceText, instructions string, sectionIndex, sectionWords, remainingWords int, priorTitles []string) (system, user string) {
	extra := ""
	if strings.TrimSpace(instructions) != "" {
		extra = "User instructions: " + instructions + "\n\n"
	}
	prior := "none yet"
	if len(priorTitles) > 0 {
		prior = strings.Join(priorTitles, "; ")
	}
	user = fmt.Sprintf(`%sYou are expanding the source document below. Sections already written: %s.

Write section %d as roughly %d words of new material (about %d words remain to reach the target). Begin with a single markdown heading line for the section title. %s

Source document:
%s`, extra, prior, sectionIndex+1, sectionWords, remainingWords, l.EntityLockClause, sourceText)
	return l.ExpansionSystem, user
}

// Position builds the per-item transformation prompt for position lists.
// A reply of exactly SKIP excludes the position from the output.
func (l *Library) Position(fields []string, instructions string) (system, user string) {
	user = fmt.Sprintf(`Instructions: %s

Position (pipe-delimited fields):
%s

Apply the instructions to this position. If the instructions exclude it, reply with exactly SKIP. Otherwise reply with the transformed position as pipe-delimited fields in the same order.`,
		instructions, strings.Join(fields, " | "))
	return l.PositionSystem, user
}
