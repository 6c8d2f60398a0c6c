package strategy

import (
	"context"
	"errors"
	"strings"

	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/backend/prompt"
	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/backend/provider"
)

const diagnosisPrefix = "DIAGNOSIS:"

// runDiagnostic classifies the text's argumentative defect and repairs it
// in the same completion; conservative mode repairs only the most salient
// defect, aggressive mode repairs everything found. Single call, fail-fast
// on any provider error.
func runDiagnostic(ctx context.Context, d deps, t *Task) (*Result, error) {
	t.Job.Start(1)

	system, user := d.prompts.Diagnostic(t.req.Text, t.Selection.Aggressive)
	raw, err := d.gateway.Complete(ctx, system, user, d.callOpts()...)
	if err != nil {
		return nil, err
	}

	diagnosis, repaired, err := parseDiagnosis(raw)
	if err != nil {
		return nil, provider.NewError(d.gateway.Name(), provider.ErrorKindMalformed, err)
	}
	// A repair that returns the input unchanged repaired nothing.
	if repaired == strings.TrimSpace(t.req.Text) {
		return nil, provider.NewError(d.gateway.Name(), provider.ErrorKindMalformed,
			errors.New("repaired text identical to input"))
	}

	t.Job.RecordChunkComplete(0, repaired)
	d.persistChunk(ctx, t.Job.ID, 0, repaired)

	return &Result{
		Output:    repaired,
		Diagnosis: diagnosis,
	}, nil
}

// parseDiagnosis splits the reply into its DIAGNOSIS line and the repaired
// text, requiring the label to be one of the six known defects.
func parseDiagnosis(raw string) (diagnosis, repaired string, err error) {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, diagnosisPrefix) {
		return "", "", errors.New("reply missing DIAGNOSIS line")
	}

	rest := s[len(diagnosisPrefix):]
	label := rest
	if i := strings.IndexByte(rest, '\n'); i >= 0 {
		label = rest[:i]
		repaired = strings.TrimSpace(rest[i+1:])
	}
	label = strings.TrimSpace(strings.ToLower(label))

	valid := false
	for _, known := range prompt.DiagnosisLabels {
		if label == known {
			valid = true
			break
		}
	}
	if !valid {
		return "", "", errors.New("unknown diagnosis label " + label)
	}
	if repaired == "" {
		return "", "", errors.New("reply missing repaired text")
	}
	return label, repaired, nil
}
