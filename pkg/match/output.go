package match

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/hazyhaar/trialmap/pkg/trial"
)

// WriteMappings writes mappings as CSV with the columns nct_id, Name and
// intervention_type. withProvenance appends db_id and provenance.
func WriteMappings(w io.Writer, ms []Mapping, withProvenance bool) error {
	cw := csv.NewWriter(w)
	header := []string{"nct_id", "Name", "intervention_type"}
	if withProvenance {
		header = append(header, "db_id", "provenance")
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, m := range ms {
		row := []string{m.TrialID, m.Name, m.InterventionType}
		if withProvenance {
			row = append(row, m.DrugID, string(m.Provenance))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteInterventions writes records in the input table layout, used for the
// residual unmapped set.
func WriteInterventions(w io.Writer, records []trial.InterventionRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"nct_id", "intervention", "intervention_type"}); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write([]string{r.TrialID, r.Text, r.Type}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile creates path and hands it to write.
func WriteFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
