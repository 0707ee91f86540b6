package placebo

import (
	"encoding/csv"
	"io"
)

// WriteRows writes rows as CSV with the columns nct_id, db_id, drug_map,
// intervention_type.
func WriteRows(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"nct_id", "db_id", "drug_map", "intervention_type"}); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{r.TrialID, r.DrugID, r.DrugMap, r.InterventionType}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
