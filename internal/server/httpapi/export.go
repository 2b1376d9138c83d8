package httpapi

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/fieldref/syncore/internal/models"
)

var notesReplacer = strings.NewReplacer("\r", " ", "\n", " ", "\t", " ")

func skillsLabel(skillsType string) string {
	switch skillsType {
	case "driver":
		return "Driver"
	default:
		return "Auto"
	}
}

// matchColumn renders the CSV Match column per §6.4: the skills label
// for a skills attempt, the league match name otherwise, empty for a
// non-match incident.
func matchColumn(m *models.MatchReference) string {
	if m == nil {
		return ""
	}
	if m.IsSkillsAttempt() {
		return fmt.Sprintf("%s Skills %d", skillsLabel(m.SkillsType), m.Attempt)
	}
	return m.Name
}

func divisionColumn(m *models.MatchReference) string {
	if m == nil {
		return ""
	}
	return fmt.Sprintf("%d", m.Division)
}

func (h *Handlers) sortedIncidents(r *http.Request, sku string) ([]models.Incident, error) {
	in := h.registry.Get(sku)
	info, err := in.ShareInfo(r.Context())
	if err != nil {
		return nil, err
	}

	incidents := make([]models.Incident, 0, len(info.Data))
	for _, env := range info.Data {
		var inc models.Incident
		if err := models.FromFieldMap(env.Immutable, env.Fields, &inc); err != nil {
			return nil, fmt.Errorf("decode incident: %w", err)
		}
		incidents = append(incidents, inc)
	}
	sort.Slice(incidents, func(i, j int) bool { return incidents[i].Time < incidents[j].Time })
	return incidents, nil
}

// ExportCSV handles GET /:sku/csv.
func (h *Handlers) ExportCSV(w http.ResponseWriter, r *http.Request) {
	sku := mux.Vars(r)["sku"]
	incidents, err := h.sortedIncidents(r, sku)
	if err != nil {
		writeErr(h.logger, w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-incidents.csv"`, sku))
	cw := csv.NewWriter(w)

	_ = cw.Write([]string{"Date", "Time", "ID", "SKU", "Division", "Match", "Team", "Outcome", "Rules", "Notes"})
	for _, inc := range incidents {
		ts := time.Unix(inc.Time, 0).UTC()
		_ = cw.Write([]string{
			ts.Format("2006-01-02"),
			ts.Format("15:04:05"),
			inc.ID,
			inc.EventSKU,
			divisionColumn(inc.Match),
			matchColumn(inc.Match),
			inc.Team,
			string(inc.Outcome),
			strings.Join(inc.Rules, " "),
			notesReplacer.Replace(inc.Notes),
		})
	}
	cw.Flush()
}

// ExportJSON handles GET /:sku/json.
func (h *Handlers) ExportJSON(w http.ResponseWriter, r *http.Request) {
	sku := mux.Vars(r)["sku"]
	incidents, err := h.sortedIncidents(r, sku)
	if err != nil {
		writeErr(h.logger, w, err)
		return
	}
	writeOk(w, incidents)
}
