package models

// Outcome is the severity classification of a recorded rule violation.
type Outcome string

const (
	OutcomeGeneral  Outcome = "General"
	OutcomeMinor    Outcome = "Minor"
	OutcomeMajor    Outcome = "Major"
	OutcomeDisabled Outcome = "Disabled"
)

// MatchReference points at the match an incident was recorded during,
// without carrying a back-pointer to the full match object — only
// value-type fields the UI can use to re-resolve against the
// event-metadata service.
type MatchReference struct {
	// League match identity. The reference is a skills attempt
	// instead when SkillsType is set (see IsSkillsAttempt).
	Division uint32 `json:"division,omitempty"`
	Name     string `json:"name,omitempty"`
	MatchID  uint64 `json:"matchId,omitempty"`

	// Skills attempt identity.
	SkillsType string `json:"skillsType,omitempty"` // "programming" | "driver"
	Attempt    uint32 `json:"attempt,omitempty"`
}

// IsSkillsAttempt reports whether this reference denotes a skills run
// rather than a league match.
func (m MatchReference) IsSkillsAttempt() bool {
	return m.SkillsType != ""
}

// Incident is a single rule-violation record. ID and EventSKU are
// immutable; every other field rides the consistency envelope.
type Incident struct {
	ID       string           `json:"id"`
	EventSKU string           `json:"eventSku"`
	Team     string           `json:"team"`
	Match    *MatchReference  `json:"match,omitempty"`
	Outcome  Outcome          `json:"outcome"`
	Rules    []string         `json:"rules"`
	Notes    string           `json:"notes"`
	Time     int64            `json:"timestamp"`
	Assets   []string         `json:"assets"`
}

// IncidentImmutableKeys names the Incident fields that never
// participate in merge.
var IncidentImmutableKeys = []string{"id", "eventSku"}

// Scratchpad is a free-form per-match annotation. ID is derived
// deterministically from (EventSKU, Division, MatchName) by the
// caller so that two referees annotating the same match converge on
// the same record id without coordination.
type Scratchpad struct {
	ID       string         `json:"id"`
	EventSKU string         `json:"eventSku"`
	Division uint32         `json:"division"`
	Match    string         `json:"match"`
	Game     string         `json:"game"`
	Fields   map[string]any `json:"fields"`
	Notes    string         `json:"notes"`
}

// ScratchpadImmutableKeys names the Scratchpad fields that never
// participate in merge.
var ScratchpadImmutableKeys = []string{"id", "eventSku", "division", "match", "game"}
