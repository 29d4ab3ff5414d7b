package ruleset

// Rules validates player configuration against the loaded content.
// A zero-value Rules accepts anything: servers running without content
// files place no constraints on civilization or team choices.
type Rules struct {
	civilizations map[string]*Civilization
	// MaxTeams is the highest allowed team number; 0 disables the check.
	MaxTeams int
}

// NewRules builds a Rules from loaded civilizations and a team limit.
//
// Postcondition: Returns a non-nil *Rules; an empty civs slice disables
// civilization validation.
func NewRules(civs []*Civilization, maxTeams int) *Rules {
	r := &Rules{MaxTeams: maxTeams}
	if len(civs) > 0 {
		r.civilizations = make(map[string]*Civilization, len(civs))
		for _, c := range civs {
			r.civilizations[c.ID] = c
		}
	}
	return r
}

// ValidCivilization reports whether id names a playable civilization.
// The empty id is always valid: a player who has not picked yet has no
// civilization.
func (r *Rules) ValidCivilization(id string) bool {
	if r == nil || r.civilizations == nil || id == "" {
		return true
	}
	_, ok := r.civilizations[id]
	return ok
}

// ValidTeam reports whether team is within the configured team range.
func (r *Rules) ValidTeam(team int) bool {
	if r == nil || r.MaxTeams <= 0 {
		return team >= 0
	}
	return team >= 0 && team <= r.MaxTeams
}

// Civilization returns the civilization for the given id, if loaded.
func (r *Rules) Civilization(id string) (*Civilization, bool) {
	if r == nil || r.civilizations == nil {
		return nil, false
	}
	c, ok := r.civilizations[id]
	return c, ok
}
