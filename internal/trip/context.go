package trip

import (
	"strings"
	"time"
)

// SlotStatus tags how firmly a context attribute is known.
type SlotStatus string

const (
	SlotAbsent    SlotStatus = "absent"
	SlotUncertain SlotStatus = "uncertain"
	SlotPresent   SlotStatus = "present"
)

// StringSlot is a trip attribute holding a string value plus its status.
type StringSlot struct {
	Value  string     `json:"value,omitempty"`
	Status SlotStatus `json:"status,omitempty"`
}

// IntSlot is a trip attribute holding an integer value plus its status.
type IntSlot struct {
	Value  int        `json:"value,omitempty"`
	Status SlotStatus `json:"status,omitempty"`
}

// FloatSlot is a trip attribute holding a float value plus its status.
type FloatSlot struct {
	Value  float64    `json:"value,omitempty"`
	Status SlotStatus `json:"status,omitempty"`
}

// Present reports whether the slot is firmly known.
func (s StringSlot) Present() bool { return s.Status == SlotPresent }

// Present reports whether the slot is firmly known.
func (s IntSlot) Present() bool { return s.Status == SlotPresent }

// Present reports whether the slot is firmly known.
func (s FloatSlot) Present() bool { return s.Status == SlotPresent }

// Context holds the trip attributes extracted across the turns of a session.
// It is mutated only by the Context Tracker; every other component reads it.
type Context struct {
	Destination  StringSlot `json:"destination"`
	OriginCity   StringSlot `json:"origin_city"`
	StartDate    StringSlot `json:"start_date"` // canonical YYYY-MM-DD
	DurationDays IntSlot    `json:"duration_days"`
	Travelers    IntSlot    `json:"travelers"`
	BudgetLimit  FloatSlot  `json:"budget_limit"`
	Currency     StringSlot `json:"currency"`
	Interests    []string   `json:"interests,omitempty"`

	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Extraction is the per-turn attribute delta produced by the Context Tracker
// before merging. Confidence below the tracker threshold marks the slot
// uncertain rather than present.
type Extraction struct {
	Destination  string
	OriginCity   string
	StartDate    string
	DurationDays int
	Travelers    int
	BudgetLimit  float64
	Currency     string
	Interests    []string

	// Confidence of the extraction as a whole (0.0-1.0).
	Confidence float64

	// Correction is true when the user explicitly corrected an earlier
	// attribute ("actually, make that Rome"). Only a correction may
	// overwrite a slot that is already present.
	Correction bool
}

// Merge folds an extraction into the context, enforcing monotonicity: a slot
// marked present is never silently overwritten by a lower-confidence
// extraction. Only an explicit correction unlocks present slots.
func (c *Context) Merge(e Extraction, presentThreshold float64) {
	status := SlotUncertain
	if e.Confidence >= presentThreshold {
		status = SlotPresent
	}

	mergeString(&c.Destination, NormalizeDestination(e.Destination), status, e.Correction)
	mergeString(&c.OriginCity, NormalizeDestination(e.OriginCity), status, e.Correction)
	mergeString(&c.StartDate, NormalizeDate(e.StartDate), status, e.Correction)
	mergeInt(&c.DurationDays, e.DurationDays, status, e.Correction)
	mergeInt(&c.Travelers, e.Travelers, status, e.Correction)
	mergeFloat(&c.BudgetLimit, e.BudgetLimit, status, e.Correction)
	mergeString(&c.Currency, strings.ToUpper(strings.TrimSpace(e.Currency)), status, e.Correction)

	for _, interest := range e.Interests {
		interest = strings.ToLower(strings.TrimSpace(interest))
		if interest != "" && !containsString(c.Interests, interest) {
			c.Interests = append(c.Interests, interest)
		}
	}

	c.UpdatedAt = time.Now()
}

func mergeString(slot *StringSlot, value string, status SlotStatus, correction bool) {
	if value == "" {
		return
	}
	if slot.Status == SlotPresent && !correction {
		return
	}
	slot.Value = value
	slot.Status = status
}

func mergeInt(slot *IntSlot, value int, status SlotStatus, correction bool) {
	if value == 0 {
		return
	}
	if slot.Status == SlotPresent && !correction {
		return
	}
	slot.Value = value
	slot.Status = status
}

func mergeFloat(slot *FloatSlot, value float64, status SlotStatus, correction bool) {
	if value == 0 {
		return
	}
	if slot.Status == SlotPresent && !correction {
		return
	}
	slot.Value = value
	slot.Status = status
}

// MissingForPlanning lists the attributes a planning request still needs.
// Destination is always required; date and duration make the plan concrete.
func (c *Context) MissingForPlanning() []string {
	var missing []string
	if !c.Destination.Present() {
		missing = append(missing, "destination")
	}
	if !c.StartDate.Present() {
		missing = append(missing, "start date")
	}
	if !c.DurationDays.Present() {
		missing = append(missing, "trip duration")
	}
	return missing
}

// TravelerCount returns the traveler count, defaulting to one.
func (c *Context) TravelerCount() int {
	if c.Travelers.Value > 0 {
		return c.Travelers.Value
	}
	return 1
}

// Clone returns a deep copy of the context for plan snapshots.
func (c *Context) Clone() *Context {
	cp := *c
	cp.Interests = append([]string(nil), c.Interests...)
	return &cp
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
