package character

// Condition names one of the six fixed conditions.
type Condition string

const (
	CondExhausted    Condition = "exhausted"
	CondSickly       Condition = "sickly"
	CondDazed        Condition = "dazed"
	CondAngry        Condition = "angry"
	CondScared       Condition = "scared"
	CondDisheartened Condition = "disheartened"
)

// ConditionOrder is the fixed key order used when a rest clears "the first" condition.
var ConditionOrder = []Condition{
	CondExhausted, CondSickly, CondDazed,
	CondAngry, CondScared, CondDisheartened,
}

// Conditions holds all six flags. A struct makes a partial set unrepresentable.
type Conditions struct {
	Exhausted    bool `json:"exhausted"`
	Sickly       bool `json:"sickly"`
	Dazed        bool `json:"dazed"`
	Angry        bool `json:"angry"`
	Scared       bool `json:"scared"`
	Disheartened bool `json:"disheartened"`
}

// flag returns a pointer to the named flag, or nil for an unknown name.
func (c *Conditions) flag(name Condition) *bool {
	switch name {
	case CondExhausted:
		return &c.Exhausted
	case CondSickly:
		return &c.Sickly
	case CondDazed:
		return &c.Dazed
	case CondAngry:
		return &c.Angry
	case CondScared:
		return &c.Scared
	case CondDisheartened:
		return &c.Disheartened
	}
	return nil
}

// ValidCondition reports whether name is one of the six conditions.
func ValidCondition(name Condition) bool {
	var c Conditions
	return c.flag(name) != nil
}

// Get returns the named flag; unknown names are false.
func (c Conditions) Get(name Condition) bool {
	if f := c.flag(name); f != nil {
		return *f
	}
	return false
}

// With returns a copy with the named flag set to v. Unknown names leave c unchanged.
func (c Conditions) With(name Condition, v bool) Conditions {
	if f := c.flag(name); f != nil {
		*f = v
	}
	return c
}

// FirstActive returns the first active condition in ConditionOrder.
func (c Conditions) FirstActive() (Condition, bool) {
	for _, name := range ConditionOrder {
		if c.Get(name) {
			return name, true
		}
	}
	return "", false
}

// Any reports whether any condition is active.
func (c Conditions) Any() bool {
	_, ok := c.FirstActive()
	return ok
}
