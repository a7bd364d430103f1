package models

import (
	"encoding/json"
	"fmt"
)

// MilestoneValue holds a milestone edit as the user made it: discrete
// milestones carry a boolean, partial milestones a 0-100 percentage.
// The stored representation keeps the original shape; conversion to the
// numeric wire form happens once, at the remote-call boundary.
type MilestoneValue struct {
	boolean bool
	number  float64
	isBool  bool
}

func BoolValue(v bool) MilestoneValue {
	return MilestoneValue{boolean: v, isBool: true}
}

func PercentValue(v float64) MilestoneValue {
	return MilestoneValue{number: v}
}

// IsBool reports whether the value is a discrete (boolean) milestone.
func (v MilestoneValue) IsBool() bool { return v.isBool }

func (v MilestoneValue) Bool() bool { return v.boolean }

func (v MilestoneValue) Percent() float64 { return v.number }

// Wire returns the numeric form sent to the remote: true/false become 1/0,
// percentages pass through unchanged.
func (v MilestoneValue) Wire() float64 {
	if v.isBool {
		if v.boolean {
			return 1
		}
		return 0
	}
	return v.number
}

// Validate checks the range invariant for partial values. Booleans are
// always valid.
func (v MilestoneValue) Validate() error {
	if v.isBool {
		return nil
	}
	if v.number < MinMilestoneValue || v.number > MaxMilestoneValue {
		return fmt.Errorf("milestone value %.2f out of range [%d,%d]", v.number, MinMilestoneValue, MaxMilestoneValue)
	}
	return nil
}

func (v MilestoneValue) MarshalJSON() ([]byte, error) {
	if v.isBool {
		return json.Marshal(v.boolean)
	}
	return json.Marshal(v.number)
}

func (v *MilestoneValue) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*v = BoolValue(b)
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*v = PercentValue(n)
		return nil
	}
	return fmt.Errorf("milestone value must be boolean or number, got %s", data)
}

func (v MilestoneValue) String() string {
	if v.isBool {
		return fmt.Sprintf("%t", v.boolean)
	}
	return fmt.Sprintf("%g", v.number)
}
