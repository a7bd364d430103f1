package models

// UpdatePayload is what the UI layer hands to the queue on a milestone edit.
type UpdatePayload struct {
	ComponentID   string         `json:"component_id"`
	MilestoneName string         `json:"milestone_name"`
	Value         MilestoneValue `json:"value"`
	UserID        string         `json:"user_id"`
}

// MilestonePush is the remote mutation call body. NewValue is always
// numeric; the boolean-to-1/0 conversion happens when this struct is built,
// at the transport boundary.
type MilestonePush struct {
	ComponentID   string  `json:"component_id"`
	MilestoneName string  `json:"milestone_name"`
	NewValue      float64 `json:"new_value"`
	UserID        string  `json:"user_id"`
}
