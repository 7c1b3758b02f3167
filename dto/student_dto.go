package dto

// SetPolicyInput is the professor's partial policy update; omitted fields are
// left untouched.
type SetPolicyInput struct {
	MonthlyHourLimit    *float64 `json:"monthly_hour_limit,omitempty" binding:"omitempty,gte=0"`
	HasAccessPermission *bool    `json:"has_access_permission,omitempty"`
}
