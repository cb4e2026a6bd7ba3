package http

// APIResponse is the envelope of every JSON response.
type APIResponse struct {
	Status   int         `json:"status" example:"200"`
	Message  string      `json:"message" example:"OK"`
	Data     interface{} `json:"data,omitempty"`
	Warnings []string    `json:"warnings,omitempty"`
}

// ValidationError represents validation error detail.
type ValidationError struct {
	Code    string                 `json:"code,omitempty" example:"ERR_REQUIRED"`
	Field   string                 `json:"field,omitempty" example:"horizons"`
	Message string                 `json:"message,omitempty" example:"horizons is required"`
	Params  map[string]interface{} `json:"params,omitempty"`
}
