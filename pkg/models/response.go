package models

// ErrorBody is the shape of the service's error responses. Any one field may be set.
type ErrorBody struct {
	Detail  string `json:"detail,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Text returns the first non-empty message in the body
func (b ErrorBody) Text() string {
	switch {
	case b.Detail != "":
		return b.Detail
	case b.Message != "":
		return b.Message
	default:
		return b.Error
	}
}

// HealthStatus
type HealthStatus struct {
	Status string `json:"status"`
}

// ListParams selects one page of the top-level listing
type ListParams struct {
	Page     int
	Ordering string
	Search   string
}
