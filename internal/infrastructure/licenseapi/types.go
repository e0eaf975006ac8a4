package licenseapi

// ExternalKey là một key theo cách upstream inventory trình bày
type ExternalKey struct {
	ID       string `json:"_id"`
	Key      string `json:"key"`
	Duration string `json:"duration"`
	IsActive bool   `json:"isActive"`
}

type loginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
}

type keyListResponse struct {
	Success bool          `json:"success"`
	Data    []ExternalKey `json:"data"`
}

type generateRequest struct {
	Duration string `json:"duration"`
	Quantity int    `json:"quantity"`
}
