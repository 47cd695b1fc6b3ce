package types

// ModelsResponse wraps the list of models returned by GET /models.
type ModelsResponse struct {
	// List of indexed models in registry order.
	Models []ModelDescriptor `json:"models"`
}

// LoadRequest selects a model to load and optional acceleration settings.
type LoadRequest struct {
	// Number of layers to offload. Omitted means "use the configured
	// default"; an explicit 0 forces CPU.
	// example: 32
	GPULayers *int `json:"gpu_layers,omitempty" example:"32"`
}

// ParamsRequest carries a parameter hot-swap for PUT /params.
type ParamsRequest struct {
	Params GenParams `json:"params"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: index out of range: 99
	Error string `json:"error" example:"index out of range: 99"`
	// HTTP status code.
	// example: 404
	Code int `json:"code" example:"404"`
}
