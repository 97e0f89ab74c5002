package domain

// Category is per-project reference data used to label tasks. It changes
// rarely compared to board contents.
type Category struct {
	ID        string `json:"id"`
	ProjectID string `json:"projectId"`
	Name      string `json:"name"`
	Color     string `json:"color,omitempty"`
}
