package core

// Coach identifies the viewer of a dashboard. Sessions and authentication live elsewhere;
// this subsystem only needs the id to scope reads and to filter pushed rows.
type Coach struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}
