package model

// Client is a subscriber bound to a PCO drop port.
type Client struct {
	ID     string
	Login  string
	Name   string
	Status string
}

// DisplayName returns Name, falling back to Login and then ID.
func (c *Client) DisplayName() string {
	switch {
	case c == nil:
		return ""
	case c.Name != "":
		return c.Name
	case c.Login != "":
		return c.Login
	default:
		return c.ID
	}
}

// Snapshot is a fully materialized, point-in-time view of the plant as handed
// over by the inventory database. Consumers treat it as read-only.
type Snapshot struct {
	// Version identifies the snapshot. Empty versions are replaced by a
	// content fingerprint where a stable key is needed.
	Version string
	Nodes   []*Node
	Cables  []*Cable
}
