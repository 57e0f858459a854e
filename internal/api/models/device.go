package models

// Device is the API view of a registered access-control terminal.
// Credentials are write-only and never echoed back.
type Device struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Brand     string    `json:"brand"`
	Class     string    `json:"class"`
	Address   string    `json:"address"`
	MAC       string    `json:"mac,omitempty"`
	Capacity  int       `json:"capacity"`
	CreatedAt Timestamp `json:"createdAt"`
	UpdatedAt Timestamp `json:"updatedAt"`
}

// DeviceCreateRequest is the request body for registering a terminal.
type DeviceCreateRequest struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Brand    string `json:"brand"`
	Class    string `json:"class"`
	Address  string `json:"address"`
	Username string `json:"username"`
	Password string `json:"password"`
	MAC      string `json:"mac,omitempty"`
	Capacity int    `json:"capacity,omitempty"`
}

// DeviceUpdateRequest is the request body for updating a terminal. Nil fields are left untouched.
type DeviceUpdateRequest struct {
	Name     *string `json:"name,omitempty"`
	Address  *string `json:"address,omitempty"`
	Username *string `json:"username,omitempty"`
	Password *string `json:"password,omitempty"`
	MAC      *string `json:"mac,omitempty"`
	Capacity *int    `json:"capacity,omitempty"`
}

// PagedDevices represents a paginated list of devices.
type PagedDevices struct {
	Items []Device `json:"items"`
	Meta  ListMeta `json:"meta"`
}
