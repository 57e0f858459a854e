package models

// Health is the body of the liveness and readiness probes.
type Health struct {
	Status  HealthStatus   `json:"status"`
	Time    Timestamp      `json:"time"`
	Details map[string]any `json:"details,omitempty"`
}

// SystemStatus combines backing-service checks with the reachability of every terminal the
// process has talked to.
type SystemStatus struct {
	Status     HealthStatus      `json:"status"`
	Time       Timestamp         `json:"time"`
	Subsystems []SubsystemStatus `json:"subsystems"`
	Devices    []DeviceHealth    `json:"devices"`
}

// SubsystemStatus is the result of one readiness check, such as postgres or nats.
type SubsystemStatus struct {
	Name   string       `json:"name"`
	Status HealthStatus `json:"status"`
	Detail *string      `json:"detail,omitempty"`
}

// DeviceHealth reports the transport health of one terminal, derived from its circuit breaker.
type DeviceHealth struct {
	DeviceID            string       `json:"deviceId"`
	Status              HealthStatus `json:"status"`
	Reachability        string       `json:"reachability"`
	ConsecutiveFailures uint32       `json:"consecutiveFailures"`
	Trips               int64        `json:"trips"`
	LastSuccessAt       *Timestamp   `json:"lastSuccessAt,omitempty"`
	LastFailureAt       *Timestamp   `json:"lastFailureAt,omitempty"`
	Message             *string      `json:"message,omitempty"`
}
