package models

// Health represents the health status of the service.
type Health struct {
	Status  HealthStatus           `json:"status"`
	Time    Timestamp              `json:"time"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SystemStatus represents the overall system status.
type SystemStatus struct {
	Status     HealthStatus      `json:"status"`
	Time       Timestamp         `json:"time"`
	Artifact   *ArtifactStatus   `json:"artifact,omitempty"`
	Subsystems []SubsystemStatus `json:"subsystems"`
	Transports []TransportStatus `json:"transports"`
}

// ArtifactStatus describes the last published alerts artifact.
type ArtifactStatus struct {
	GeneratedAt       Timestamp `json:"generatedAt"`
	ReferenceTime     Timestamp `json:"referenceTime"`
	AgeSeconds        int64     `json:"ageSeconds"`
	Districts         int       `json:"districts"`
	CompleteDistricts int       `json:"completeDistricts"`
	Stale             bool      `json:"stale"`
}

// SubsystemStatus represents the status of a subsystem.
type SubsystemStatus struct {
	Name   string       `json:"name"`
	Status HealthStatus `json:"status"`
	Detail *string      `json:"detail,omitempty"`
}

// TransportStatus represents the status of a notification transport.
type TransportStatus struct {
	Transport     string       `json:"transport"`
	Status        HealthStatus `json:"status"`
	BreakerState  string       `json:"breakerState"`
	LastSuccessAt *Timestamp   `json:"lastSuccessAt,omitempty"`
	LastFailureAt *Timestamp   `json:"lastFailureAt,omitempty"`
	Message       *string      `json:"message,omitempty"`
}
