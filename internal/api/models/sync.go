package models

// SyncTally counts per-item outcomes of a sync run.
type SyncTally struct {
	Success int `json:"success"`
	Faces   int `json:"faces"`
	Tags    int `json:"tags"`
	Failed  int `json:"failed"`
	Created int `json:"created"`
	Added   int `json:"added"`
	Deleted int `json:"deleted"`
}

// SyncSession reports the progress of an import or export.
type SyncSession struct {
	ID         string     `json:"id"`
	DeviceID   string     `json:"deviceId"`
	Mode       string     `json:"mode"`
	State      string     `json:"state"`
	Phase      string     `json:"phase,omitempty"`
	Total      int        `json:"total"`
	Processed  int        `json:"processed"`
	Percent    int        `json:"percent"`
	Tally      SyncTally  `json:"tally"`
	Current    string     `json:"current,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  *Timestamp `json:"startedAt,omitempty"`
	FinishedAt *Timestamp `json:"finishedAt,omitempty"`
}

// ReconcileSummary previews what an import would touch.
type ReconcileSummary struct {
	DeviceID          string   `json:"deviceId"`
	NewInCentral      int      `json:"newInCentral"`
	MissingEnrichment int      `json:"missingEnrichment"`
	ToSync            int      `json:"toSync"`
	Keys              []string `json:"keys,omitempty"`
}

// AccessLogEntry is one stored access record.
type AccessLogEntry struct {
	ID          string    `json:"id"`
	DeviceID    string    `json:"deviceId"`
	Source      string    `json:"source"`
	OccurredAt  Timestamp `json:"occurredAt"`
	UserRef     string    `json:"userRef,omitempty"`
	UserName    string    `json:"userName,omitempty"`
	Credential  string    `json:"credential,omitempty"`
	Method      string    `json:"method,omitempty"`
	Decision    string    `json:"decision"`
	EvidenceKey string    `json:"evidenceKey,omitempty"`
}

// AccessLogList is a newest-first list of access records.
type AccessLogList struct {
	Items []AccessLogEntry `json:"items"`
	Meta  ListMeta         `json:"meta"`
}
