package models

// Setting is one runtime setting.
type Setting struct {
	Key       string     `json:"key"`
	Value     any        `json:"value"`
	UpdatedAt *Timestamp `json:"updatedAt,omitempty"`
}

// SettingsList holds every known setting with its effective value.
type SettingsList struct {
	Items []Setting `json:"items"`
}

// SettingsUpdateRequest replaces the values of the listed settings.
type SettingsUpdateRequest struct {
	Items []Setting `json:"items"`
}
