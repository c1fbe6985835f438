package types

import "time"

type Health struct {
	Detail string `json:"detail"`
}

type DBHealth struct {
	Detail string `json:"detail"`
	// Applied revision, empty when nothing is applied
	Current  string `json:"current_revision"`
	Head     string `json:"head_revision"`
	UpToDate bool   `json:"up_to_date"`
}

type Revision struct {
	AppliedAt    *time.Time `json:"applied_at,omitempty"    yaml:"applied_at,omitempty"`
	ID           string     `json:"revision"                yaml:"revision"`
	DownRevision string     `json:"down_revision,omitempty" yaml:"down_revision,omitempty"`
	Message      string     `json:"message"                 yaml:"message"`
	Created      time.Time  `json:"create_date"             yaml:"create_date"`
	Applied      bool       `json:"applied"                 yaml:"applied"`
}
