package models

// RateTable holds hourly rates in minor currency units. Peak and Weekend
// are optional; zero means not configured.
type RateTable struct {
	Base     int64  `yaml:"base" json:"base"`
	Peak     int64  `yaml:"peak" json:"peak"`
	Weekend  int64  `yaml:"weekend" json:"weekend"`
	Currency string `yaml:"currency" json:"currency"`
}

// Court is a static capacity unit owned by venue configuration; the core
// reads it, never writes it.
type Court struct {
	ID       string    `yaml:"id" json:"id"`
	VenueID  string    `yaml:"venue_id" json:"venue_id"`
	Name     string    `yaml:"name" json:"name"`
	Type     string    `yaml:"type" json:"type"`
	Indoor   bool      `yaml:"indoor" json:"indoor"`
	Tags     []string  `yaml:"tags" json:"tags"`
	Rates    RateTable `yaml:"rates" json:"rates"`
	IsActive bool      `yaml:"is_active" json:"is_active"`
}

// Preferences describe how a requester would like a court picked. RequiredType
// is a hard constraint; the rest are soft and only affect scoring.
type Preferences struct {
	RequiredType     string   `json:"required_type,omitempty"`
	Indoor           *bool    `json:"indoor,omitempty"`
	Tags             []string `json:"tags,omitempty"`
	PreferredCourtID string   `json:"preferred_court_id,omitempty"`
}
