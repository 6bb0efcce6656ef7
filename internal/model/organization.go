package model

import "time"

// Organization is a workspace the viewer belongs to. Cached as JSON.
type Organization struct {
	Login       string `json:"login"`
	AvatarURL   string `json:"avatar_url"`
	Description string `json:"description,omitempty"`
}

// RateLimit is the budget reported by the API on its most recent response.
type RateLimit struct {
	Resource  string // "core", "graphql", ...
	Remaining int
	Limit     int
	Reset     time.Time // zero when not reported
}
