// Package clinic holds the clinic profile and the admin dashboard that
// front-desk staff open first thing in the morning.
package clinic

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Profile is the clinic's display and scheduling identity. A deployment
// serves a single clinic, so the profile lives under one fixed key.
type Profile struct {
	Name          string `json:"name"`
	Timezone      string `json:"timezone"`
	Email         string `json:"email,omitempty"`
	Phone         string `json:"phone,omitempty"`
	EmergencyLine string `json:"emergency_line,omitempty"`
	Address       string `json:"address,omitempty"`
	City          string `json:"city,omitempty"`
	State         string `json:"state,omitempty"`
	ZipCode       string `json:"zip_code,omitempty"`
	WebsiteURL    string `json:"website_url,omitempty"`
	// ReminderLeadHours is how far ahead of an appointment the first
	// reminder goes out. The dashboard backlog uses the same window.
	ReminderLeadHours int `json:"reminder_lead_hours"`
}

// DefaultProfile returns the configuration a fresh deployment runs with
// until an admin saves their own.
func DefaultProfile() *Profile {
	return &Profile{
		Name:              "Pawsitive Vet Clinic",
		Timezone:          "UTC",
		ReminderLeadHours: 24,
	}
}

// Location resolves the profile timezone, falling back to UTC when the
// stored name no longer loads.
func (p *Profile) Location() *time.Location {
	if p == nil || p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ReminderLead returns the reminder window as a duration. Unset or
// negative values fall back to 24 hours.
func (p *Profile) ReminderLead() time.Duration {
	if p == nil || p.ReminderLeadHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(p.ReminderLeadHours) * time.Hour
}

const profileKey = "clinic:profile"

// Store persists the clinic profile.
type Store struct {
	redis *redis.Client
}

// NewStore creates a profile store over redis.
func NewStore(redisClient *redis.Client) *Store {
	return &Store{redis: redisClient}
}

// Get retrieves the profile, returning the default when none is saved yet.
func (s *Store) Get(ctx context.Context) (*Profile, error) {
	data, err := s.redis.Get(ctx, profileKey).Bytes()
	if err == redis.Nil {
		return DefaultProfile(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("clinic: get profile: %w", err)
	}

	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("clinic: unmarshal profile: %w", err)
	}
	return &p, nil
}

// Set saves the profile.
func (s *Store) Set(ctx context.Context, p *Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("clinic: marshal profile: %w", err)
	}
	if err := s.redis.Set(ctx, profileKey, data, 0).Err(); err != nil {
		return fmt.Errorf("clinic: set profile: %w", err)
	}
	return nil
}
