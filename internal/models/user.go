package models

import "time"

// User is an end user whose transport session the relay keeps alive.
type User struct {
	ID              int64     `json:"id"`
	Username        string    `json:"username,omitempty"`
	FirstName       string    `json:"firstName,omitempty"`
	PhoneNumber     string    `json:"phoneNumber,omitempty"`
	IsAuthenticated bool      `json:"isAuthenticated"`
	CreatedAt       time.Time `json:"createdAt"`
	LastActiveAt    time.Time `json:"lastActiveAt"`
}
