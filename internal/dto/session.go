package dto

import "time"

type CreateSessionRequest struct {
	Name      string `json:"name" example:"Movie night"`
	CreatedBy string `json:"created_by,omitempty" example:"client_abc123"`
}

type SessionResponse struct {
	ID           string    `json:"id" example:"sess_abc123"`
	Name         string    `json:"name" example:"Movie night"`
	CreatedBy    string    `json:"created_by,omitempty"`
	Status       string    `json:"status" example:"active"`
	StartedAt    time.Time `json:"started_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

type MemberResponse struct {
	ClientID    string `json:"client_id" example:"client_abc123"`
	DisplayName string `json:"display_name" example:"Anna"`
	Online      bool   `json:"online"`
}

type MembersResponse struct {
	SessionID string           `json:"session_id"`
	Members   []MemberResponse `json:"members"`
}
