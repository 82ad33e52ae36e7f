package entities

import "time"

// User is the read-only snapshot of a user record used to enrich fan-out
// payloads and to denormalize display names onto memberships.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Username  string    `json:"username,omitempty"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	ImageURL  string    `json:"imageUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// DisplayName returns the first non-empty of name, username, email and phone.
func (u User) DisplayName() string {
	for _, candidate := range []string{u.Name, u.Username, u.Email, u.Phone} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}
