package model

import "time"

type User struct {
	ID         int64     `json:"id"`
	Mobile     string    `json:"mobile"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Address    string    `json:"address"`
	Profession string    `json:"profession"`
	Points     int       `json:"points"`
	Progress   int       `json:"progress"`
	IsActive   bool      `json:"isActive"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// ProfileProgress returns the profile-completion percentage: 25 for each of
// name, email, address and profession that is filled in.
func ProfileProgress(name, email, address, profession string) int {
	progress := 0
	for _, f := range []string{name, email, address, profession} {
		if f != "" {
			progress += 25
		}
	}
	return progress
}
