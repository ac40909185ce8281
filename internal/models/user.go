package models

import "time"

type User struct {
	ID           string    `json:"userId"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Balance      int       `json:"balance"`
	CreatedAt    time.Time `json:"createdAt"`
}
