package domain

import "time"

type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Seller is a point-of-sale operator. PINHash is a bcrypt hash of the
// operator identifier typed at the terminal.
type Seller struct {
	ID      string  `json:"id"`
	OrgID   string  `json:"org_id"`
	Name    string  `json:"name"`
	PINHash string  `json:"-"`
	Active  bool    `json:"active"`
	UserID  *string `json:"user_id,omitempty"` // platform membership, when linked
}

type Client struct {
	ID    string `json:"id"`
	OrgID string `json:"org_id"`
	Name  string `json:"name"`
}
