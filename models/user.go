package models

// User is a player account. Username is the identity carried in tokens and
// in every match/queue reference.
type User struct {
	Username string `gorm:"primaryKey;type:varchar(255)" json:"username"`
	Password string `gorm:"not null" json:"-"` // bcrypt hash

	Timestamps
}

// PublicUser is the only user shape returned to clients.
type PublicUser struct {
	Username string `json:"username"`
}

func (u User) Public() PublicUser {
	return PublicUser{Username: u.Username}
}
