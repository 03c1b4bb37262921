package domain

import "time"

// UserProfile is a previously confirmed personal-details record keyed by
// chat user id. The intake flow reads through it to skip redundant data
// collection; it changes only on explicit user confirmation.
type UserProfile struct {
	UserID      string
	FullName    string
	Phone       string
	Address     string
	ConfirmedAt time.Time
}

// Complete reports whether the profile has every field intake requires.
func (p UserProfile) Complete() bool {
	return p.FullName != "" && p.Phone != "" && p.Address != ""
}
