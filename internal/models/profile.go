package models

// Profile is the display profile of an identity.
type Profile struct {
	Identity    string `db:"identity" json:"identity"`
	DisplayName string `db:"display_name" json:"display_name"`
	AvatarURL   string `db:"avatar_url" json:"avatar_url"`
	LastSeen    int64  `db:"last_seen" json:"last_seen"`
}

// Name returns the display name, falling back to the identity.
func (p Profile) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Identity
}
