package models

const (
	RoleMember = 1
	RoleOwner  = 2
)

// Group is the display profile of a group conversation.
type Group struct {
	ID        int64  `db:"id" json:"id"`
	Name      string `db:"name" json:"name"`
	AvatarURL string `db:"avatar_url" json:"avatar_url"`
	Owner     string `db:"owner" json:"owner"`
	Created   int64  `db:"created" json:"created"`
}

// GroupMember is the durable membership of an identity in a group.
// RecTime is the watermark used for unread counting.
type GroupMember struct {
	GroupID int64  `db:"group_id" json:"group_id"`
	Member  string `db:"member" json:"member"`
	Role    int    `db:"role" json:"role"`
	RecTime int64  `db:"rec_time" json:"rec_time"`
	Left    bool   `db:"left_flag" json:"left"`
}

// Membership joins an active GroupMember with its group's profile.
type Membership struct {
	GroupID   int64  `db:"group_id" json:"group_id"`
	Name      string `db:"name" json:"name"`
	AvatarURL string `db:"avatar_url" json:"avatar_url"`
	Role      int    `db:"role" json:"role"`
	RecTime   int64  `db:"rec_time" json:"rec_time"`
}
