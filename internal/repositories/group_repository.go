package repositories

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"github.com/jmoiron/sqlx"

	"chat-sync/internal/apperrors"
	"chat-sync/internal/models"
)

var (
	ErrGroupNotFound  = errors.New("group not found")
	ErrMemberNotFound = errors.New("group member not found")
)

// GroupRepository persists groups, memberships and per-member watermarks.
type GroupRepository interface {
	CreateGroup(ctx context.Context, owner, name, avatarURL string, members []string, created int64) (models.Group, error)
	GetGroup(ctx context.Context, groupID int64) (models.Group, error)
	GetMember(ctx context.Context, groupID int64, member string) (models.GroupMember, error)
	IsMember(ctx context.Context, groupID int64, member string) (bool, error)
	ListMemberships(ctx context.Context, member string) ([]models.Membership, error)
	LeaveGroup(ctx context.Context, groupID int64, member string) error
	UpdateWatermark(ctx context.Context, member string, groupID int64, timestamp int64) (int64, error)
	UnreadCount(ctx context.Context, member string, groupID int64) (int64, error)
}

// GroupRepo is a sqlx implementation of GroupRepository.
type GroupRepo struct {
	db *sqlx.DB
}

// NewGroupRepo constructs a GroupRepo.
func NewGroupRepo(db *sqlx.DB) *GroupRepo {
	return &GroupRepo{db: db}
}

// CreateGroup creates a group and all of its memberships atomically. The owner is always a member.
func (r *GroupRepo) CreateGroup(ctx context.Context, owner, name, avatarURL string, members []string, created int64) (group models.Group, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Group{}, apperrors.NewStorageError(err, "begin create group")
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	group = models.Group{Name: name, AvatarURL: avatarURL, Owner: owner, Created: created}
	if err = tx.QueryRowxContext(ctx,
		tx.Rebind(`INSERT INTO chat_group (name, avatar_url, owner, created) VALUES (?, ?, ?, ?) RETURNING id`),
		name, avatarURL, owner, created,
	).Scan(&group.ID); err != nil {
		return models.Group{}, apperrors.NewStorageError(err, "insert group")
	}

	// dedupe members, owner first
	memberSet := map[string]struct{}{}
	ids := make([]string, 0, len(members))
	for _, id := range members {
		if id == "" || id == owner {
			continue
		}
		if _, ok := memberSet[id]; !ok {
			memberSet[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	insert := tx.Rebind(`INSERT INTO group_member (group_id, member, role, rec_time, left_flag) VALUES (?, ?, ?, ?, 0)`)
	if _, err = tx.ExecContext(ctx, insert, group.ID, owner, models.RoleOwner, created); err != nil {
		return models.Group{}, apperrors.NewStorageError(err, "insert group owner")
	}
	for _, id := range ids {
		if _, err = tx.ExecContext(ctx, insert, group.ID, id, models.RoleMember, created); err != nil {
			return models.Group{}, apperrors.NewStorageError(err, "insert group member")
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Group{}, apperrors.NewStorageError(err, "commit create group")
	}
	return group, nil
}

// GetGroup fetches a single group.
func (r *GroupRepo) GetGroup(ctx context.Context, groupID int64) (models.Group, error) {
	var group models.Group
	err := r.db.GetContext(ctx, &group, r.db.Rebind(`SELECT id, name, avatar_url, owner, created FROM chat_group WHERE id = ?`), groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Group{}, apperrors.Wrap(ErrGroupNotFound, apperrors.ErrCodeNotFound, "get group").WithContext("group_id", groupID)
	}
	if err != nil {
		return models.Group{}, apperrors.NewStorageError(err, "get group")
	}
	return group, nil
}

// GetMember fetches a membership row regardless of its left flag.
func (r *GroupRepo) GetMember(ctx context.Context, groupID int64, member string) (models.GroupMember, error) {
	var gm models.GroupMember
	err := r.db.GetContext(ctx, &gm,
		r.db.Rebind(`SELECT group_id, member, role, rec_time, left_flag FROM group_member WHERE group_id = ? AND member = ?`),
		groupID, member,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.GroupMember{}, apperrors.Wrap(ErrMemberNotFound, apperrors.ErrCodeNotFound, "get group member").WithContext("group_id", groupID)
	}
	if err != nil {
		return models.GroupMember{}, apperrors.NewStorageError(err, "get group member")
	}
	return gm, nil
}

// IsMember reports whether member currently belongs to the group.
func (r *GroupRepo) IsMember(ctx context.Context, groupID int64, member string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		r.db.Rebind(`SELECT EXISTS(SELECT 1 FROM group_member WHERE group_id = ? AND member = ? AND left_flag = 0)`),
		groupID, member,
	)
	if err != nil {
		return false, apperrors.NewStorageError(err, "check membership")
	}
	return exists, nil
}

// ListMemberships returns the groups member has not left, with their display profile.
func (r *GroupRepo) ListMemberships(ctx context.Context, member string) ([]models.Membership, error) {
	var memberships []models.Membership
	err := r.db.SelectContext(ctx, &memberships,
		r.db.Rebind(`SELECT gm.group_id, g.name, g.avatar_url, gm.role, gm.rec_time
            FROM group_member gm
            INNER JOIN chat_group g ON g.id = gm.group_id
            WHERE gm.member = ? AND gm.left_flag = 0
            ORDER BY gm.group_id`),
		member,
	)
	if err != nil {
		return nil, apperrors.NewStorageError(err, "list memberships")
	}
	return memberships, nil
}

// LeaveGroup flags the membership as left. The row is kept so the watermark survives.
func (r *GroupRepo) LeaveGroup(ctx context.Context, groupID int64, member string) error {
	res, err := r.db.ExecContext(ctx,
		r.db.Rebind(`UPDATE group_member SET left_flag = 1 WHERE group_id = ? AND member = ?`),
		groupID, member,
	)
	if err != nil {
		return apperrors.NewStorageError(err, "leave group")
	}
	count, err := res.RowsAffected()
	if err != nil {
		return apperrors.NewStorageError(err, "leave group")
	}
	if count == 0 {
		return apperrors.Wrap(ErrMemberNotFound, apperrors.ErrCodeNotFound, "leave group").WithContext("group_id", groupID)
	}
	return nil
}

// UpdateWatermark moves the member's watermark forward to timestamp and returns the stored value.
// Attempts to move it backward leave the stored watermark unchanged.
func (r *GroupRepo) UpdateWatermark(ctx context.Context, member string, groupID int64, timestamp int64) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		r.db.Rebind(`UPDATE group_member SET rec_time = ? WHERE group_id = ? AND member = ? AND rec_time < ?`),
		timestamp, groupID, member, timestamp,
	)
	if err != nil {
		return 0, apperrors.NewStorageError(err, "update watermark")
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, apperrors.NewStorageError(err, "update watermark")
	}
	if count > 0 {
		return timestamp, nil
	}

	gm, err := r.GetMember(ctx, groupID, member)
	if err != nil {
		return 0, err
	}
	return gm.RecTime, nil
}

// UnreadCount counts group messages created at or after the member's watermark.
func (r *GroupRepo) UnreadCount(ctx context.Context, member string, groupID int64) (int64, error) {
	gm, err := r.GetMember(ctx, groupID, member)
	if err != nil {
		return 0, err
	}

	var count int64
	err = r.db.GetContext(ctx, &count,
		r.db.Rebind(`SELECT COUNT(*) FROM message WHERE group_id = ? AND created >= ?`),
		groupID, gm.RecTime,
	)
	if err != nil {
		return 0, apperrors.NewStorageError(err, "count group unread")
	}
	return count, nil
}
