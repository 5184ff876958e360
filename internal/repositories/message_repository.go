package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"chat-sync/internal/apperrors"
	"chat-sync/internal/models"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrReceiptNotFound = errors.New("receipt not found")
)

const messageColumns = `id, sender, recipient, group_id, content, type, status, created`

// MessageRepository persists messages and their read receipts.
type MessageRepository interface {
	WritePrivateMessage(ctx context.Context, sender, recipient, content string, contentType models.ContentType, created int64) (models.Message, error)
	WriteGroupMessage(ctx context.Context, sender string, groupID int64, content string, contentType models.ContentType, created int64) (models.Message, error)
	MarkRead(ctx context.Context, recipient string, messageID int64) error
	MarkAllRead(ctx context.Context, recipient, counterpart string) (int64, error)
	GetMessages(ctx context.Context, ids []int64) ([]models.Message, error)
	PrivateUnreadCounts(ctx context.Context, recipient string) (map[string]int64, error)
	LatestGroupMessage(ctx context.Context, groupID int64) (models.Message, error)
	ListPrivateHistory(ctx context.Context, identity, counterpart string, limit int) ([]models.Message, error)
	ListGroupHistory(ctx context.Context, groupID int64, limit int) ([]models.Message, error)
	ReceiptStatuses(ctx context.Context, messageIDs []int64) (map[int64]int, error)
}

// MessageRepo is a sqlx implementation of MessageRepository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// WritePrivateMessage stores a private message and its unread receipt in one transaction.
func (r *MessageRepo) WritePrivateMessage(ctx context.Context, sender, recipient, content string, contentType models.ContentType, created int64) (msg models.Message, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, apperrors.NewStorageError(err, "begin private message")
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	msg = models.Message{
		Sender:    sender,
		Recipient: &recipient,
		Content:   content,
		Type:      contentType,
		Status:    models.MessageStatusSent,
		Created:   created,
	}
	if err = tx.QueryRowxContext(ctx,
		tx.Rebind(`INSERT INTO message (sender, recipient, content, type, status, created) VALUES (?, ?, ?, ?, ?, ?) RETURNING id`),
		sender, recipient, content, contentType, models.MessageStatusSent, created,
	).Scan(&msg.ID); err != nil {
		return models.Message{}, apperrors.NewStorageError(err, "insert private message")
	}

	res, err := tx.ExecContext(ctx,
		tx.Rebind(`INSERT INTO receipt (message_id, recipient, status, created) VALUES (?, ?, ?, ?)`),
		msg.ID, recipient, models.ReceiptUnread, created,
	)
	if err != nil {
		return models.Message{}, apperrors.NewStorageError(err, "insert receipt")
	}
	if err = expectOneRow(res, "insert receipt"); err != nil {
		return models.Message{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.Message{}, apperrors.NewStorageError(err, "commit private message")
	}
	return msg, nil
}

// WriteGroupMessage stores a message addressed to a group. Group messages have no receipts.
func (r *MessageRepo) WriteGroupMessage(ctx context.Context, sender string, groupID int64, content string, contentType models.ContentType, created int64) (models.Message, error) {
	msg := models.Message{
		Sender:  sender,
		GroupID: &groupID,
		Content: content,
		Type:    contentType,
		Status:  models.MessageStatusSent,
		Created: created,
	}
	err := r.db.QueryRowxContext(ctx,
		r.db.Rebind(`INSERT INTO message (sender, group_id, content, type, status, created) VALUES (?, ?, ?, ?, ?, ?) RETURNING id`),
		sender, groupID, content, contentType, models.MessageStatusSent, created,
	).Scan(&msg.ID)
	if err != nil {
		return models.Message{}, apperrors.NewStorageError(err, "insert group message")
	}
	return msg, nil
}

// MarkRead marks the recipient's receipt for messageID as read. Already-read receipts are left untouched.
func (r *MessageRepo) MarkRead(ctx context.Context, recipient string, messageID int64) error {
	res, err := r.db.ExecContext(ctx,
		r.db.Rebind(`UPDATE receipt SET status = ? WHERE message_id = ? AND recipient = ? AND status = ?`),
		models.ReceiptRead, messageID, recipient, models.ReceiptUnread,
	)
	if err != nil {
		return apperrors.NewStorageError(err, "mark read")
	}
	count, err := res.RowsAffected()
	if err != nil {
		return apperrors.NewStorageError(err, "mark read")
	}
	if count > 0 {
		return nil
	}

	var exists bool
	err = r.db.GetContext(ctx, &exists,
		r.db.Rebind(`SELECT EXISTS(SELECT 1 FROM receipt WHERE message_id = ? AND recipient = ?)`),
		messageID, recipient,
	)
	if err != nil {
		return apperrors.NewStorageError(err, "check receipt")
	}
	if !exists {
		return apperrors.Wrap(ErrReceiptNotFound, apperrors.ErrCodeNotFound, "mark read").WithContext("message_id", messageID)
	}
	return nil
}

// MarkAllRead marks every unread receipt sent by counterpart to recipient as read.
func (r *MessageRepo) MarkAllRead(ctx context.Context, recipient, counterpart string) (count int64, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, apperrors.NewStorageError(err, "begin mark all read")
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		tx.Rebind(`UPDATE receipt SET status = ?
            WHERE recipient = ? AND status = ?
            AND message_id IN (SELECT id FROM message WHERE sender = ? AND recipient = ?)`),
		models.ReceiptRead, recipient, models.ReceiptUnread, counterpart, recipient,
	)
	if err != nil {
		return 0, apperrors.NewStorageError(err, "mark all read")
	}
	if count, err = res.RowsAffected(); err != nil {
		return 0, apperrors.NewStorageError(err, "mark all read")
	}

	if err = tx.Commit(); err != nil {
		return 0, apperrors.NewStorageError(err, "commit mark all read")
	}
	return count, nil
}

// GetMessages loads messages by id. Missing ids are skipped.
func (r *MessageRepo) GetMessages(ctx context.Context, ids []int64) ([]models.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT `+messageColumns+` FROM message WHERE id IN (?)`, ids)
	if err != nil {
		return nil, apperrors.NewStorageError(err, "build message query")
	}
	var msgs []models.Message
	if err := r.db.SelectContext(ctx, &msgs, r.db.Rebind(query), args...); err != nil {
		return nil, apperrors.NewStorageError(err, "load messages")
	}
	return msgs, nil
}

// PrivateUnreadCounts returns unread receipt counts for recipient keyed by sender.
func (r *MessageRepo) PrivateUnreadCounts(ctx context.Context, recipient string) (map[string]int64, error) {
	var rows []struct {
		Counterpart string `db:"counterpart"`
		Unread      int64  `db:"unread"`
	}
	err := r.db.SelectContext(ctx, &rows,
		r.db.Rebind(`SELECT m.sender AS counterpart, COUNT(*) AS unread
            FROM receipt rc
            INNER JOIN message m ON m.id = rc.message_id
            WHERE rc.recipient = ? AND rc.status = ?
            GROUP BY m.sender`),
		recipient, models.ReceiptUnread,
	)
	if err != nil {
		return nil, apperrors.NewStorageError(err, "count unread receipts")
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Counterpart] = row.Unread
	}
	return counts, nil
}

// LatestGroupMessage returns the most recent message of a group.
func (r *MessageRepo) LatestGroupMessage(ctx context.Context, groupID int64) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg,
		r.db.Rebind(`SELECT `+messageColumns+` FROM message WHERE group_id = ? ORDER BY created DESC, id DESC LIMIT 1`),
		groupID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, apperrors.Wrap(ErrMessageNotFound, apperrors.ErrCodeNotFound, "latest group message")
	}
	if err != nil {
		return models.Message{}, apperrors.NewStorageError(err, "latest group message")
	}
	return msg, nil
}

// ListPrivateHistory returns up to limit most recent messages between two identities, oldest first.
func (r *MessageRepo) ListPrivateHistory(ctx context.Context, identity, counterpart string, limit int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs,
		r.db.Rebind(`SELECT `+messageColumns+` FROM message
            WHERE (sender = ? AND recipient = ?) OR (sender = ? AND recipient = ?)
            ORDER BY created DESC, id DESC LIMIT ?`),
		identity, counterpart, counterpart, identity, limit,
	)
	if err != nil {
		return nil, apperrors.NewStorageError(err, "load private history")
	}
	reverse(msgs)
	return msgs, nil
}

// ListGroupHistory returns up to limit most recent group messages, oldest first.
func (r *MessageRepo) ListGroupHistory(ctx context.Context, groupID int64, limit int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs,
		r.db.Rebind(`SELECT `+messageColumns+` FROM message WHERE group_id = ? ORDER BY created DESC, id DESC LIMIT ?`),
		groupID, limit,
	)
	if err != nil {
		return nil, apperrors.NewStorageError(err, "load group history")
	}
	reverse(msgs)
	return msgs, nil
}

// ReceiptStatuses returns the receipt status of each private message id.
func (r *MessageRepo) ReceiptStatuses(ctx context.Context, messageIDs []int64) (map[int64]int, error) {
	statuses := make(map[int64]int, len(messageIDs))
	if len(messageIDs) == 0 {
		return statuses, nil
	}
	query, args, err := sqlx.In(`SELECT message_id, status FROM receipt WHERE message_id IN (?)`, messageIDs)
	if err != nil {
		return nil, apperrors.NewStorageError(err, "build receipt query")
	}
	var rows []models.Receipt
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, apperrors.NewStorageError(err, "load receipts")
	}
	for _, row := range rows {
		statuses[row.MessageID] = row.Status
	}
	return statuses, nil
}

func expectOneRow(res sql.Result, op string) error {
	count, err := res.RowsAffected()
	if err != nil {
		return apperrors.NewStorageError(err, op)
	}
	if count != 1 {
		return apperrors.New(apperrors.ErrCodeStorage, op+": unexpected affected row count").WithContext("rows", count)
	}
	return nil
}

func reverse(msgs []models.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
