package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/andrewvu270/AgentDeck/internal/apperr"
	"github.com/andrewvu270/AgentDeck/internal/model"
)

// AppendMessage inserts a message and advances the conversation's aggregate
// counters in one transaction: the message row, message_count, total_tokens
// and tool_call_count move together or not at all. The per-conversation seq
// is derived from message_count inside the same transaction, which makes the
// append order gapless and the subsequent read-after-write deterministic.
func (s *Store) AppendMessage(ctx context.Context, conversationID, userID string, input *model.AppendMessageInput) (*model.Message, error) {
	msgType := input.Type
	if msgType == "" {
		msgType = model.MessageNormal
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("append tx: %w", err)
	}
	defer tx.Rollback()

	var count int
	var status string
	err = tx.QueryRowContext(ctx,
		`SELECT message_count, status FROM conversations WHERE id = ? AND user_id = ?`,
		conversationID, userID).Scan(&count, &status)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("conversation")
		}
		return nil, fmt.Errorf("read aggregates: %w", err)
	}
	if st := model.ConversationStatus(status); st == model.ConversationCompleted || st == model.ConversationArchived {
		return nil, apperr.Validation("conversation is " + status)
	}

	msg := &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		Seq:            count + 1,
		SenderType:     input.SenderType,
		SenderID:       input.SenderID,
		SenderName:     input.SenderName,
		SenderRole:     input.SenderRole,
		Content:        input.Content,
		Type:           msgType,
		Tokens:         input.Tokens,
		ToolCalls:      input.ToolCalls,
		ResponseTimeMs: input.ResponseTimeMs,
		Mentions:       input.Mentions,
		ReplyTo:        input.ReplyTo,
		CreatedAt:      time.Now().UTC(),
	}

	mentions, err := json.Marshal(msg.Mentions)
	if err != nil {
		return nil, fmt.Errorf("marshal mentions: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (
			id, conversation_id, seq, sender_type, sender_id, sender_name,
			sender_role, content, message_type, tokens, tool_calls,
			response_ms, mentions, reply_to, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, msg.Seq, string(msg.SenderType),
		msg.SenderID, msg.SenderName, msg.SenderRole, msg.Content,
		string(msg.Type), msg.Tokens, msg.ToolCalls, msg.ResponseTimeMs,
		string(mentions), msg.ReplyTo, fmtTime(msg.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE conversations SET
			message_count = message_count + 1,
			total_tokens = total_tokens + ?,
			tool_call_count = tool_call_count + ?,
			updated_at = ?
		 WHERE id = ?`,
		msg.Tokens, msg.ToolCalls, fmtTime(msg.CreatedAt), conversationID)
	if err != nil {
		return nil, fmt.Errorf("update aggregates: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit append: %w", err)
	}
	return msg, nil
}

const messageCols = `id, conversation_id, seq, sender_type, sender_id,
	sender_name, sender_role, content, message_type, tokens, tool_calls,
	response_ms, mentions, reply_to, created_at`

const messageColsM = `m.id, m.conversation_id, m.seq, m.sender_type,
	m.sender_id, m.sender_name, m.sender_role, m.content, m.message_type,
	m.tokens, m.tool_calls, m.response_ms, m.mentions, m.reply_to,
	m.created_at`

// ListHistory returns the conversation transcript in creation order. This is
// the ordering contract every later turn's context is built from.
func (s *Store) ListHistory(ctx context.Context, conversationID, userID string, limit int) ([]model.Message, error) {
	if _, err := s.GetConversation(ctx, conversationID, userID); err != nil {
		return nil, err
	}

	query := `SELECT ` + messageCols + ` FROM messages WHERE conversation_id = ? ORDER BY seq ASC`
	args := []any{conversationID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

// SearchMessages finds messages across the user's conversations by content
// substring, newest first.
func (s *Store) SearchMessages(ctx context.Context, userID, term string, limit int) ([]model.Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColsM+`
		 FROM messages m
		 JOIN conversations c ON c.id = m.conversation_id
		 WHERE c.user_id = ? AND m.content LIKE ? COLLATE NOCASE
		 ORDER BY m.created_at DESC LIMIT ?`,
		userID, "%"+term+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

// FilterMessages lists the user's messages matching the filter, newest first.
func (s *Store) FilterMessages(ctx context.Context, userID string, filter model.MessageFilter, limit int) ([]model.Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := `SELECT ` + messageColsM + `
		 FROM messages m
		 JOIN conversations c ON c.id = m.conversation_id
		 WHERE c.user_id = ?`
	args := []any{userID}

	if filter.ConversationID != "" {
		query += ` AND m.conversation_id = ?`
		args = append(args, filter.ConversationID)
	}
	if filter.SenderType != "" {
		query += ` AND m.sender_type = ?`
		args = append(args, string(filter.SenderType))
	}
	if filter.MessageType != "" {
		query += ` AND m.message_type = ?`
		args = append(args, string(filter.MessageType))
	}
	if filter.DateFrom != nil {
		query += ` AND m.created_at >= ?`
		args = append(args, fmtTime(*filter.DateFrom))
	}
	if filter.DateTo != nil {
		query += ` AND m.created_at <= ?`
		args = append(args, fmtTime(*filter.DateTo))
	}
	query += ` ORDER BY m.created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("filter messages: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

// ExportConversation bundles a conversation with its full ordered transcript.
func (s *Store) ExportConversation(ctx context.Context, conversationID, userID string) (*model.ConversationExport, error) {
	conv, err := s.GetConversation(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.ListHistory(ctx, conversationID, userID, 0)
	if err != nil {
		return nil, err
	}
	return &model.ConversationExport{
		Conversation: *conv,
		Messages:     msgs,
		ExportedAt:   time.Now().UTC(),
	}, nil
}

// RecordToolInvocation persists the audit row for one Tool Bridge call.
func (s *Store) RecordToolInvocation(ctx context.Context, inv *model.ToolInvocation) error {
	args, err := json.Marshal(inv.Args)
	if err != nil {
		return fmt.Errorf("marshal args: %w", err)
	}
	result, err := json.Marshal(inv.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	status := "success"
	if !inv.Result.OK {
		status = "error"
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tool_invocations (id, agent_id, tool_name, args, result, status, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.AgentID, inv.ToolName, string(args), string(result),
		status, inv.DurationMs, fmtTime(inv.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert tool invocation: %w", err)
	}
	return nil
}

func collectMessages(rows *sql.Rows) ([]model.Message, error) {
	var msgs []model.Message
	for rows.Next() {
		var msg model.Message
		var senderType, msgType, mentions, created string
		var responseMs sql.NullInt64

		err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Seq, &senderType,
			&msg.SenderID, &msg.SenderName, &msg.SenderRole, &msg.Content,
			&msgType, &msg.Tokens, &msg.ToolCalls, &responseMs, &mentions,
			&msg.ReplyTo, &created)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}

		msg.SenderType = model.SenderType(senderType)
		msg.Type = model.MessageType(msgType)
		msg.CreatedAt = parseTime(created)
		if responseMs.Valid {
			v := responseMs.Int64
			msg.ResponseTimeMs = &v
		}
		if err := json.Unmarshal([]byte(mentions), &msg.Mentions); err != nil {
			return nil, fmt.Errorf("unmarshal mentions: %w", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}
