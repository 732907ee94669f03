package model

import (
	"time"
)

// SenderType identifies what kind of participant produced a message.
type SenderType string

const (
	SenderUser   SenderType = "user"
	SenderAgent  SenderType = "agent"
	SenderSystem SenderType = "system"
)

// MessageType classifies a message within the transcript.
type MessageType string

const (
	MessageNormal         MessageType = "normal"
	MessageStatus         MessageType = "status"
	MessageInsight        MessageType = "insight"
	MessageError          MessageType = "error"
	MessageQuestion       MessageType = "question"
	MessageRecommendation MessageType = "recommendation"
)

// Message is one immutable turn in a conversation. Messages are append-only;
// Seq is gapless per conversation and, together with CreatedAt, is the
// ordering contract used to reconstruct the transcript.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	Seq            int         `json:"seq"`
	SenderType     SenderType  `json:"sender_type"`
	SenderID       string      `json:"sender_id"`
	SenderName     string      `json:"sender_name"`
	SenderRole     string      `json:"sender_role,omitempty"`
	Content        string      `json:"content"`
	Type           MessageType `json:"message_type"`
	Tokens         int         `json:"tokens"`
	ToolCalls      int         `json:"tool_calls,omitempty"`
	ResponseTimeMs *int64      `json:"response_time_ms,omitempty"`
	Mentions       []string    `json:"mentions,omitempty"`
	ReplyTo        string      `json:"reply_to,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// AppendMessageInput carries the caller-supplied fields of a new message.
type AppendMessageInput struct {
	SenderType     SenderType  `json:"sender_type"`
	SenderID       string      `json:"sender_id"`
	SenderName     string      `json:"sender_name"`
	SenderRole     string      `json:"sender_role,omitempty"`
	Content        string      `json:"content"`
	Type           MessageType `json:"message_type,omitempty"`
	Tokens         int         `json:"tokens,omitempty"`
	ToolCalls      int         `json:"tool_calls,omitempty"`
	ResponseTimeMs *int64      `json:"response_time_ms,omitempty"`
	Mentions       []string    `json:"mentions,omitempty"`
	ReplyTo        string      `json:"reply_to,omitempty"`
}

// SendMessageRequest is the request to post a user message.
type SendMessageRequest struct {
	Content  string   `json:"content"`
	Mentions []string `json:"mentions,omitempty"`
	ReplyTo  string   `json:"reply_to,omitempty"`
}

// SendMessageResponse is returned after a user message is accepted. The
// orchestration round it triggers runs asynchronously.
type SendMessageResponse struct {
	Message *Message `json:"message"`
	RoundID string   `json:"round_id,omitempty"`
}

// ListMessagesResponse is the response for listing messages.
type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
	Total    int       `json:"total"`
}

// MessageFilter narrows a message listing.
type MessageFilter struct {
	ConversationID string
	SenderType     SenderType
	MessageType    MessageType
	DateFrom       *time.Time
	DateTo         *time.Time
}
