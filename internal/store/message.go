package store

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// MaxContentLength is the largest accepted message body, in characters.
	MaxContentLength = 5000

	DefaultListLimit = 100
	MaxListLimit     = 200

	unknownSender = "Unknown"
)

// MessageType classifies message content.
type MessageType string

const (
	MessageTypeText   MessageType = "TEXT"
	MessageTypeCode   MessageType = "CODE"
	MessageTypeDiff   MessageType = "DIFF"
	MessageTypeSystem MessageType = "SYSTEM"
)

// ParseMessageType returns the type named by s and whether it is known.
func ParseMessageType(s string) (MessageType, bool) {
	switch t := MessageType(s); t {
	case MessageTypeText, MessageTypeCode, MessageTypeDiff, MessageTypeSystem:
		return t, true
	default:
		return "", false
	}
}

// Message is an immutable chat message with denormalized sender fields.
type Message struct {
	ID              string
	RoomID          string
	SenderID        string
	SenderName      string
	SenderAvatarURL *string
	Type            MessageType
	Content         string
	CreatedAt       time.Time
}

// ValidationError reports malformed input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NormalizeContent trims content and enforces the length bounds.
func NormalizeContent(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", &ValidationError{Field: "content", Reason: "message content is required"}
	}
	if utf8.RuneCountInString(trimmed) > MaxContentLength {
		return "", &ValidationError{Field: "content", Reason: "message content exceeds maximum length"}
	}
	return trimmed, nil
}

// ClampLimit maps a requested page size into [1, MaxListLimit]; non-positive means default.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}

// SenderDisplay carries the user columns used to enrich messages.
type SenderDisplay struct {
	DisplayName *string
	Username    *string
	Name        *string
	AvatarURL   *string
	Image       *string
}

// Apply fills the message's sender fields.
func (d SenderDisplay) Apply(msg *Message) {
	msg.SenderName = senderName(d.DisplayName, d.Username, d.Name)
	msg.SenderAvatarURL = senderAvatar(d.AvatarURL, d.Image)
}

func senderName(candidates ...*string) string {
	for _, c := range candidates {
		if c != nil && *c != "" {
			return *c
		}
	}
	return unknownSender
}

func senderAvatar(candidates ...*string) *string {
	for _, c := range candidates {
		if c != nil && *c != "" {
			v := *c
			return &v
		}
	}
	return nil
}
