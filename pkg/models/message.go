package models

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the sender of a conversation message.
type Role string

const (
	// RoleStudent marks a message sent by the student.
	RoleStudent Role = "student"
	// RoleTutor marks a message sent by the tutor.
	RoleTutor Role = "tutor"
)

// Valid returns true if the role is a known value.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleTutor
}

// Message is a single entry in the conversation history.
type Message struct {
	// ID is the unique identifier for this message.
	ID string `json:"id"`
	// Role is the sender of the message.
	Role Role `json:"role"`
	// Content is the message text.
	Content string `json:"content"`
	// Timestamp is when the message was created.
	Timestamp time.Time `json:"timestamp"`
}

// NewStudentMessage creates a student message with a fresh ID and timestamp.
func NewStudentMessage(content string) Message {
	return Message{
		ID:        "msg_" + uuid.New().String()[:12],
		Role:      RoleStudent,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// NewTutorMessage creates a tutor message with a fresh ID and timestamp.
func NewTutorMessage(content string) Message {
	return Message{
		ID:        "msg_" + uuid.New().String()[:12],
		Role:      RoleTutor,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}
