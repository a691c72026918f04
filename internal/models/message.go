// Package models defines the domain types for Inkwell.
package models

import "time"

// Message is one captured chat entry. ID is the backing kernel block id,
// empty until the kernel acknowledges creation.
type Message struct {
	ID          string `json:"id"`
	Content     string `json:"content"`
	DisplayTime string `json:"display_time"`
	ISOTime     string `json:"iso_time"`
}

// NewMessage builds a Message from content and its creation time.
// DisplayTime is always derived from the same instant as ISOTime.
func NewMessage(id, content string, at time.Time) Message {
	return Message{
		ID:          id,
		Content:     content,
		DisplayTime: at.Format("15:04"),
		ISOTime:     at.Format(time.RFC3339),
	}
}

// DiaryRun records one narrative generation run.
type DiaryRun struct {
	ID           string    `json:"id"`
	Date         string    `json:"date"`
	MessageCount int       `json:"message_count"`
	Narrative    string    `json:"narrative"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}
