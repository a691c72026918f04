package api

import "github.com/soramir/inkwell/internal/models"

// SendMessageRequest is the request body for capturing a message.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// MessageListResponse wraps the captured message list.
type MessageListResponse struct {
	Messages []models.Message `json:"messages"`
	Total    int              `json:"total"`
}

// DiaryRunListResponse wraps past diary generation runs.
type DiaryRunListResponse struct {
	Runs []models.DiaryRun `json:"runs"`
}
