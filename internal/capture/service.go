// Package capture drives the user-facing flows: loading today's
// messages, appending a new one, and turning the day's messages into a
// diary entry in the kernel's diary database.
//
// The service owns the in-memory message list and the resolved session
// ids; no other component mutates them. Background failures (initial
// load) degrade silently after logging, user-initiated failures are
// surfaced to the caller.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/soramir/inkwell/internal/ai"
	"github.com/soramir/inkwell/internal/apperr"
	"github.com/soramir/inkwell/internal/messages"
	"github.com/soramir/inkwell/internal/models"
	"github.com/soramir/inkwell/internal/provision"
	"github.com/soramir/inkwell/internal/runlog"
	"github.com/soramir/inkwell/internal/siyuan"
)

// ProviderSettings is a snapshot of the active AI provider settings.
type ProviderSettings struct {
	Provider     string
	BaseURL      string
	APIKey       string
	Model        string
	SystemPrompt string
}

// EventCallback is called after a successful capture-side mutation.
// kind is "message.created" or "diary.generated".
type EventCallback func(kind string, data any)

// Service is the capture and generation orchestrator.
type Service struct {
	client   *siyuan.Client
	adapter  *messages.Adapter
	engine   *provision.Engine
	runs     *runlog.DB // may be nil when the run log is disabled
	settings func() ProviderSettings
	events   EventCallback // may be nil
	now      func() time.Time

	flight singleflight.Group

	mu         sync.Mutex
	notebookID string
	docID      string
	messages   []models.Message
}

// NewService creates the orchestrator. settings must return the current
// provider settings; it is consulted on every generation run so live
// config reloads take effect without restart.
func NewService(client *siyuan.Client, adapter *messages.Adapter, engine *provision.Engine, runs *runlog.DB, settings func() ProviderSettings, events EventCallback) *Service {
	return &Service{
		client:   client,
		adapter:  adapter,
		engine:   engine,
		runs:     runs,
		settings: settings,
		events:   events,
		now:      time.Now,
	}
}

// Initialize resolves the notebook and today's document and loads the
// captured messages. Callers treat a failure as a silent empty state.
func (s *Service) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureSessionLocked(ctx, true)
}

// ensureSessionLocked resolves the session ids, and optionally reloads
// the message list. Caller must hold s.mu.
func (s *Service) ensureSessionLocked(ctx context.Context, reload bool) error {
	if s.notebookID == "" {
		id, err := s.engine.EnsureNotebook(ctx)
		if err != nil {
			return fmt.Errorf("ensure notebook: %w", err)
		}
		s.notebookID = id
	}
	if s.docID == "" {
		id, err := s.engine.EnsureTodayDocument(ctx, s.notebookID)
		if err != nil {
			return fmt.Errorf("ensure today document: %w", err)
		}
		s.docID = id
		reload = true
	}
	if reload {
		msgs, err := s.adapter.Load(ctx, s.docID)
		if err != nil {
			return fmt.Errorf("load messages: %w", err)
		}
		s.messages = msgs
	}
	return nil
}

// Messages returns a copy of the in-memory message list, in send order.
func (s *Service) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Send captures one message. Blank or whitespace-only content is a
// no-op returning a zero message. Sends from the same service are
// serialized; the kernel round-trip itself is not protected against a
// second concurrent agent.
func (s *Service) Send(ctx context.Context, content string) (models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Message{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureSessionLocked(ctx, false); err != nil {
		return models.Message{}, err
	}

	msg, err := s.adapter.Append(ctx, s.docID, content, s.now())
	if err != nil {
		return models.Message{}, fmt.Errorf("append message: %w", err)
	}
	s.messages = append(s.messages, msg)

	if s.events != nil {
		s.events("message.created", msg)
	}
	return msg, nil
}

// GenerateDiary turns today's captured messages into one generated
// diary entry and appends it as a detached row in the diary database.
// Concurrent calls share a single in-flight run. Partial progress (for
// example a generated narrative whose row insert failed) is not rolled
// back and not retried.
func (s *Service) GenerateDiary(ctx context.Context) (models.DiaryRun, error) {
	v, err, _ := s.flight.Do("diary", func() (any, error) {
		return s.generateDiary(ctx)
	})
	if err != nil {
		return models.DiaryRun{}, err
	}
	return v.(models.DiaryRun), nil
}

func (s *Service) generateDiary(ctx context.Context) (models.DiaryRun, error) {
	msgs := s.Messages()
	if len(msgs) == 0 {
		return models.DiaryRun{}, apperr.ErrNoContent
	}

	ps := s.settings()
	if ps.APIKey == "" {
		return models.DiaryRun{}, apperr.ErrNotConfigured
	}

	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, fmt.Sprintf("[%s] %s", m.DisplayTime, m.Content))
	}
	transcript := strings.Join(lines, "\n")

	today := s.now().Format("2006-01-02")

	gen := ai.New(ps.BaseURL, ps.APIKey, ps.Model)
	narrative, err := gen.Generate(ctx, ps.SystemPrompt, transcript)
	if err != nil {
		s.recordRun(today, len(msgs), "", runlog.StatusFailed)
		return models.DiaryRun{}, fmt.Errorf("generate narrative: %w", err)
	}

	if err := s.insertDiaryRow(ctx, today, narrative); err != nil {
		s.recordRun(today, len(msgs), narrative, runlog.StatusFailed)
		return models.DiaryRun{}, err
	}

	run := models.DiaryRun{
		ID:           s.recordRun(today, len(msgs), narrative, runlog.StatusOK),
		Date:         today,
		MessageCount: len(msgs),
		Narrative:    narrative,
		Status:       runlog.StatusOK,
		CreatedAt:    s.now(),
	}
	if s.events != nil {
		s.events("diary.generated", map[string]string{"date": today})
	}
	return run, nil
}

// insertDiaryRow resolves the diary database and appends one detached
// row: primary key set to the date string, date column to midnight of
// today, text column to the narrative.
func (s *Service) insertDiaryRow(ctx context.Context, today, narrative string) error {
	handle, err := s.engine.EnsureDiaryDatabase(ctx)
	if err != nil {
		return fmt.Errorf("ensure diary database: %w", err)
	}
	blockKeyID, err := s.engine.PrimaryKeyColumnID(ctx, handle.AvID)
	if err != nil {
		return fmt.Errorf("resolve primary key column: %w", err)
	}

	now := s.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	values := []siyuan.AttributeValue{
		{KeyID: blockKeyID, Type: siyuan.KeyTypeBlock, Block: &siyuan.ValueBlock{Content: today}},
		{KeyID: handle.DateKeyID, Type: siyuan.KeyTypeDate, Date: &siyuan.ValueDate{Content: midnight.UnixMilli(), IsNotEmpty: true}},
		{KeyID: handle.TextKeyID, Type: siyuan.KeyTypeText, Text: &siyuan.ValueText{Content: narrative}},
	}
	if err := s.client.AppendDetachedRow(ctx, handle.AvID, values); err != nil {
		return fmt.Errorf("append diary row: %w", err)
	}
	return nil
}

// recordRun writes to the run log when enabled. The run log is
// advisory; a write failure is logged and the flow continues.
func (s *Service) recordRun(date string, count int, narrative, status string) string {
	if s.runs == nil {
		return ""
	}
	id, err := s.runs.Record(date, count, narrative, status)
	if err != nil {
		slog.Warn("capture: record diary run failed", slog.String("error", err.Error()))
		return ""
	}
	return id
}
