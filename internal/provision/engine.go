// Package provision guarantees that the capture container hierarchy
// exists exactly once in the kernel: the capture notebook, today's
// capture document, the diary index document, and the diary database
// (attribute view) with its required columns.
//
// The kernel offers no transactions and no compare-and-create, so every
// ensure operation is a check-then-create sequence that is idempotent
// but not atomic; two concurrent agents could still race and create
// duplicates. Cached identifiers are never trusted blindly: the diary
// database resolution verifies the cached id against the live kernel
// and falls back to discovery, then creation.
package provision

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/soramir/inkwell/internal/apperr"
	"github.com/soramir/inkwell/internal/siyuan"
	"github.com/soramir/inkwell/internal/state"
)

// AttrAvID is the block attribute carrying the attribute view id of a
// diary database block, set when the engine creates the block.
const AttrAvID = "custom-av-id"

// Column names used when the engine creates the diary database columns.
const (
	dateColumnName = "Date"
	textColumnName = "Diary"
)

// DiaryHandle is the resolved diary database: the view id, its hosting
// document, and the two required column ids.
type DiaryHandle struct {
	AvID      string
	DocID     string
	DateKeyID string
	TextKeyID string
}

// Engine reconciles the capture hierarchy against the kernel.
type Engine struct {
	client       *siyuan.Client
	state        *state.Store
	notebookName string
	diaryDocPath string
	now          func() time.Time
	newID        func() string
}

// NewEngine creates a provisioning engine. notebookName is the reserved
// capture notebook name; diaryDocPath is the fixed index document path
// hosting the diary database.
func NewEngine(client *siyuan.Client, st *state.Store, notebookName, diaryDocPath string) *Engine {
	return &Engine{
		client:       client,
		state:        st,
		notebookName: notebookName,
		diaryDocPath: diaryDocPath,
		now:          time.Now,
		newID:        siyuan.NewNodeID,
	}
}

// EnsureNotebook resolves the capture notebook, opening it when closed
// and creating it when absent. The live listing is authoritative and
// cheap, so it is consulted on every call.
func (e *Engine) EnsureNotebook(ctx context.Context) (string, error) {
	notebooks, err := e.client.ListNotebooks(ctx)
	if err != nil {
		return "", err
	}
	for _, nb := range notebooks {
		if nb.Name != e.notebookName {
			continue
		}
		if nb.Closed {
			if err := e.client.OpenNotebook(ctx, nb.ID); err != nil {
				return "", err
			}
		}
		return nb.ID, nil
	}
	created, err := e.client.CreateNotebook(ctx, e.notebookName)
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

// EnsureTodayDocument resolves today's capture document inside the
// notebook, creating it when absent. A failing path query is tolerated
// and treated as "not found".
func (e *Engine) EnsureTodayDocument(ctx context.Context, notebookID string) (string, error) {
	path := "/" + e.now().Format("2006-01-02")
	if id := e.findDoc(ctx, notebookID, path); id != "" {
		return id, nil
	}
	return e.client.CreateDocWithMarkdown(ctx, notebookID, path, "")
}

// findDoc looks up a document by exact path. Query failures are logged
// and reported as not found.
func (e *Engine) findDoc(ctx context.Context, notebookID, path string) string {
	stmt := fmt.Sprintf(`SELECT id FROM blocks WHERE type='d' AND box='%s' AND hpath='%s' LIMIT 1`, notebookID, path)
	rows, err := e.client.QuerySQL(ctx, stmt)
	if err != nil {
		slog.Warn("provision: document query failed, treating as absent",
			slog.String("path", path), slog.String("error", err.Error()))
		return ""
	}
	if len(rows) == 0 {
		return ""
	}
	return rows[0].ID
}

// EnsureDiaryDatabase resolves the diary database, walking a tiered
// fallback chain: cached id, then discovery inside the index document,
// then creation. The resolved ids are persisted so the next call takes
// the cache path.
func (e *Engine) EnsureDiaryDatabase(ctx context.Context) (DiaryHandle, error) {
	// Cache path. Any failure here falls through to discovery; it is
	// never surfaced to the caller.
	if h, ok := e.fromCache(ctx); ok {
		return h, nil
	}

	notebookID, err := e.EnsureNotebook(ctx)
	if err != nil {
		return DiaryHandle{}, err
	}

	docID := e.findDoc(ctx, notebookID, e.diaryDocPath)
	var avID string
	var keys []siyuan.AttributeViewKey

	if docID == "" {
		docID, err = e.client.CreateDocWithMarkdown(ctx, notebookID, e.diaryDocPath, "")
		if err != nil {
			return DiaryHandle{}, err
		}
		avID, err = e.createDatabaseBlock(ctx, docID)
		if err != nil {
			return DiaryHandle{}, err
		}
	} else {
		avID, keys, err = e.discoverDatabase(ctx, docID)
		if err != nil {
			return DiaryHandle{}, err
		}
		if avID != "" {
			if dateID, textID, ok := requiredColumns(keys); ok {
				h := DiaryHandle{AvID: avID, DocID: docID, DateKeyID: dateID, TextKeyID: textID}
				e.persist(h)
				return h, nil
			}
		} else {
			avID, err = e.createDatabaseBlock(ctx, docID)
			if err != nil {
				return DiaryHandle{}, err
			}
		}
	}

	dateID, textID, err := e.ensureColumns(ctx, avID, keys)
	if err != nil {
		return DiaryHandle{}, err
	}

	h := DiaryHandle{AvID: avID, DocID: docID, DateKeyID: dateID, TextKeyID: textID}
	e.persist(h)
	return h, nil
}

// fromCache verifies the cached database id against the live kernel and
// returns the handle when the view still exists with both required
// columns.
func (e *Engine) fromCache(ctx context.Context) (DiaryHandle, bool) {
	st := e.state.Get()
	if st.DiaryAvID == "" {
		return DiaryHandle{}, false
	}
	found, err := e.client.GetAttributeView(ctx, st.DiaryAvID)
	if err != nil || !found {
		slog.Info("provision: cached database id is stale, rediscovering",
			slog.String("av_id", st.DiaryAvID))
		return DiaryHandle{}, false
	}
	keys, err := e.client.GetAttributeViewKeys(ctx, st.DiaryAvID)
	if err != nil {
		return DiaryHandle{}, false
	}
	dateID, textID, ok := requiredColumns(keys)
	if !ok {
		return DiaryHandle{}, false
	}
	return DiaryHandle{
		AvID:      st.DiaryAvID,
		DocID:     st.DiaryDocID,
		DateKeyID: dateID,
		TextKeyID: textID,
	}, true
}

// discoverDatabase inspects the index document's direct children for a
// database block and returns its view id and existing columns. Blocks
// whose tagged view no longer exists are skipped; an empty avID means
// the document has no usable database block.
func (e *Engine) discoverDatabase(ctx context.Context, docID string) (string, []siyuan.AttributeViewKey, error) {
	children, err := e.client.GetChildBlocks(ctx, docID)
	if err != nil {
		return "", nil, err
	}
	for _, child := range children {
		if child.Type != "av" {
			continue
		}
		attrs, err := e.client.GetBlockAttrs(ctx, child.ID)
		if err != nil {
			return "", nil, err
		}
		avID := attrs[AttrAvID]
		if avID == "" {
			continue
		}
		found, err := e.client.GetAttributeView(ctx, avID)
		if err != nil {
			return "", nil, err
		}
		if !found {
			slog.Warn("provision: database block references a missing view, skipping",
				slog.String("block", child.ID), slog.String("av_id", avID))
			continue
		}
		keys, err := e.client.GetAttributeViewKeys(ctx, avID)
		if err != nil {
			return "", nil, err
		}
		return avID, keys, nil
	}
	return "", nil, nil
}

// createDatabaseBlock appends a fresh attribute view block into the
// index document and tags it with the generated view id.
func (e *Engine) createDatabaseBlock(ctx context.Context, docID string) (string, error) {
	avID := e.newID()
	dom := fmt.Sprintf(`<div data-type="NodeAttributeView" data-av-id=%q data-av-type="table"></div>`, avID)
	blockID, err := e.client.AppendBlock(ctx, docID, "dom", dom)
	if err != nil {
		return "", err
	}
	if blockID != "" {
		if err := e.client.SetBlockAttrs(ctx, blockID, map[string]string{AttrAvID: avID}); err != nil {
			return "", err
		}
	}
	return avID, nil
}

// ensureColumns adds any missing required column. A column that already
// exists is never re-added; the text column is positioned right after
// the date column when created.
func (e *Engine) ensureColumns(ctx context.Context, avID string, keys []siyuan.AttributeViewKey) (string, string, error) {
	dateID := findKey(keys, siyuan.KeyTypeDate)
	if dateID == "" {
		dateID = e.newID()
		if err := e.client.AddAttributeViewColumn(ctx, avID, dateID, dateColumnName, siyuan.KeyTypeDate, ""); err != nil {
			return "", "", err
		}
	}
	textID := findKey(keys, siyuan.KeyTypeText)
	if textID == "" {
		textID = e.newID()
		if err := e.client.AddAttributeViewColumn(ctx, avID, textID, textColumnName, siyuan.KeyTypeText, dateID); err != nil {
			return "", "", err
		}
	}
	return dateID, textID, nil
}

// PrimaryKeyColumnID returns the id of the built-in block column. It is
// created by the kernel with the view itself, never by this engine.
func (e *Engine) PrimaryKeyColumnID(ctx context.Context, avID string) (string, error) {
	keys, err := e.client.GetAttributeViewKeys(ctx, avID)
	if err != nil {
		return "", err
	}
	if id := findKey(keys, siyuan.KeyTypeBlock); id != "" {
		return id, nil
	}
	return "", fmt.Errorf("provision: database %s has no primary key column: %w", avID, apperr.ErrNotFound)
}

// persist writes the resolved ids so the next resolution takes the
// cache path. Local write failures leave the remote state intact and
// are only logged.
func (e *Engine) persist(h DiaryHandle) {
	err := e.state.Put(state.State{DiaryAvID: h.AvID, DiaryDocID: h.DocID})
	if err != nil {
		slog.Warn("provision: persist resolved ids failed", slog.String("error", err.Error()))
	}
}

func findKey(keys []siyuan.AttributeViewKey, typ string) string {
	for _, k := range keys {
		if k.Type == typ {
			return k.ID
		}
	}
	return ""
}

func requiredColumns(keys []siyuan.AttributeViewKey) (string, string, bool) {
	dateID := findKey(keys, siyuan.KeyTypeDate)
	textID := findKey(keys, siyuan.KeyTypeText)
	return dateID, textID, dateID != "" && textID != ""
}
