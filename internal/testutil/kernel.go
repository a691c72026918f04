// Package testutil provides shared test helpers: an in-memory SiYuan
// kernel and an OpenAI-compatible chat endpoint, both served over
// httptest so tests go through the real HTTP clients.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/soramir/inkwell/internal/siyuan"
)

type notebook struct {
	id     string
	name   string
	closed bool
}

type document struct {
	id    string
	box   string
	hpath string
}

type block struct {
	id      string
	rootID  string
	typ     string
	content string
	attrs   map[string]string
	created string
}

type attrView struct {
	keys []siyuan.AttributeViewKey
	rows [][]siyuan.AttributeValue
}

// Kernel is an in-memory SiYuan kernel behind an httptest server.
type Kernel struct {
	mu         sync.Mutex
	srv        *httptest.Server
	notebooks  []*notebook
	docs       []*document
	blocks     map[string]*block
	order      map[string][]string
	avs        map[string]*attrView
	calls      map[string]int
	fail       map[string]bool
	noAppendID bool
	seq        int
}

// NewKernel starts a fake kernel that is shut down with the test.
func NewKernel(t *testing.T) *Kernel {
	t.Helper()
	k := &Kernel{
		blocks: make(map[string]*block),
		order:  make(map[string][]string),
		avs:    make(map[string]*attrView),
		calls:  make(map[string]int),
		fail:   make(map[string]bool),
	}
	k.srv = httptest.NewServer(http.HandlerFunc(k.handle))
	t.Cleanup(k.srv.Close)
	return k
}

// Client returns a kernel client pointed at this fake.
func (k *Kernel) Client() *siyuan.Client {
	return siyuan.NewClient(k.srv.URL, "")
}

// Calls returns how many times an endpoint path was hit.
func (k *Kernel) Calls(path string) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.calls[path]
}

// FailPath makes an endpoint return an error envelope until UnfailPath.
func (k *Kernel) FailPath(path string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.fail[path] = true
}

// UnfailPath restores an endpoint.
func (k *Kernel) UnfailPath(path string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.fail, path)
}

// SetNoAppendID makes appendBlock acknowledge without a block id,
// simulating the degraded append case.
func (k *Kernel) SetNoAppendID(v bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.noAppendID = v
}

// SeedNotebook registers a notebook and returns its id.
func (k *Kernel) SeedNotebook(name string, closed bool) string {
	k.mu.Lock()
	defer k.mu.Unlock()
	nb := &notebook{id: k.genID(), name: name, closed: closed}
	k.notebooks = append(k.notebooks, nb)
	return nb.id
}

// NotebookByName returns the id of the named notebook, or "".
func (k *Kernel) NotebookByName(name string) string {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, nb := range k.notebooks {
		if nb.name == name {
			return nb.id
		}
	}
	return ""
}

// NotebookClosed reports the closed flag of a notebook.
func (k *Kernel) NotebookClosed(id string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, nb := range k.notebooks {
		if nb.id == id {
			return nb.closed
		}
	}
	return false
}

// DocIDByPath returns the document id at (box, hpath), or "".
func (k *Kernel) DocIDByPath(box, hpath string) string {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, d := range k.docs {
		if d.box == box && d.hpath == hpath {
			return d.id
		}
	}
	return ""
}

// SeedMessageBlock inserts a fully tagged message block under docID.
func (k *Kernel) SeedMessageBlock(docID, content, isoTime string) string {
	k.mu.Lock()
	defer k.mu.Unlock()
	b := &block{
		id:      k.genID(),
		rootID:  docID,
		typ:     "p",
		content: content,
		attrs: map[string]string{
			"custom-mn-type": "message",
			"custom-mn-ts":   isoTime,
		},
		created: k.nextCreated(),
	}
	k.blocks[b.id] = b
	k.order[docID] = append(k.order[docID], b.id)
	return b.id
}

// SetBlockAttr overrides one attribute of a block.
func (k *Kernel) SetBlockAttr(blockID, key, value string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if b, ok := k.blocks[blockID]; ok {
		if value == "" {
			delete(b.attrs, key)
			return
		}
		b.attrs[key] = value
	}
}

// DeleteAttributeView removes a view, simulating a stale cached id.
func (k *Kernel) DeleteAttributeView(avID string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.avs, avID)
}

// RemoveAttributeViewKey drops a single column from a view, leaving
// the rest intact.
func (k *Kernel) RemoveAttributeViewKey(avID, keyID string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	av, ok := k.avs[avID]
	if !ok {
		return
	}
	keys := av.keys[:0]
	for _, key := range av.keys {
		if key.ID != keyID {
			keys = append(keys, key)
		}
	}
	av.keys = keys
}

// AttributeViewKeys returns a copy of a view's columns.
func (k *Kernel) AttributeViewKeys(avID string) []siyuan.AttributeViewKey {
	k.mu.Lock()
	defer k.mu.Unlock()
	av, ok := k.avs[avID]
	if !ok {
		return nil
	}
	out := make([]siyuan.AttributeViewKey, len(av.keys))
	copy(out, av.keys)
	return out
}

// AttributeViewRows returns a copy of a view's rows.
func (k *Kernel) AttributeViewRows(avID string) [][]siyuan.AttributeValue {
	k.mu.Lock()
	defer k.mu.Unlock()
	av, ok := k.avs[avID]
	if !ok {
		return nil
	}
	out := make([][]siyuan.AttributeValue, len(av.rows))
	copy(out, av.rows)
	return out
}

// AttributeViewIDs returns the ids of all registered views.
func (k *Kernel) AttributeViewIDs() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	ids := make([]string, 0, len(k.avs))
	for id := range k.avs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (k *Kernel) genID() string {
	k.seq++
	return fmt.Sprintf("%s-t%06d", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(k.seq)*time.Second).Format("20060102150405"), k.seq)
}

func (k *Kernel) nextCreated() string {
	k.seq++
	return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(k.seq) * time.Second).Format("20060102150405")
}

func writeData(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"code": 0, "msg": "", "data": data})
}

func writeKernelErr(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"code": -1, "msg": msg, "data": nil})
}

var (
	docQueryRe  = regexp.MustCompile(`box='([^']+)' AND hpath='([^']+)'`)
	rootQueryRe = regexp.MustCompile(`root_id='([^']+)'`)
	avIDRe      = regexp.MustCompile(`data-av-id="([^"]+)"`)
)

func (k *Kernel) handle(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	k.calls[r.URL.Path]++
	if k.fail[r.URL.Path] {
		writeKernelErr(w, "injected failure")
		return
	}

	str := func(key string) string {
		v, _ := body[key].(string)
		return v
	}

	switch r.URL.Path {
	case "/api/notebook/lsNotebooks":
		list := make([]siyuan.Notebook, 0, len(k.notebooks))
		for _, nb := range k.notebooks {
			list = append(list, siyuan.Notebook{ID: nb.id, Name: nb.name, Closed: nb.closed})
		}
		writeData(w, map[string]any{"notebooks": list})

	case "/api/notebook/createNotebook":
		nb := &notebook{id: k.genID(), name: str("name")}
		k.notebooks = append(k.notebooks, nb)
		writeData(w, map[string]any{"notebook": siyuan.Notebook{ID: nb.id, Name: nb.name}})

	case "/api/notebook/openNotebook":
		for _, nb := range k.notebooks {
			if nb.id == str("notebook") {
				nb.closed = false
			}
		}
		writeData(w, nil)

	case "/api/filetree/createDocWithMd":
		doc := &document{id: k.genID(), box: str("notebook"), hpath: str("path")}
		k.docs = append(k.docs, doc)
		writeData(w, doc.id)

	case "/api/sql/query":
		k.handleQuery(w, str("stmt"))

	case "/api/block/appendBlock":
		k.handleAppendBlock(w, str("parentID"), str("dataType"), str("data"))

	case "/api/block/getChildBlocks":
		var children []siyuan.ChildBlock
		for _, id := range k.order[str("id")] {
			b := k.blocks[id]
			children = append(children, siyuan.ChildBlock{ID: b.id, Type: b.typ})
		}
		writeData(w, children)

	case "/api/attr/setBlockAttrs":
		b, ok := k.blocks[str("id")]
		if !ok {
			writeKernelErr(w, "block not found")
			return
		}
		if attrs, ok := body["attrs"].(map[string]any); ok {
			for key, v := range attrs {
				if s, ok := v.(string); ok {
					b.attrs[key] = s
				}
			}
		}
		writeData(w, nil)

	case "/api/attr/getBlockAttrs":
		b, ok := k.blocks[str("id")]
		if !ok {
			writeKernelErr(w, "block not found")
			return
		}
		writeData(w, b.attrs)

	case "/api/av/getAttributeView":
		if _, ok := k.avs[str("id")]; !ok {
			writeData(w, map[string]any{"av": nil})
			return
		}
		writeData(w, map[string]any{"av": map[string]string{"id": str("id")}})

	case "/api/av/getAttributeViewKeys":
		av, ok := k.avs[str("avID")]
		if !ok {
			writeKernelErr(w, "attribute view not found")
			return
		}
		entries := make([]map[string]any, 0, len(av.keys))
		for _, key := range av.keys {
			entries = append(entries, map[string]any{"key": key})
		}
		writeData(w, entries)

	case "/api/transactions":
		k.handleTransactions(w, body)

	case "/api/av/appendAttributeViewDetachedBlocksWithValues":
		av, ok := k.avs[str("avID")]
		if !ok {
			writeKernelErr(w, "attribute view not found")
			return
		}
		raw, _ := json.Marshal(body["blocksValues"])
		var rows [][]siyuan.AttributeValue
		_ = json.Unmarshal(raw, &rows)
		av.rows = append(av.rows, rows...)
		writeData(w, nil)

	default:
		writeKernelErr(w, "unknown endpoint "+r.URL.Path)
	}
}

func (k *Kernel) handleQuery(w http.ResponseWriter, stmt string) {
	switch {
	case strings.Contains(stmt, "type='d'"):
		m := docQueryRe.FindStringSubmatch(stmt)
		if m == nil {
			writeData(w, []any{})
			return
		}
		for _, d := range k.docs {
			if d.box == m[1] && d.hpath == m[2] {
				writeData(w, []map[string]string{{"id": d.id}})
				return
			}
		}
		writeData(w, []any{})

	case strings.Contains(stmt, "type='p'"):
		m := rootQueryRe.FindStringSubmatch(stmt)
		if m == nil {
			writeData(w, []any{})
			return
		}
		var rows []siyuan.SQLBlock
		for _, id := range k.order[m[1]] {
			b := k.blocks[id]
			if b.attrs["custom-mn-type"] != "message" {
				continue
			}
			rows = append(rows, siyuan.SQLBlock{
				ID:      b.id,
				Content: b.content,
				IAL:     ialString(b.attrs),
				Created: b.created,
			})
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].Created < rows[j].Created })
		writeData(w, rows)

	default:
		writeData(w, []any{})
	}
}

func (k *Kernel) handleAppendBlock(w http.ResponseWriter, parentID, dataType, data string) {
	b := &block{
		id:      k.genID(),
		rootID:  parentID,
		typ:     "p",
		attrs:   map[string]string{},
		created: k.nextCreated(),
	}

	if dataType == "dom" && strings.Contains(data, `data-type="NodeAttributeView"`) {
		b.typ = "av"
		if m := avIDRe.FindStringSubmatch(data); m != nil {
			// A fresh view always starts with the built-in primary key column.
			k.avs[m[1]] = &attrView{
				keys: []siyuan.AttributeViewKey{{ID: k.genID(), Name: "Block", Type: siyuan.KeyTypeBlock}},
			}
		}
	} else {
		b.content = stripInlineIAL(data)
	}

	k.blocks[b.id] = b
	k.order[parentID] = append(k.order[parentID], b.id)

	if k.noAppendID {
		writeData(w, map[string]any{"doOperations": []any{}})
		return
	}
	writeData(w, map[string]any{"doOperations": []map[string]string{{"id": b.id}}})
}

func (k *Kernel) handleTransactions(w http.ResponseWriter, body map[string]any) {
	raw, _ := json.Marshal(body["transactions"])
	var txs []struct {
		DoOperations []struct {
			Action     string `json:"action"`
			AvID       string `json:"avID"`
			ID         string `json:"id"`
			Name       string `json:"name"`
			Typ        string `json:"typ"`
			PreviousID string `json:"previousID"`
		} `json:"doOperations"`
	}
	if err := json.Unmarshal(raw, &txs); err != nil {
		writeKernelErr(w, "bad transaction payload")
		return
	}
	for _, tx := range txs {
		for _, op := range tx.DoOperations {
			if op.Action != "addAttrViewCol" {
				continue
			}
			av, ok := k.avs[op.AvID]
			if !ok {
				writeKernelErr(w, "attribute view not found")
				return
			}
			key := siyuan.AttributeViewKey{ID: op.ID, Name: op.Name, Type: op.Typ}
			inserted := false
			if op.PreviousID != "" {
				for i, existing := range av.keys {
					if existing.ID == op.PreviousID {
						av.keys = append(av.keys[:i+1], append([]siyuan.AttributeViewKey{key}, av.keys[i+1:]...)...)
						inserted = true
						break
					}
				}
			}
			if !inserted {
				av.keys = append(av.keys, key)
			}
		}
	}
	writeData(w, nil)
}

func ialString(attrs map[string]string) string {
	keys := make([]string, 0, len(attrs))
	for key := range attrs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", key, attrs[key]))
	}
	return "{: " + strings.Join(parts, " ") + "}"
}

func stripInlineIAL(markdown string) string {
	idx := strings.LastIndex(markdown, "\n{: ")
	if idx < 0 {
		return markdown
	}
	return markdown[:idx]
}
