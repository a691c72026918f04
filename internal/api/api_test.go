package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/soramir/inkwell/internal/capture"
	"github.com/soramir/inkwell/internal/messages"
	"github.com/soramir/inkwell/internal/models"
	"github.com/soramir/inkwell/internal/provision"
	"github.com/soramir/inkwell/internal/state"
	"github.com/soramir/inkwell/internal/testutil"
)

type testEnv struct {
	kernel *testutil.Kernel
	chat   *testutil.ChatServer
	srv    *httptest.Server
	apiKey string
}

func newTestEnv(t *testing.T, narrative string, authEnabled bool, token string) *testEnv {
	t.Helper()
	e := &testEnv{
		kernel: testutil.NewKernel(t),
		chat:   testutil.NewChatServer(t, narrative),
		apiKey: "test-key",
	}
	st, err := state.NewStore(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	client := e.kernel.Client()
	svc := capture.NewService(
		client,
		messages.NewAdapter(client),
		provision.NewEngine(client, st, "MessageNote", "/Diary"),
		nil,
		func() capture.ProviderSettings {
			return capture.ProviderSettings{
				BaseURL: e.chat.URL(),
				APIKey:  e.apiKey,
				Model:   "test-model",
			}
		},
		nil,
	)
	e.srv = httptest.NewServer(NewRouter(svc, nil, authEnabled, token, nil))
	t.Cleanup(e.srv.Close)
	return e
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestSendAndListMessages(t *testing.T) {
	e := newTestEnv(t, "", false, "")

	resp := e.do(t, http.MethodPost, "/messages", SendMessageRequest{Content: "hello"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST /messages status = %d, want 201", resp.StatusCode)
	}
	msg := decode[models.Message](t, resp)
	if msg.Content != "hello" || msg.ID == "" {
		t.Errorf("message = %+v", msg)
	}

	resp = e.do(t, http.MethodGet, "/messages", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /messages status = %d, want 200", resp.StatusCode)
	}
	list := decode[MessageListResponse](t, resp)
	if list.Total != 1 || len(list.Messages) != 1 || list.Messages[0].Content != "hello" {
		t.Errorf("list = %+v", list)
	}
}

func TestSendMessageRejectsBlankAndBadJSON(t *testing.T) {
	e := newTestEnv(t, "", false, "")

	resp := e.do(t, http.MethodPost, "/messages", SendMessageRequest{Content: "   "})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("blank content status = %d, want 400", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodPost, e.srv.URL+"/messages", bytes.NewBufferString("{not json"))
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Errorf("bad JSON status = %d, want 400", resp2.StatusCode)
	}
	if n := e.kernel.Calls("/api/block/appendBlock"); n != 0 {
		t.Errorf("appendBlock calls = %d, want 0", n)
	}
}

func TestSendMessageStoreDown(t *testing.T) {
	e := newTestEnv(t, "", false, "")
	e.kernel.FailPath("/api/notebook/lsNotebooks")

	resp := e.do(t, http.MethodPost, "/messages", SendMessageRequest{Content: "hello"})
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}
}

func TestGenerateDiaryStatuses(t *testing.T) {
	e := newTestEnv(t, "an entry", false, "")

	// No messages yet.
	resp := e.do(t, http.MethodPost, "/diary", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("no content status = %d, want 409", resp.StatusCode)
	}

	if r := e.do(t, http.MethodPost, "/messages", SendMessageRequest{Content: "hello"}); r.StatusCode != http.StatusCreated {
		t.Fatalf("seed message status = %d", r.StatusCode)
	}

	// Provider key missing.
	e.apiKey = ""
	resp = e.do(t, http.MethodPost, "/diary", nil)
	if resp.StatusCode != http.StatusPreconditionFailed {
		t.Errorf("unconfigured status = %d, want 412", resp.StatusCode)
	}

	e.apiKey = "test-key"
	resp = e.do(t, http.MethodPost, "/diary", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("generate status = %d, want 201", resp.StatusCode)
	}
	run := decode[models.DiaryRun](t, resp)
	if run.Narrative != "an entry" || run.MessageCount != 1 {
		t.Errorf("run = %+v", run)
	}
}

func TestListDiaryRunsWithoutRunLog(t *testing.T) {
	e := newTestEnv(t, "", false, "")
	resp := e.do(t, http.MethodGet, "/diary/runs", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	list := decode[DiaryRunListResponse](t, resp)
	if len(list.Runs) != 0 {
		t.Errorf("runs = %+v, want none", list.Runs)
	}
}

func TestAuthEnforcement(t *testing.T) {
	e := newTestEnv(t, "", true, "secret")

	resp := e.do(t, http.MethodGet, "/messages", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, e.srv.URL+"/messages", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong token status = %d, want 401", resp2.StatusCode)
	}

	req2, _ := http.NewRequest(http.MethodGet, e.srv.URL+"/messages", nil)
	req2.Header.Set("Authorization", "Bearer secret")
	resp3, err := http.DefaultClient.Do(req2)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp3.Body.Close()
	if resp3.StatusCode != http.StatusOK {
		t.Errorf("valid token status = %d, want 200", resp3.StatusCode)
	}
}
