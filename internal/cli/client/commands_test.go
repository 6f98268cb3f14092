package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI records the requests it serves and answers with canned envelopes.
type fakeAPI struct {
	t   *testing.T
	srv *httptest.Server

	mu       sync.Mutex
	requests map[string][]byte
	uploaded []byte
}

func newFakeAPI(t *testing.T) *fakeAPI {
	f := &fakeAPI{t: t, requests: map[string][]byte{}}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /answer", f.reply(`{"response_text":"Use the reset link.","sources":[3],"citations":[{"id":3,"type":"faq","title":"Reset password","similarity":0.91}],"grounded":true,"answer_id":"a-1"}`))
	mux.HandleFunc("POST /retrieve", f.reply(`[{"entry":{"id":3,"type":"faq","title":"Reset password","global":true},"similarity":0.91}]`))
	mux.HandleFunc("POST /answers/{id}/feedback", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /knowledge", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		if r.URL.Query().Get("cursor") == "" {
			writeData(w, `{"items":[{"id":1,"type":"faq","title":"First","global":true,"has_embedding":true}],"cursor":"c2","has_more":true}`)
			return
		}
		writeData(w, `{"items":[{"id":2,"type":"documentation","title":"Second","organization_id":"org-1"}],"has_more":false}`)
	})
	mux.HandleFunc("GET /knowledge/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "1" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error":"knowledge entry not found"}`)
			return
		}
		writeData(w, `{"id":1,"type":"faq","title":"First","content":"Body","global":true,"has_embedding":true}`)
	})
	mux.HandleFunc("PUT /knowledge/{id}", f.reply(`{"id":1,"type":"faq","title":"Renamed","content":"New"}`))
	mux.HandleFunc("DELETE /knowledge/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /knowledge/ingest", f.reply(`{"processed":2,"total":2,"partial":false}`))
	mux.HandleFunc("POST /knowledge/import", f.reply(`{"processed":1,"total":2,"partial":true}`))
	mux.HandleFunc("POST /knowledge/import/upload", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, fmt.Sprintf(`{"key":"imports/global/k.json","upload_url":%q}`, f.srv.URL+"/storage/k.json"))
	})
	mux.HandleFunc("PUT /storage/k.json", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.uploaded = body
		f.mu.Unlock()
	})
	mux.HandleFunc("POST /knowledge/import/from-storage", f.reply(`{"processed":2,"total":2,"partial":false}`))

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeAPI) client() *APIClient {
	return NewAPIClientWithConfig(testKey, f.srv.URL)
}

func (f *fakeAPI) record(r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests[r.Method+" "+r.URL.Path] = body
	f.mu.Unlock()
}

func (f *fakeAPI) raw(key string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[key]
}

func (f *fakeAPI) reply(data string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		writeData(w, data)
	}
}

func (f *fakeAPI) body(key string) map[string]interface{} {
	var v map[string]interface{}
	require.NoError(f.t, json.Unmarshal(f.raw(key), &v))
	return v
}

func writeData(w http.ResponseWriter, data string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `{"data":`+data+`}`)
}

func TestRunAsk(t *testing.T) {
	api := newFakeAPI(t)

	var out bytes.Buffer
	req := askRequest{
		Question:    "How do I reset my password?",
		CaseContext: &caseContext{CaseID: "4711", Subject: "Login"},
	}
	require.NoError(t, runAsk(&out, api.client(), req, false))

	assert.Contains(t, out.String(), "Use the reset link.\n")
	assert.Contains(t, out.String(), "[3] Reset password (faq, 0.91)")
	assert.Contains(t, out.String(), "Answer ID: a-1")
	assert.NotContains(t, out.String(), "not grounded")

	sent := api.body("POST /answer")
	assert.Equal(t, "How do I reset my password?", sent["question"])
	assert.Equal(t, map[string]interface{}{"case_id": "4711", "subject": "Login"}, sent["case_context"])

	out.Reset()
	require.NoError(t, runAsk(&out, api.client(), askRequest{Question: "q"}, true))
	var answer Answer
	require.NoError(t, json.Unmarshal(out.Bytes(), &answer))
	assert.Equal(t, []int64{3}, answer.Sources)
	_, hasContext := api.body("POST /answer")["case_context"]
	assert.False(t, hasContext)
}

func TestRunRetrieve(t *testing.T) {
	api := newFakeAPI(t)

	var out bytes.Buffer
	require.NoError(t, runRetrieve(&out, api.client(), retrieveRequest{Question: "reset", Limit: 3}, false))
	assert.Equal(t, "0.910  [3] Reset password (faq, global)\n", out.String())

	sent := api.body("POST /retrieve")
	assert.Equal(t, float64(3), sent["limit"])
	_, hasThreshold := sent["threshold"]
	assert.False(t, hasThreshold)
}

func TestRunFeedback(t *testing.T) {
	api := newFakeAPI(t)

	var out bytes.Buffer
	require.NoError(t, runFeedback(&out, api.client(), "a-1", false))
	assert.Equal(t, "Feedback recorded for answer a-1\n", out.String())
	assert.Equal(t, map[string]interface{}{"helpful": false}, api.body("POST /answers/a-1/feedback"))
}

func TestRunKBList(t *testing.T) {
	api := newFakeAPI(t)

	var out bytes.Buffer
	require.NoError(t, runKBList(&out, api.client(), 1, false, false))
	assert.Equal(t, "[1] First (faq, global)\n", out.String())

	out.Reset()
	require.NoError(t, runKBList(&out, api.client(), 1, true, false))
	assert.Equal(t, "[1] First (faq, global)\n[2] Second (documentation, org org-1, pending embedding)\n", out.String())
}

func TestRunKBGet(t *testing.T) {
	api := newFakeAPI(t)

	var out bytes.Buffer
	require.NoError(t, runKBGet(&out, api.client(), 1, false))
	assert.Contains(t, out.String(), "Title: First\n")
	assert.Contains(t, out.String(), "Scope: global\n")
	assert.True(t, strings.HasSuffix(out.String(), "--- Content ---\nBody\n"))

	err := runKBGet(&out, api.client(), 9, false)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestRunKBIngest(t *testing.T) {
	api := newFakeAPI(t)

	var out bytes.Buffer
	req := ingestRequest{Type: "faq", Entries: []ingestEntry{{Title: "a", Content: "b"}, {Title: "c", Content: "d"}}}
	require.NoError(t, runKBIngest(&out, api.client(), req, false))
	assert.Equal(t, "Stored 2 of 2 entries\n", out.String())

	sent := api.body("POST /knowledge/ingest")
	assert.Equal(t, "faq", sent["type"])
	assert.Len(t, sent["entries"], 2)
}

func TestRunKBImport(t *testing.T) {
	api := newFakeAPI(t)
	payload := []byte(`[{"type":"faq","question":"q","answer":"a"},{"type":"documentation","title":"t","content":""}]`)

	var out bytes.Buffer
	require.NoError(t, runKBImport(&out, api.client(), payload, false))
	assert.Equal(t, "Stored 1 of 2 entries\n1 entries were skipped; check the server log\n", out.String())
	assert.Equal(t, payload, api.raw("POST /knowledge/import"))
}

func TestRunKBImportViaStorage(t *testing.T) {
	api := newFakeAPI(t)
	payload := []byte(`[{"type":"faq","question":"q","answer":"a"}]`)

	var out, progress bytes.Buffer
	require.NoError(t, runKBImportViaStorage(&out, &progress, api.client(), payload, true))

	api.mu.Lock()
	assert.Equal(t, payload, api.uploaded)
	api.mu.Unlock()
	assert.Equal(t, map[string]interface{}{"key": "imports/global/k.json"}, api.body("POST /knowledge/import/from-storage"))
	assert.Contains(t, progress.String(), "100%")

	var res IngestResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, IngestResult{Processed: 2, Total: 2}, res)
}

func TestRunKBUpdateAndDelete(t *testing.T) {
	api := newFakeAPI(t)

	var out bytes.Buffer
	require.NoError(t, runKBUpdate(&out, api.client(), 1, ingestEntry{Title: "Renamed", Content: "New"}, false))
	assert.Equal(t, "Updated [1] Renamed\n", out.String())
	assert.Equal(t, map[string]interface{}{"title": "Renamed", "content": "New"}, api.body("PUT /knowledge/1"))

	out.Reset()
	require.NoError(t, runKBDelete(&out, api.client(), 1))
	assert.Equal(t, "Deleted [1]\n", out.String())
}

func TestParseEntryID(t *testing.T) {
	id, err := parseEntryID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, bad := range []string{"", "0", "-1", "abc"} {
		_, err := parseEntryID(bad)
		assert.ErrorContains(t, err, "invalid knowledge ID", bad)
	}
}

func TestReadInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb.json")
	require.NoError(t, os.WriteFile(path, []byte(`[]`), 0o600))

	data, err := readInput(nil, path)
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(data))

	data, err = readInput(strings.NewReader(`[{}]`), "-")
	require.NoError(t, err)
	assert.Equal(t, `[{}]`, string(data))

	_, err = readInput(strings.NewReader(""), "-")
	assert.ErrorContains(t, err, "no input provided")
}
