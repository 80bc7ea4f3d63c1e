package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/korjavin/medcabinet/internal/cache"
	"github.com/korjavin/medcabinet/internal/drug"
	"github.com/korjavin/medcabinet/internal/rxnav"
	"github.com/korjavin/medcabinet/internal/store"
)

const testSecret = "test-secret"

// fakeUpstream serves canned RxNav payloads and counts search calls.
type fakeUpstream struct {
	ts          *httptest.Server
	searchCalls atomic.Int32
	down        atomic.Bool
}

func newFakeUpstream(t *testing.T) *fakeUpstream {
	f := &fakeUpstream{}

	mux := http.NewServeMux()
	mux.HandleFunc("/drugs.json", func(w http.ResponseWriter, r *http.Request) {
		f.searchCalls.Add(1)
		if r.URL.Query().Get("name") == "nosuchdrug" {
			w.Write([]byte(`{"drugGroup":{}}`))
			return
		}
		w.Write([]byte(`{"drugGroup":{"conceptGroup":[
			{"tty":"IN","conceptProperties":[{"rxcui":"1","name":"ingredient"}]},
			{"tty":"SBD","conceptProperties":[{"rxcui":"1191","name":"aspirin 81 MG Oral Tablet"}]}
		]}}`))
	})
	mux.HandleFunc("/rxcui/1191.json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"idGroup":{"name":"aspirin 81 MG Oral Tablet"}}`))
	})
	mux.HandleFunc("/rxcui/1191/historystatus.json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"rxcuiStatusHistory":{"definitionalFeatures":{
			"ingredientAndStrength":[{"baseName":"Aspirin"},{"baseName":"Aspirin"}],
			"doseFormGroupConcept":[{"doseFormGroupName":"Pill"}]
		}}}`))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		// Unknown rxcui: empty payloads
		w.Write([]byte(`{}`))
	})

	f.ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if f.down.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(f.ts.Close)
	return f
}

func createTestServer(t *testing.T) (*Server, *store.Store, *fakeUpstream) {
	db, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create test store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	upstream := newFakeUpstream(t)
	client := rxnav.New(rxnav.Config{
		BaseURL:    upstream.ts.URL,
		Timeout:    2 * time.Second,
		Retries:    1,
		RetryDelay: time.Millisecond,
	})
	drugs := drug.NewService(client, cache.New(), time.Minute, zerolog.Nop())

	srv := New(db, drugs, []byte(testSecret), zerolog.Nop())
	return srv, db, upstream
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	var reqBody *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal body: %v", err)
		}
		reqBody = bytes.NewReader(b)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	var resp map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v. Body: %s", err, w.Body.String())
	}
	return resp
}

// registerTestUser registers a user and returns their bearer token.
func registerTestUser(t *testing.T, handler http.Handler, email string) string {
	w := doJSON(t, handler, "POST", "/api/register", "", map[string]string{
		"email":    email,
		"password": "password123",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Register failed with %d: %s", w.Code, w.Body.String())
	}
	data := decodeEnvelope(t, w)["data"].(map[string]any)
	return data["token"].(string)
}
