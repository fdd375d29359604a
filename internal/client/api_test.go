package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"

	"wristsight-viewer/pkg/models"
)

type memTokens struct {
	token   string
	cleared bool
}

func (m *memTokens) Token() string     { return m.token }
func (m *memTokens) SetToken(t string) { m.token = t }
func (m *memTokens) Clear()            { m.token = ""; m.cleared = true }

func newTestClient(t *testing.T, handler http.HandlerFunc, tokens TokenSource) *APIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewAPIClient(srv.URL+"/api", 0, tokens, logger)
}

func TestCreateAnalysis_SendsMultipart(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/analyses" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("expected bearer token, got %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("failed to parse multipart: %v", err)
		}
		if r.FormValue("patient_id") != "PAT-42" || r.FormValue("notes") != "follow-up" {
			t.Errorf("unexpected fields %v", r.MultipartForm.Value)
		}
		if _, ok := r.MultipartForm.File["lat_image"]; ok {
			t.Error("lat_image must be omitted when not selected")
		}
		files := r.MultipartForm.File["ap_image"]
		if len(files) != 1 || files[0].Filename != "ap.png" || files[0].Header.Get("Content-Type") != "image/png" {
			t.Errorf("unexpected ap_image part %+v", files)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(models.CreateAnalysisResponse{AnalysisID: "A1"})
	}, &memTokens{token: "tok"})

	id, err := c.CreateAnalysis(context.Background(), models.CreateAnalysisRequest{
		PatientID: "PAT-42",
		Notes:     "follow-up",
		APImage:   &models.ImageFile{Filename: "ap.png", ContentType: "image/png", Data: []byte("png")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "A1" {
		t.Errorf("expected A1, got %q", id)
	}
}

func TestCreateAnalysis_MissingID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}, nil)

	if _, err := c.CreateAnalysis(context.Background(), models.CreateAnalysisRequest{PatientID: "P"}); err == nil {
		t.Error("expected error when the server returns no analysis id")
	}
}

func TestGetAnalysis_Normalizes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/analyses/A1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"id":"A1","patient_id":"PAT-42","timestamp":"2024-03-01T10:00:00",
			"ap_image_url":"/static/images/A1/ap.jpg","has_ap":false,"has_lat":true,
			"status":"Complete","measurements":[],"summary":"ok"}`))
	}, nil)

	rec, err := c.GetAnalysis(context.Background(), "A1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rec.HasAP() || rec.HasLat() {
		t.Errorf("flags must follow URLs: hasAp=%v hasLat=%v", rec.HasAP(), rec.HasLat())
	}
}

func TestDo_UnauthorizedClearsToken(t *testing.T) {
	tokens := &memTokens{token: "expired"}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"Could not validate credentials"}`))
	}, tokens)

	_, err := c.GetHistory(context.Background(), models.HistoryQuery{})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if !tokens.cleared || tokens.token != "" {
		t.Error("token must be cleared on 401")
	}
}

func TestDo_APIErrorCarriesDetail(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail":"Analysis with ID X not found"}`))
	}, nil)

	_, err := c.GetAnalysis(context.Background(), "X")
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err.Error() != "Analysis with ID X not found" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestGetHistory_QueryParams(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("patient_id") != "PAT001" || q.Get("start_date") != "2024-01-01" || q.Get("limit") != "100" {
			t.Errorf("unexpected query %v", q)
		}
		if q.Has("skip") || q.Has("end_date") {
			t.Errorf("empty params must be omitted: %v", q)
		}
		w.Write([]byte(`[{"id":"A1","patient_id":"PAT001","timestamp":"2024-01-02T00:00:00","summary":"s","status":"Complete",
			"image_urls":{"ap_image_url":"/static/images/A1/ap.jpg","lat_image_url":null}}]`))
	}, nil)

	records, err := c.GetHistory(context.Background(), models.HistoryQuery{Limit: 100, PatientID: "PAT001", StartDate: "2024-01-01"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 || !records[0].HasAP() || !records[0].NeedsDetail() {
		t.Errorf("unexpected records %+v", records)
	}
}

func TestLogin_StoresToken(t *testing.T) {
	tokens := &memTokens{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/x-www-form-urlencoded" {
			t.Errorf("login must be form encoded")
		}
		r.ParseForm()
		if r.PostForm.Get("username") != "alice" || r.PostForm.Get("password") != "secret123" {
			t.Errorf("unexpected form %v", r.PostForm)
		}
		w.Write([]byte(`{"access_token":"abc","token_type":"bearer"}`))
	}, tokens)

	token, err := c.Login(context.Background(), "alice", "secret123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "abc" || tokens.token != "abc" {
		t.Errorf("token not stored: %q / %q", token, tokens.token)
	}
}

func TestResolveImageURL(t *testing.T) {
	logger := logrus.New()
	c := NewAPIClient("http://backend:8000/api", 0, nil, logger)

	tests := map[string]string{
		"/static/images/A1/ap.jpg":         "http://backend:8000/static/images/A1/ap.jpg",
		"static/images/A1/lat.jpg":         "http://backend:8000/static/images/A1/lat.jpg",
		"https://cdn.example.com/x/ap.jpg": "https://cdn.example.com/x/ap.jpg",
		"":                                 "",
	}
	for in, want := range tests {
		if got := c.ResolveImageURL(in); got != want {
			t.Errorf("ResolveImageURL(%q) = %q, want %q", in, got, want)
		}
	}
	if got := StaticImagePath("A1", models.ViewLat); got != "/static/images/A1/lat.jpg" {
		t.Errorf("unexpected static path %q", got)
	}
}
