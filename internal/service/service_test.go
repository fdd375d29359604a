package service

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"wristsight-viewer/internal/repository"
	"wristsight-viewer/pkg/models"
)

var pngData = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newAnalysisService(t *testing.T) (*AnalysisService, string) {
	t.Helper()
	dir := t.TempDir()
	return NewAnalysisService(repository.NewMemoryAnalysisRepository(), MockAnalyzer{}, quietLogger(), dir), dir
}

func TestMockAnalyzer_MeasurementsFollowViews(t *testing.T) {
	tests := []struct {
		name    string
		views   []models.View
		count   int
		summary string
	}{
		{"both", []models.View{models.ViewAP, models.ViewLat}, 6, SummaryBoth},
		{"ap only", []models.View{models.ViewAP}, 4, SummaryAP},
		{"lat only", []models.View{models.ViewLat}, 2, SummaryLat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			measurements, summary := MockAnalyzer{}.Analyze(tt.views)
			if len(measurements) != tt.count {
				t.Errorf("expected %d measurements, got %d", tt.count, len(measurements))
			}
			if summary != tt.summary {
				t.Errorf("unexpected summary %q", summary)
			}
			for _, m := range measurements {
				found := false
				for _, v := range tt.views {
					found = found || m.View == v
				}
				if !found {
					t.Errorf("%s belongs to a view that was not uploaded", m.Label)
				}
			}
		})
	}
}

func TestCreate_SavesImagesAndRecord(t *testing.T) {
	svc, dir := newAnalysisService(t)
	ctx := context.Background()

	id, err := svc.Create(ctx, CreateAnalysisInput{
		PatientID: "PAT-42",
		Notes:     "left wrist",
		Images:    map[models.View]UploadedImage{models.ViewAP: {Filename: "ap.png", Data: pngData}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "images", id, "ap.jpg")); err != nil {
		t.Errorf("ap image not written: %v", err)
	}

	detail, err := svc.Get(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if detail.APImageURL == nil || *detail.APImageURL != "/static/images/"+id+"/ap.jpg" {
		t.Errorf("unexpected ap url %v", detail.APImageURL)
	}
	if detail.LatImageURL != nil || detail.HasLat || !detail.HasAP {
		t.Error("lateral view must be absent")
	}
	if detail.Notes == nil || *detail.Notes != "left wrist" {
		t.Error("notes not returned")
	}
	if detail.Summary != SummaryAP || len(detail.Measurements) != 4 {
		t.Errorf("unexpected result: %q with %d measurements", detail.Summary, len(detail.Measurements))
	}
}

func TestCreate_Validation(t *testing.T) {
	svc, dir := newAnalysisService(t)

	if _, err := svc.Create(context.Background(), CreateAnalysisInput{
		Images: map[models.View]UploadedImage{models.ViewAP: {Data: pngData}},
	}); !errors.Is(err, ErrPatientIDRequired) {
		t.Errorf("expected ErrPatientIDRequired, got %v", err)
	}
	if _, err := svc.Create(context.Background(), CreateAnalysisInput{PatientID: "P"}); !errors.Is(err, ErrNoImages) {
		t.Errorf("expected ErrNoImages, got %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Error("nothing must be written for a rejected request")
	}
}

func TestDelete_RemovesFiles(t *testing.T) {
	svc, dir := newAnalysisService(t)
	ctx := context.Background()

	id, err := svc.Create(ctx, CreateAnalysisInput{
		PatientID: "P",
		Images:    map[models.View]UploadedImage{models.ViewLat: {Data: pngData}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(ctx, id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "images", id)); !os.IsNotExist(err) {
		t.Error("image directory must be removed")
	}
	if _, err := svc.Get(ctx, id); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := svc.Delete(ctx, id); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("second delete must report ErrNotFound, got %v", err)
	}
}

func TestHistory_FiltersAndThumbnails(t *testing.T) {
	svc, _ := newAnalysisService(t)
	ctx := context.Background()

	day := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	inputs := []struct {
		patient string
		view    models.View
	}{
		{"PAT-1", models.ViewAP},
		{"PAT-2", models.ViewLat},
		{"PAT-1", models.ViewLat},
	}
	for i, in := range inputs {
		ts := day.AddDate(0, 0, i)
		svc.now = func() time.Time { return ts }
		if _, err := svc.Create(ctx, CreateAnalysisInput{
			PatientID: in.patient,
			Images:    map[models.View]UploadedImage{in.view: {Data: pngData}},
		}); err != nil {
			t.Fatal(err)
		}
	}

	all, err := svc.History(ctx, repository.HistoryFilter{Limit: 20})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || !all[0].Timestamp.After(all[1].Timestamp) {
		t.Fatalf("expected 3 rows newest first, got %d", len(all))
	}
	if all[0].ImageURLs == nil || all[0].ImageURLs.APImageURL != nil || all[0].ImageURLs.LatImageURL == nil {
		t.Error("history rows must carry nested image URLs")
	}

	ranged, _ := svc.History(ctx, repository.HistoryFilter{
		From:  day.AddDate(0, 0, 1).Truncate(24 * time.Hour),
		To:    day.AddDate(0, 0, 1).Truncate(24 * time.Hour).Add(24*time.Hour - time.Nanosecond),
		Limit: 20,
	})
	if len(ranged) != 1 || ranged[0].PatientID != "PAT-2" {
		t.Errorf("date range must select the single day, got %+v", ranged)
	}

	paged, _ := svc.History(ctx, repository.HistoryFilter{Skip: 2, Limit: 20})
	if len(paged) != 1 {
		t.Errorf("expected 1 row after skip, got %d", len(paged))
	}

	patient, err := svc.PatientHistory(ctx, "PAT-1", 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(patient) != 2 {
		t.Fatalf("expected 2 analyses for PAT-1, got %d", len(patient))
	}
	if patient[0].ThumbnailURL == nil || filepath.Base(*patient[0].ThumbnailURL) != "lat.jpg" {
		t.Error("lateral-only analysis must use the lateral thumbnail")
	}
	if patient[1].ThumbnailURL == nil || filepath.Base(*patient[1].ThumbnailURL) != "ap.jpg" {
		t.Error("AP image must be preferred as thumbnail")
	}
}

func newAuthService() *AuthService {
	return NewAuthService(repository.NewMemoryUserRepository(), "test-secret", time.Minute, quietLogger())
}

func TestAuth_RegisterLoginAuthenticate(t *testing.T) {
	svc := newAuthService()
	ctx := context.Background()

	user, err := svc.Register(ctx, models.RegisterRequest{Email: "alice@example.com", Username: "alice", Password: "secret123"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.Role != models.RoleNormal || !user.IsActive {
		t.Errorf("unexpected account %+v", user)
	}

	if _, err := svc.Register(ctx, models.RegisterRequest{Email: "alice@example.com", Username: "other", Password: "secret123"}); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("expected ErrEmailTaken, got %v", err)
	}
	if _, err := svc.Register(ctx, models.RegisterRequest{Email: "b@example.com", Username: "alice", Password: "secret123"}); !errors.Is(err, ErrUsernameTaken) {
		t.Errorf("expected ErrUsernameTaken, got %v", err)
	}

	if _, err := svc.Login(ctx, "alice", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(ctx, "nobody", "secret123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}

	// email works as login too
	token, err := svc.Login(ctx, "alice@example.com", "secret123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		t.Fatal(err)
	}
	if claims["user_id"] != float64(user.ID) {
		t.Errorf("expected user_id claim %d, got %v", user.ID, claims["user_id"])
	}

	got, err := svc.Authenticate(ctx, token)
	if err != nil || got.Username != "alice" {
		t.Errorf("expected alice, got %v %v", got, err)
	}
}

func TestAuth_RejectsForeignAndExpiredTokens(t *testing.T) {
	svc := newAuthService()
	ctx := context.Background()
	if _, err := svc.Register(ctx, models.RegisterRequest{Email: "a@example.com", Username: "alice", Password: "secret123"}); err != nil {
		t.Fatal(err)
	}

	other := NewAuthService(repository.NewMemoryUserRepository(), "other-secret", time.Minute, quietLogger())
	if err := other.EnsureAdmin(ctx, "alice", "a@example.com", "secret123"); err != nil {
		t.Fatal(err)
	}
	foreign, _ := other.Login(ctx, "alice", "secret123")
	if _, err := svc.Authenticate(ctx, foreign); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("token signed with another key must be rejected, got %v", err)
	}

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		UserID: 1,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	signed, _ := expired.SignedString([]byte("test-secret"))
	if _, err := svc.Authenticate(ctx, signed); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired token must be rejected, got %v", err)
	}
}

func TestEnsureAdmin_Idempotent(t *testing.T) {
	users := repository.NewMemoryUserRepository()
	svc := NewAuthService(users, "s", time.Minute, quietLogger())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := svc.EnsureAdmin(ctx, "admin", "admin@example.com", "admin-pass"); err != nil {
			t.Fatal(err)
		}
	}
	admin, err := users.GetByLogin(ctx, "admin")
	if err != nil {
		t.Fatal(err)
	}
	if admin.Role != models.RoleAdmin || admin.ID != 1 {
		t.Errorf("expected a single admin account, got %+v", admin)
	}
}
