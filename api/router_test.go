package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"autorbi/api/handlers/extractions"
	"autorbi/internal/activity"
	"autorbi/internal/ai"
	"autorbi/internal/auth"
	"autorbi/internal/config"
	"autorbi/internal/equipment"
	"autorbi/internal/extraction"
	"autorbi/internal/files"
	"autorbi/internal/logger"
	"autorbi/internal/models"
	"autorbi/internal/storage"
	"autorbi/internal/testutil"
	"autorbi/internal/work"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordingQueue struct {
	mu  sync.Mutex
	ids []uint
}

func (q *recordingQueue) EnqueueExtraction(_ context.Context, id uint) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, id)
	return nil
}

type testApp struct {
	container *AppContainer
	router    *gin.Engine
	queue     *recordingQueue
	admin     *models.User
	user      *models.User
	other     *models.User
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zaptest.NewLogger(t)
	logger.Set(log)

	db := testutil.NewDB(t)
	cfg := &config.Config{
		Auth:       config.AuthConfig{JWTSecret: "test-secret", Issuer: "autorbi-test", TokenTTL: 3600},
		Extraction: config.ExtractionConfig{PollInterval: 20},
	}

	q := &recordingQueue{}
	c := &AppContainer{
		DB:         db,
		Config:     cfg,
		Storage:    storage.NewStore(afero.NewMemMapFs(), 1<<20, log),
		Extractor:  ai.Unavailable{Reason: "test"},
		JWTService: auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, time.Hour),
		logger:     log,
	}
	c.ActivityService = activity.NewService(db, log)
	c.WorkService = work.NewService(db, c.ActivityService, log)
	c.EquipmentService = equipment.NewService(db, c.WorkService, c.ActivityService, log)
	c.FileService = files.NewService(db, c.WorkService, c.ActivityService, log)
	c.initServices(q)

	return &testApp{
		container: c,
		router:    NewRouter(c),
		queue:     q,
		admin:     testutil.CreateUser(t, db, "admin", models.UserRoleAdmin),
		user:      testutil.CreateUser(t, db, "alice", models.UserRoleEngineer),
		other:     testutil.CreateUser(t, db, "bob", models.UserRoleEngineer),
	}
}

func (a *testApp) token(t *testing.T, u *models.User) string {
	t.Helper()
	tok, err := a.container.JWTService.Issue(u.ID, u.Role)
	require.NoError(t, err)
	return tok
}

type envelope struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (a *testApp) do(t *testing.T, u *models.User, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if u != nil {
		req.Header.Set("Authorization", "Bearer "+a.token(t, u))
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func (a *testApp) createWork(t *testing.T, u *models.User, name string) uint {
	t.Helper()
	w, env := a.do(t, u, http.MethodPost, "/api/works", map[string]any{"name": name})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created models.Work
	require.NoError(t, json.Unmarshal(env.Data, &created))
	return created.ID
}

func (a *testApp) upload(t *testing.T, u *models.User, workID uint, filename string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte("%PDF-1.4 test"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/works/%d/extraction/start", workID), &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+a.token(t, u))
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func TestHealthAndReadiness(t *testing.T) {
	app := newTestApp(t)

	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")

	w = httptest.NewRecorder()
	app.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var ready ReadinessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ready))
	assert.Equal(t, "connected", ready.Database)
	assert.Equal(t, "disabled", ready.Redis)

	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestAPIRequiresToken(t *testing.T) {
	app := newTestApp(t)

	w, _ := app.do(t, nil, http.MethodGet, "/api/works", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/works", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	app.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWorkLifecycleIsRecordedInHistory(t *testing.T) {
	app := newTestApp(t)
	workID := app.createWork(t, app.user, "Plant A")

	w, _ := app.do(t, app.user, http.MethodPut, fmt.Sprintf("/api/works/%d", workID), map[string]any{"description": "turnaround 2025"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, _ = app.do(t, app.user, http.MethodPost, "/api/equipments", map[string]any{
		"work_id":          workID,
		"equipment_number": "V-001",
		"description":      "Air Receiver",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w, env := app.do(t, app.user, http.MethodGet, fmt.Sprintf("/api/history/work/%d", workID), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var acts []models.Activity
	require.NoError(t, json.Unmarshal(env.Data, &acts))
	require.Len(t, acts, 3)

	var got []string
	for _, a := range acts {
		got = append(got, string(a.EntityType)+":"+string(a.Action))
	}
	assert.ElementsMatch(t, []string{"work:created", "work:updated", "equipment:created"}, got)

	w, _ = app.do(t, app.other, http.MethodGet, fmt.Sprintf("/api/history/work/%d", workID), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = app.do(t, app.user, http.MethodGet, "/api/history/work/9999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHistoryByUserIsScopedToSelf(t *testing.T) {
	app := newTestApp(t)
	app.createWork(t, app.user, "Plant A")

	w, _ := app.do(t, app.other, http.MethodGet, fmt.Sprintf("/api/history/user/%d", app.user.ID), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = app.do(t, app.admin, http.MethodGet, fmt.Sprintf("/api/history/user/%d", app.user.ID), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"action":"created"`)
}

func TestExtractionStartAndStatus(t *testing.T) {
	app := newTestApp(t)
	workID := app.createWork(t, app.user, "Plant A")

	w := app.upload(t, app.user, workID, "MLK PMT 10103 - V-003.pdf")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	var started extraction.StatusView
	require.NoError(t, json.Unmarshal(env.Data, &started))
	assert.Equal(t, models.ExtractionPending, started.Status)
	assert.Equal(t, []uint{started.ID}, app.queue.ids)

	rec, env := app.do(t, app.user, http.MethodGet, fmt.Sprintf("/api/extractions/%d/status", started.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var status extraction.StatusView
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.Equal(t, started.ID, status.ID)
	assert.Equal(t, "MLK PMT 10103 - V-003.pdf", status.OriginalFile)

	rec, env = app.do(t, app.user, http.MethodGet, fmt.Sprintf("/api/extractions/progress?ids=%d", started.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var progress extractions.ProgressResponse
	require.NoError(t, json.Unmarshal(env.Data, &progress))
	assert.Equal(t, 1, progress.Jobs)
	assert.Equal(t, 1, progress.Pending)
	assert.False(t, progress.Done)

	rec, _ = app.do(t, app.other, http.MethodGet, fmt.Sprintf("/api/extractions/%d/status", started.ID), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = app.do(t, app.user, http.MethodGet, "/api/extractions/9999/status", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExtractionStartRejectsNonPDF(t *testing.T) {
	app := newTestApp(t)
	workID := app.createWork(t, app.user, "Plant A")

	w := app.upload(t, app.user, workID, "drawing.png")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Empty(t, app.queue.ids)
}

func TestQueueStatsWithoutRedis(t *testing.T) {
	app := newTestApp(t)

	w, _ := app.do(t, app.user, http.MethodGet, "/api/admin/extraction-queue", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = app.do(t, app.admin, http.MethodGet, "/api/admin/extraction-queue", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestUnavailableQueueFailsExtraction(t *testing.T) {
	app := newTestApp(t)
	app.container.initServices(unavailableQueue{})
	app.router = NewRouter(app.container)
	workID := app.createWork(t, app.user, "Plant A")

	w := app.upload(t, app.user, workID, "MLK PMT 10103 - V-003.pdf")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var e models.Extraction
	require.NoError(t, app.container.DB.Where("work_id = ?", workID).First(&e).Error)
	assert.Equal(t, models.ExtractionFailed, e.Status)
}

func TestProgressWebSocket(t *testing.T) {
	app := newTestApp(t)
	workID := app.createWork(t, app.user, "Plant A")

	e := &models.Extraction{
		WorkID:           workID,
		CreatedBy:        app.user.ID,
		Status:           models.ExtractionInProgress,
		TotalPages:       4,
		ProcessedPages:   1,
		OriginalFilename: "MLK PMT 10103 - V-003.pdf",
	}
	require.NoError(t, app.container.DB.Create(e).Error)

	srv := httptest.NewServer(app.router)
	defer srv.Close()

	url := fmt.Sprintf("ws%s/api/ws/extractions/%d?token=%s", strings.TrimPrefix(srv.URL, "http"), e.ID, app.token(t, app.user))
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var msg extractions.ProgressMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, extractions.MessageProgress, msg.Type)
	assert.Equal(t, 1, msg.Page)
	assert.Equal(t, 4, msg.Total)

	require.NoError(t, app.container.DB.Model(e).Updates(map[string]any{
		"status":          models.ExtractionCompleted,
		"processed_pages": 4,
	}).Error)

	for msg.Type == extractions.MessageProgress {
		require.NoError(t, conn.ReadJSON(&msg))
	}
	assert.Equal(t, extractions.MessageCompleted, msg.Type)
	assert.Equal(t, 4, msg.Page)
	assert.InDelta(t, 100.0, msg.Percent, 0.001)
}

func TestProgressWebSocketRejectsStranger(t *testing.T) {
	app := newTestApp(t)
	workID := app.createWork(t, app.user, "Plant A")
	e := &models.Extraction{WorkID: workID, CreatedBy: app.user.ID, Status: models.ExtractionPending}
	require.NoError(t, app.container.DB.Create(e).Error)

	srv := httptest.NewServer(app.router)
	defer srv.Close()

	url := fmt.Sprintf("ws%s/api/ws/extractions/%d?token=%s", strings.TrimPrefix(srv.URL, "http"), e.ID, app.token(t, app.other))
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
