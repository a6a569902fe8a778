package api

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"cvbuilder/internal/access"
	"cvbuilder/internal/auth"
	"cvbuilder/internal/cv"
	"cvbuilder/internal/database"
	"cvbuilder/internal/entitlement"
	"cvbuilder/internal/persistence"
	"cvbuilder/internal/persistence/persistencetest"
	"cvbuilder/internal/service"
	"cvbuilder/internal/subscription"
)

type memSessions struct {
	mu       sync.Mutex
	revoked  map[string]bool
	hits     map[string]int64
	failures map[string]int
}

func newMemSessions() *memSessions {
	return &memSessions{revoked: map[string]bool{}, hits: map[string]int64{}, failures: map[string]int{}}
}

func (s *memSessions) IsRevoked(_ context.Context, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revoked[jti], nil
}

func (s *memSessions) Revoke(_ context.Context, jti string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[jti] = true
	return nil
}

func (s *memSessions) HitLogin(_ context.Context, ip, username string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ip + ":" + strings.ToLower(username)
	s.hits[key]++
	return s.hits[key], nil
}

func (s *memSessions) Locked(_ context.Context, username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures[strings.ToLower(username)] >= 3
}

func (s *memSessions) RecordFailure(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[strings.ToLower(username)]++
	return nil
}

func (s *memSessions) ClearFailures(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, strings.ToLower(username))
	return nil
}

type recordingQueue struct {
	tasks []*asynq.Task
}

func (q *recordingQueue) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{ID: "task-42", Type: task.Type()}, nil
}

type apiEnv struct {
	router *gin.Engine
	db     *gorm.DB
	auth   *auth.AuthService
	queue  *recordingQueue
	repo   *cv.Repository
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&database.User{}, &database.Subscription{}))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	authSvc, err := auth.NewAuthService(privPEM, pubPEM, time.Minute, time.Hour)
	require.NoError(t, err)

	store := persistencetest.NewMemoryStore()
	store.DefineTable(cv.Table,
		cv.ColID, cv.ColUserID, cv.ColName, cv.ColTemplateID, cv.ColThemeColor,
		cv.ColPersonalInfo, cv.ColExperiences, cv.ColEducation, cv.ColSkills,
		cv.ColProjects, cv.ColLanguages, cv.ColCertifications,
		cv.ColCreatedAt, cv.ColUpdatedAt, cv.ColPDFObjectKey,
	)
	repo := cv.NewRepository(persistence.NewWriter(store, persistence.WithLogger(log)))
	subs := subscription.NewStore(db)
	engine := entitlement.NewEngine(subs, repo, log)
	policy := access.NewPolicy(repo, engine)
	queue := &recordingQueue{}
	cvs := service.NewCVService(repo, engine, policy, queue, newFakeStorage(), service.WithLogger(log))

	router := NewRouter(log)
	RegisterRoutes(router, Dependencies{
		DB:                    db,
		Auth:                  authSvc,
		Sessions:              newMemSessions(),
		CVs:                   cvs,
		Subscriptions:         subs,
		Assets:                newFakeStorage(),
		Logger:                log,
		LoginRateLimitPerHour: 100,
	})
	return &apiEnv{router: router, db: db, auth: authSvc, queue: queue, repo: repo}
}

func (e *apiEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *apiEnv) signup(t *testing.T, username string) (string, uint) {
	t.Helper()
	creds := gin.H{"username": username, "password": "correct horse"}
	w := e.do(t, http.MethodPost, "/v1/auth/register", "", creds)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return e.login(t, username), e.userID(t, username)
}

func (e *apiEnv) login(t *testing.T, username string) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/v1/auth/login", "", gin.H{"username": username, "password": "correct horse"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp tokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.AccessToken
}

func (e *apiEnv) userID(t *testing.T, username string) uint {
	t.Helper()
	var u database.User
	require.NoError(t, e.db.Where("username = ?", username).First(&u).Error)
	return u.ID
}

func (e *apiEnv) admin(t *testing.T) string {
	t.Helper()
	hash, err := auth.HashPassword("correct horse")
	require.NoError(t, err)
	require.NoError(t, e.db.Create(&database.User{Username: "root", PasswordHash: hash, IsAdmin: true}).Error)
	return e.login(t, "root")
}

func newDoc(name string) cv.Document {
	doc := cv.Default()
	doc.Name = name
	doc.PersonalInfo.FirstName = "Ada"
	return doc
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestRoutes_FreeLimitThenUpgrade(t *testing.T) {
	env := newAPIEnv(t)
	token, uid := env.signup(t, "alice")
	adminToken := env.admin(t)

	ent := decode[entitlement.Check](t, env.do(t, http.MethodGet, "/v1/user/subscription", token, nil))
	assert.Equal(t, subscription.PlanFree, ent.PlanType)
	assert.True(t, ent.CanCreateCV)

	for _, name := range []string{"one", "two"} {
		w := env.do(t, http.MethodPost, "/v1/cv", token, newDoc(name))
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w := env.do(t, http.MethodPost, "/v1/cv", token, newDoc("three"))
	require.Equal(t, http.StatusForbidden, w.Code)
	denied := decode[map[string]any](t, w)
	assert.Equal(t, true, denied["upgrade"])
	assert.Equal(t, string(entitlement.ActionSave), denied["action"])

	draft := decode[service.Draft](t, env.do(t, http.MethodGet, "/v1/cv/new", token, nil))
	assert.True(t, draft.Preview)

	// 非管理员不能授权
	w = env.do(t, http.MethodPatch, "/v1/admin/subscriptions", token, gin.H{"user_id": uid, "plan_type": "premium"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodPatch, "/v1/admin/subscriptions", adminToken, gin.H{"user_id": uid, "plan_type": "gold"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPatch, "/v1/admin/subscriptions", adminToken, gin.H{"user_id": 999, "plan_type": "premium"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPatch, "/v1/admin/subscriptions", adminToken, gin.H{"user_id": uid, "plan_type": "premium"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, "/v1/cv", token, newDoc("three"))
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	users := decode[struct {
		Items []adminUserItem `json:"items"`
	}](t, env.do(t, http.MethodGet, "/v1/admin/users", adminToken, nil))
	require.Len(t, users.Items, 2)
	assert.Equal(t, subscription.PlanPremium, users.Items[0].PlanType)
	assert.Equal(t, subscription.PlanFree, users.Items[1].PlanType)
}

func TestRoutes_SubscriptionHistory(t *testing.T) {
	env := newAPIEnv(t)
	token, uid := env.signup(t, "carol")
	adminToken := env.admin(t)

	type history struct {
		Items []historyItem `json:"items"`
	}

	w := env.do(t, http.MethodGet, "/v1/user/subscription/history", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	empty := decode[history](t, env.do(t, http.MethodGet, "/v1/user/subscription/history", token, nil))
	assert.Empty(t, empty.Items)

	end := time.Now().Add(30 * 24 * time.Hour)
	for _, body := range []gin.H{
		{"user_id": uid, "plan_type": "premium", "end_date": end},
		{"user_id": uid, "plan_type": "premium"},
	} {
		w = env.do(t, http.MethodPatch, "/v1/admin/subscriptions", adminToken, body)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	got := decode[history](t, env.do(t, http.MethodGet, "/v1/user/subscription/history", token, nil))
	require.Len(t, got.Items, 2)
	assert.True(t, got.Items[0].Current)
	assert.Equal(t, subscription.StatusActive, got.Items[0].Status)
	assert.Nil(t, got.Items[0].EndDate)
	assert.False(t, got.Items[1].Current)
	assert.Equal(t, subscription.StatusCancelled, got.Items[1].Status)
	assert.NotNil(t, got.Items[1].EndDate)

	// 他人的订阅记录不可见
	other, _ := env.signup(t, "dave")
	none := decode[history](t, env.do(t, http.MethodGet, "/v1/user/subscription/history", other, nil))
	assert.Empty(t, none.Items)
}

func TestRoutes_CVLifecycle(t *testing.T) {
	env := newAPIEnv(t)
	token, _ := env.signup(t, "bob")
	otherToken, _ := env.signup(t, "carol")

	created := decode[cv.Document](t, env.do(t, http.MethodPost, "/v1/cv", token, newDoc("mine")))
	require.NotEmpty(t, created.ID)

	got := decode[struct {
		CV     cv.Document   `json:"cv"`
		Access access.Access `json:"access"`
	}](t, env.do(t, http.MethodGet, "/v1/cv/"+created.ID, token, nil))
	assert.Equal(t, "mine", got.CV.Name)
	assert.Equal(t, access.Full(), got.Access)

	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/v1/cv/"+created.ID, otherToken, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/v1/cv/not-a-uuid", token, nil).Code)

	foreign := decode[access.Access](t, env.do(t, http.MethodGet, "/v1/cv/"+created.ID+"/access", otherToken, nil))
	assert.Equal(t, access.None(), foreign)

	update := got.CV
	update.Name = "renamed"
	w := env.do(t, http.MethodPut, "/v1/cv/"+created.ID, token, update)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "renamed", decode[cv.Document](t, w).Name)

	dup := decode[cv.Document](t, env.do(t, http.MethodPost, "/v1/cv/"+created.ID+"/duplicate", token, nil))
	assert.NotEqual(t, created.ID, dup.ID)
	assert.Equal(t, "renamed (copy)", dup.Name)

	w = env.do(t, http.MethodPost, "/v1/cv/export/html", token, update)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "Ada")

	w = env.do(t, http.MethodGet, "/v1/cv/"+created.ID+"/download-link", token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPost, "/v1/cv/"+created.ID+"/pdf", token, nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	body := decode[map[string]string](t, w)
	assert.Equal(t, "task-42", body["task_id"])
	assert.Equal(t, w.Header().Get("X-Correlation-ID"), body["correlation_id"])
	require.Len(t, env.queue.tasks, 1)

	require.NoError(t, env.repo.SetPDFObjectKey(context.Background(), created.ID, "generated-cvs/1/x.pdf"))
	link := decode[map[string]string](t, env.do(t, http.MethodGet, "/v1/cv/"+created.ID+"/download-link", token, nil))
	assert.Equal(t, "https://example.invalid/generated-cvs/1/x.pdf", link["url"])

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/v1/cv/"+dup.ID, token, nil).Code)
	list := decode[struct {
		Items []cv.Document `json:"items"`
	}](t, env.do(t, http.MethodGet, "/v1/cv", token, nil))
	assert.Len(t, list.Items, 1)
}

func TestRoutes_InvalidDocument(t *testing.T) {
	env := newAPIEnv(t)
	token, _ := env.signup(t, "dave")

	doc := newDoc("bad")
	doc.Skills = []cv.Skill{{ID: "s1", Name: "Go", Level: "guru"}}
	w := env.do(t, http.MethodPost, "/v1/cv", token, doc)
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
}

func TestRoutes_AuthFlow(t *testing.T) {
	env := newAPIEnv(t)
	creds := gin.H{"username": "erin", "password": "correct horse"}
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/v1/auth/register", "", creds).Code)
	assert.Equal(t, http.StatusConflict, env.do(t, http.MethodPost, "/v1/auth/register", "", creds).Code)

	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/v1/cv", "", nil).Code)

	w := env.do(t, http.MethodPost, "/v1/auth/login", "", creds)
	require.Equal(t, http.StatusOK, w.Code)
	var refresh string
	for _, c := range w.Result().Cookies() {
		if c.Name == refreshTokenCookieName {
			refresh = c.Value
		}
	}
	require.NotEmpty(t, refresh)

	w = env.do(t, http.MethodPost, "/v1/auth/refresh", "", gin.H{"refresh_token": refresh})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// 旧刷新令牌已轮换
	w = env.do(t, http.MethodPost, "/v1/auth/refresh", "", gin.H{"refresh_token": refresh})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	for i := 0; i < 3; i++ {
		w = env.do(t, http.MethodPost, "/v1/auth/login", "", gin.H{"username": "erin", "password": "wrong password"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}
	w = env.do(t, http.MethodPost, "/v1/auth/login", "", creds)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRoutes_PasswordGate(t *testing.T) {
	env := newAPIEnv(t)
	hash, err := auth.HashPassword("correct horse")
	require.NoError(t, err)
	require.NoError(t, env.db.Create(&database.User{Username: "frank", PasswordHash: hash, MustChangePassword: true}).Error)
	token := env.login(t, "frank")

	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/v1/cv", token, nil).Code)

	w := env.do(t, http.MethodPost, "/v1/user/change-password", token, gin.H{
		"current_password": "correct horse",
		"new_password":     "battery staple",
		"confirm_password": "battery staple",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	fresh := decode[tokenResponse](t, w)
	assert.False(t, fresh.MustChangePassword)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/v1/cv", fresh.AccessToken, nil).Code)
}

func TestRoutes_Templates(t *testing.T) {
	env := newAPIEnv(t)

	list := decode[struct {
		Items []map[string]any `json:"items"`
	}](t, env.do(t, http.MethodGet, "/v1/templates", "", nil))
	assert.Len(t, list.Items, 9)

	w := env.do(t, http.MethodGet, "/v1/templates/classic/preview?color=%23ff0000", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "#ff0000")

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/v1/templates/nope/preview", "", nil).Code)
}

func TestOriginAllowed(t *testing.T) {
	cases := []struct {
		origin  string
		host    string
		allowed []string
		want    bool
	}{
		{"", "api.example", nil, true},
		{"https://api.example", "api.example", nil, true},
		{"https://evil.example", "api.example", nil, false},
		{"https://app.example", "api.example", []string{"https://app.example"}, true},
		{"https://api.example", "api.example", []string{"https://app.example"}, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, originAllowed(tc.origin, tc.host, tc.allowed), tc.origin)
	}
}
