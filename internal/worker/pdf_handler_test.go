package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/minio/minio-go/v7"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cvbuilder/internal/cv"
	"cvbuilder/internal/errcode"
	"cvbuilder/internal/persistence"
	"cvbuilder/internal/persistence/persistencetest"
	"cvbuilder/internal/tasks"
)

type fakeObjects struct {
	objects  map[string][]byte
	types    map[string]string
	uploaded map[string][]byte
	readErr  error
}

func (f *fakeObjects) ReadObject(_ context.Context, key string, _ int64) ([]byte, string, error) {
	if f.readErr != nil {
		return nil, "", f.readErr
	}
	data, ok := f.objects[key]
	if !ok {
		return nil, "", minio.ErrorResponse{Code: "NoSuchKey", Message: "The specified key does not exist."}
	}
	return data, f.types[key], nil
}

func (f *fakeObjects) UploadFile(_ context.Context, name string, r io.Reader, _ int64, _ string) (*minio.UploadInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	f.uploaded[name] = data
	return &minio.UploadInfo{Key: name}, nil
}

type fakeGenerator struct {
	html []byte
	err  error
}

func (g *fakeGenerator) FromHTML(_ context.Context, html []byte) ([]byte, error) {
	g.html = html
	if g.err != nil {
		return nil, g.err
	}
	return []byte("%PDF-1.7"), nil
}

type publishCall struct {
	channel string
	msg     PDFGenerationNotifyMessage
}

type fakePublisher struct {
	calls []publishCall
}

func (p *fakePublisher) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	var msg PDFGenerationNotifyMessage
	_ = json.Unmarshal(message.([]byte), &msg)
	p.calls = append(p.calls, publishCall{channel: channel, msg: msg})
	return redis.NewIntResult(1, nil)
}

type harness struct {
	handler   *PDFTaskHandler
	store     *persistencetest.MemoryStore
	repo      *cv.Repository
	objects   *fakeObjects
	generator *fakeGenerator
	publisher *fakePublisher
}

func newHarness(t *testing.T, withPDFColumn bool) *harness {
	t.Helper()
	store := persistencetest.NewMemoryStore()
	cols := []string{
		cv.ColID, cv.ColUserID, cv.ColName, cv.ColTemplateID, cv.ColThemeColor,
		cv.ColPersonalInfo, cv.ColExperiences, cv.ColEducation, cv.ColSkills,
		cv.ColProjects, cv.ColLanguages, cv.ColCertifications,
		cv.ColCreatedAt, cv.ColUpdatedAt,
	}
	if withPDFColumn {
		cols = append(cols, cv.ColPDFObjectKey)
	}
	store.DefineTable(cv.Table, cols...)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &harness{
		store:     store,
		repo:      cv.NewRepository(persistence.NewWriter(store, persistence.WithLogger(logger))),
		objects:   &fakeObjects{objects: map[string][]byte{}, types: map[string]string{}, uploaded: map[string][]byte{}},
		generator: &fakeGenerator{},
		publisher: &fakePublisher{},
	}
	h.handler = NewPDFTaskHandler(h.repo, h.objects, h.generator, h.publisher, logger)
	return h
}

func (h *harness) saveDoc(t *testing.T, id string, owner uint, photo string) cv.Document {
	t.Helper()
	doc := cv.Default()
	doc.PersonalInfo.FirstName = "Grace"
	doc.PersonalInfo.LastName = "Hopper"
	if photo != "" {
		doc.PersonalInfo.Photo = photo
		doc.PersonalInfo.ShowPhoto = true
	}
	saved, err := h.repo.Create(context.Background(), cv.Stamp(doc, id, owner, time.Now()))
	require.NoError(t, err)
	return saved
}

func task(t *testing.T, cvID string, userID uint) *asynq.Task {
	t.Helper()
	tk, err := tasks.NewCVPDFGenerateTask(cvID, userID, "corr-1", 5)
	require.NoError(t, err)
	return tk
}

const docID = "5b0c8f5e-8a3b-4b8e-9e51-3f2d8c1a7b10"

func TestProcessTask_Success(t *testing.T) {
	h := newHarness(t, true)
	photo := "user-assets/1/face.png"
	h.objects.objects[photo] = []byte{0x89, 'P', 'N', 'G'}
	h.objects.types[photo] = "image/png"
	h.saveDoc(t, docID, 1, photo)

	require.NoError(t, h.handler.ProcessTask(context.Background(), task(t, docID, 1)))

	assert.Contains(t, string(h.generator.html), "Grace Hopper")
	assert.Contains(t, string(h.generator.html), "data:image/png;base64,")
	require.Len(t, h.objects.uploaded, 1)

	key, err := h.repo.PDFObjectKey(context.Background(), docID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "generated-cvs/1/"))
	assert.Equal(t, []byte("%PDF-1.7"), h.objects.uploaded[key])

	require.Len(t, h.publisher.calls, 1)
	call := h.publisher.calls[0]
	assert.Equal(t, "user_notify:1", call.channel)
	assert.Equal(t, StatusCompleted, call.msg.Status)
	assert.Equal(t, errcode.OK, call.msg.ErrorCode)
	assert.Equal(t, docID, call.msg.CVID)
	assert.Equal(t, "corr-1", call.msg.CorrelationID)
}

func TestProcessTask_MissingPhotoStillCompletes(t *testing.T) {
	h := newHarness(t, true)
	h.saveDoc(t, docID, 1, "user-assets/1/gone.png")

	require.NoError(t, h.handler.ProcessTask(context.Background(), task(t, docID, 1)))

	assert.NotContains(t, string(h.generator.html), "data:image/")
	require.Len(t, h.publisher.calls, 1)
	msg := h.publisher.calls[0].msg
	assert.Equal(t, StatusCompleted, msg.Status)
	assert.Equal(t, errcode.ResourceMissing, msg.ErrorCode)
	assert.Equal(t, []string{"user-assets/1/gone.png"}, msg.MissingKeys)
}

func TestProcessTask_ForeignPhotoKeyRejected(t *testing.T) {
	h := newHarness(t, true)
	h.objects.objects["user-assets/2/face.png"] = []byte("x")
	h.objects.types["user-assets/2/face.png"] = "image/png"
	h.saveDoc(t, docID, 1, "user-assets/2/face.png")

	require.NoError(t, h.handler.ProcessTask(context.Background(), task(t, docID, 1)))
	assert.NotContains(t, string(h.generator.html), "data:image/")
	assert.Equal(t, errcode.ResourceMissing, h.publisher.calls[0].msg.ErrorCode)
}

func TestProcessTask_CVNotFoundIsSkipped(t *testing.T) {
	h := newHarness(t, true)

	require.NoError(t, h.handler.ProcessTask(context.Background(), task(t, docID, 1)))
	assert.Empty(t, h.publisher.calls)
	assert.Nil(t, h.generator.html)
}

func TestProcessTask_WrongOwner(t *testing.T) {
	h := newHarness(t, true)
	h.saveDoc(t, docID, 1, "")

	err := h.handler.ProcessTask(context.Background(), task(t, docID, 2))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Nil(t, h.generator.html)
}

func TestProcessTask_LaggingSchemaSkipsRetry(t *testing.T) {
	h := newHarness(t, false)
	h.saveDoc(t, docID, 1, "")

	err := h.handler.ProcessTask(context.Background(), task(t, docID, 1))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)

	require.Len(t, h.publisher.calls, 1)
	msg := h.publisher.calls[0].msg
	assert.Equal(t, StatusError, msg.Status)
	assert.Equal(t, errcode.SchemaMismatch, msg.ErrorCode)

	h.store.AddColumn(cv.Table, cv.ColPDFObjectKey)
	require.NoError(t, h.handler.ProcessTask(context.Background(), task(t, docID, 1)))
}

func TestProcessTask_GeneratorFailureRetries(t *testing.T) {
	h := newHarness(t, true)
	h.saveDoc(t, docID, 1, "")
	h.generator.err = errors.New("chromium crashed")

	err := h.handler.ProcessTask(context.Background(), task(t, docID, 1))
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, h.publisher.calls, "no error notification before the final attempt")
	assert.Empty(t, h.objects.uploaded)
}

func TestProcessTask_PhotoReadFailureRetries(t *testing.T) {
	h := newHarness(t, true)
	h.saveDoc(t, docID, 1, "user-assets/1/face.png")
	h.objects.readErr = errors.New("connection reset")

	err := h.handler.ProcessTask(context.Background(), task(t, docID, 1))
	assert.ErrorContains(t, err, "connection reset")
	assert.Nil(t, h.generator.html)
}

func TestProcessTask_InvalidPayload(t *testing.T) {
	h := newHarness(t, true)

	err := h.handler.ProcessTask(context.Background(), asynq.NewTask(tasks.TypeCVPDFGenerate, []byte("{}")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestAsynqLogger_ForwardsToSlog(t *testing.T) {
	var buf bytes.Buffer
	l := NewAsynqLogger(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	l.Warn("lease ", "expired")

	out := buf.String()
	assert.Contains(t, out, `"msg":"lease expired"`)
	assert.Contains(t, out, `"component":"asynq"`)
	assert.Contains(t, out, `"level":"WARN"`)
}
