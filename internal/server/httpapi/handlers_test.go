package httpapi

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpetrovs/attachsync/internal/logging"
	"github.com/mpetrovs/attachsync/internal/server/cas"
	"github.com/mpetrovs/attachsync/internal/server/chunks"
	"github.com/mpetrovs/attachsync/internal/server/models"
	"github.com/mpetrovs/attachsync/internal/server/remote"
	"github.com/mpetrovs/attachsync/internal/server/repositories/memory"
	"github.com/mpetrovs/attachsync/internal/server/syncer"
	"github.com/mpetrovs/attachsync/internal/server/webhooks"
)

const testSecret = "api-test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

// stubRemote satisfies remote.Client for handler tests. Handlers only reach
// the remote on the read paths; everything else is queued.
type stubRemote struct {
	listErr     error
	attachments []remote.Attachment
	content     map[string][]byte
}

func (s *stubRemote) Upload(ctx context.Context, fileName string, data []byte) (remote.Attachment, error) {
	return remote.Attachment{GUID: "stub-guid", URL: "https://tracker/att/stub-guid", FileName: fileName}, nil
}

func (s *stubRemote) Link(ctx context.Context, workItemID int64, url, fileName, comment string) error {
	return nil
}

func (s *stubRemote) List(ctx context.Context, workItemID int64) ([]remote.Attachment, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.attachments, nil
}

func (s *stubRemote) Download(ctx context.Context, guid string) ([]byte, error) {
	data, ok := s.content[guid]
	if !ok {
		return nil, fmt.Errorf("no such attachment %s", guid)
	}
	return data, nil
}

type apiEnv struct {
	router *gin.Engine
	repos  *memory.Manager
	remote *stubRemote
}

func newAPI(t *testing.T) *apiEnv {
	t.Helper()
	logger := logging.NewDefault()
	repos := memory.NewManager()
	store, err := cas.NewDiskStore(t.TempDir())
	require.NoError(t, err)

	stub := &stubRemote{content: map[string][]byte{}}
	orch := syncer.NewOrchestrator(nil, repos, store, stub, 64<<20, logger)
	chunkMgr, err := chunks.NewManager(repos.Sessions(nil), chunks.Options{
		StagingDir:   t.TempDir(),
		MaxFileSize:  64 << 20,
		MaxChunkSize: 8 << 20,
		SessionTTL:   time.Minute,
	}, logger)
	require.NoError(t, err)
	ingestor := webhooks.NewIngestor(testSecret, repos.Jobs(nil), repos.Events(nil), logger)

	return &apiEnv{
		router: NewRouter(NewHandler(orch, chunkMgr, ingestor, logger), logger),
		repos:  repos,
		remote: stub,
	}
}

func (e *apiEnv) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dst))
}

func TestUpload_WholeFile(t *testing.T) {
	e := newAPI(t)

	w := e.do(t, http.MethodPost, "/api/attachments/v1/upload", gin.H{
		"fileName":   "notes.txt",
		"workItemId": 42,
		"content":    base64.StdEncoding.EncodeToString([]byte("note body")),
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var got attachmentBody
	decode(t, w, &got)
	assert.Equal(t, models.StatusPending, got.SyncStatus)
	assert.Equal(t, int64(42), got.WorkItemID)
	assert.NotEmpty(t, got.ContentHash)
}

func TestUpload_DuplicateReturnsSameRecord(t *testing.T) {
	e := newAPI(t)
	body := gin.H{
		"fileName":   "dup.bin",
		"workItemId": 42,
		"content":    base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 1024)),
	}

	var first, second attachmentBody
	w := e.do(t, http.MethodPost, "/api/attachments/v1/upload", body, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	decode(t, w, &first)

	w = e.do(t, http.MethodPost, "/api/attachments/v1/upload", body, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	decode(t, w, &second)

	assert.Equal(t, first.ID, second.ID)
}

func TestUpload_ChunkedOutOfOrder(t *testing.T) {
	e := newAPI(t)

	chunkBytes := [][]byte{
		bytes.Repeat([]byte{'a'}, 100),
		bytes.Repeat([]byte{'b'}, 100),
		bytes.Repeat([]byte{'c'}, 100),
		bytes.Repeat([]byte{'d'}, 100),
		bytes.Repeat([]byte{'e'}, 50),
	}
	var total int64
	for _, p := range chunkBytes {
		total += int64(len(p))
	}

	// first chunk opens the session
	w := e.do(t, http.MethodPost, "/api/attachments/v1/upload", gin.H{
		"fileName":    "big.bin",
		"workItemId":  42,
		"chunkIndex":  3,
		"totalChunks": 5,
		"totalSize":   total,
		"content":     base64.StdEncoding.EncodeToString(chunkBytes[2]),
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var progress chunkResponse
	decode(t, w, &progress)
	require.NotEmpty(t, progress.SessionUUID)
	assert.Equal(t, 1, progress.ChunksReceived)
	session := progress.SessionUUID

	for _, index := range []int{1, 5, 2} {
		w = e.do(t, http.MethodPost, "/api/attachments/v1/upload", gin.H{
			"workItemId":  42,
			"sessionUuid": session,
			"chunkIndex":  index,
			"content":     base64.StdEncoding.EncodeToString(chunkBytes[index-1]),
		}, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	// 4 of 5 received, 80%
	w = e.do(t, http.MethodGet, "/api/attachments/v1/upload-session/"+session, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &progress)
	assert.Equal(t, 4, progress.ChunksReceived)
	assert.Equal(t, 5, progress.TotalChunks)
	assert.InDelta(t, 80.0, progress.PercentComplete, 0.01)

	// last chunk completes and assembles
	w = e.do(t, http.MethodPost, "/api/attachments/v1/upload", gin.H{
		"workItemId":  42,
		"sessionUuid": session,
		"chunkIndex":  4,
		"content":     base64.StdEncoding.EncodeToString(chunkBytes[3]),
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	decode(t, w, &progress)
	assert.Equal(t, 5, progress.ChunksReceived)
	assert.InDelta(t, 100.0, progress.PercentComplete, 0.01)
	require.NotNil(t, progress.Attachment)
	assert.Equal(t, models.StatusPending, progress.Attachment.SyncStatus)
	assert.Equal(t, total, progress.Attachment.SizeBytes)
	assert.Equal(t, "big.bin", progress.Attachment.FileName)

	// the session is terminal but still reports completion
	w = e.do(t, http.MethodGet, "/api/attachments/v1/upload-session/"+session, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &progress)
	assert.Equal(t, 5, progress.ChunksReceived)
	assert.Equal(t, 5, progress.TotalChunks)
	assert.InDelta(t, 100.0, progress.PercentComplete, 0.01)

	// further chunks are refused
	w = e.do(t, http.MethodPost, "/api/attachments/v1/upload", gin.H{
		"workItemId":  42,
		"sessionUuid": session,
		"chunkIndex":  1,
		"content":     base64.StdEncoding.EncodeToString(chunkBytes[0]),
	}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpload_ValidationError(t *testing.T) {
	e := newAPI(t)

	w := e.do(t, http.MethodPost, "/api/attachments/v1/upload", gin.H{
		"fileName":   "",
		"workItemId": 42,
		"content":    base64.StdEncoding.EncodeToString([]byte("x")),
	}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListAttachments_RemoteDown_DegradesWithWarning(t *testing.T) {
	e := newAPI(t)
	e.remote.listErr = fmt.Errorf("tracker unreachable")

	w := e.do(t, http.MethodPost, "/api/attachments/v1/upload", gin.H{
		"fileName":   "local.txt",
		"workItemId": 42,
		"content":    base64.StdEncoding.EncodeToString([]byte("local bytes")),
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w = e.do(t, http.MethodGet, "/api/attachments/v1/attachments/42", nil, nil)
	require.Equal(t, http.StatusOK, w.Code, "remote failure must not fail the local view")

	var resp struct {
		LocalAttachments []attachmentBody `json:"localAttachments"`
		AdoAttachments   []any            `json:"adoAttachments"`
		Warning          string           `json:"warning"`
	}
	decode(t, w, &resp)
	assert.Len(t, resp.LocalAttachments, 1)
	assert.Empty(t, resp.AdoAttachments)
	assert.NotEmpty(t, resp.Warning)
}

func TestForceSync(t *testing.T) {
	e := newAPI(t)

	w := e.do(t, http.MethodPost, "/api/attachments/v1/force-sync/42", nil, nil)
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp struct {
		Status string `json:"status"`
		JobID  string `json:"jobId"`
	}
	decode(t, w, &resp)
	assert.Equal(t, "SYNCING", resp.Status)
	assert.NotEmpty(t, resp.JobID)
}

func TestDeleteAttachment(t *testing.T) {
	e := newAPI(t)

	w := e.do(t, http.MethodPost, "/api/attachments/v1/upload", gin.H{
		"fileName":   "del.txt",
		"workItemId": 42,
		"content":    base64.StdEncoding.EncodeToString([]byte("bye")),
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var rec attachmentBody
	decode(t, w, &rec)

	w = e.do(t, http.MethodDelete, "/api/attachments/v1/attachments/"+rec.ID, nil, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = e.do(t, http.MethodDelete, "/api/attachments/v1/attachments/"+rec.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDownload_FileNameHeaderEscaped(t *testing.T) {
	e := newAPI(t)
	e.remote.content["guid-77"] = []byte("remote bytes")

	name := `quarterly "final" répört.bin`
	w := e.do(t, http.MethodPost, "/api/attachments/v1/download/guid-77", gin.H{
		"fileName":   name,
		"workItemId": 42,
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "remote bytes", w.Body.String())

	// the awkward name must survive a header round-trip intact
	disposition := w.Header().Get("Content-Disposition")
	mediaType, params, err := mime.ParseMediaType(disposition)
	require.NoError(t, err, "Content-Disposition must stay parseable: %q", disposition)
	assert.Equal(t, "attachment", mediaType)
	assert.Equal(t, name, params["filename"])
}

func TestDedupEndpoint(t *testing.T) {
	e := newAPI(t)

	w := e.do(t, http.MethodPost, "/api/attachments/v1/upload", gin.H{
		"fileName":   "known.txt",
		"workItemId": 42,
		"content":    base64.StdEncoding.EncodeToString([]byte("known content")),
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var rec attachmentBody
	decode(t, w, &rec)

	var resp struct {
		IsDuplicate bool            `json:"isDuplicate"`
		Attachment  *attachmentBody `json:"attachment"`
	}

	w = e.do(t, http.MethodGet, "/api/attachments/v1/deduplication/"+rec.ContentHash, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &resp)
	assert.True(t, resp.IsDuplicate)
	require.NotNil(t, resp.Attachment)
	assert.Equal(t, rec.ID, resp.Attachment.ID)

	w = e.do(t, http.MethodGet, "/api/attachments/v1/deduplication/"+cas.HashBytes([]byte("never seen")), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &resp)
	assert.False(t, resp.IsDuplicate)
	assert.Nil(t, resp.Attachment)
}

func TestWebhook_SignatureEnforced(t *testing.T) {
	e := newAPI(t)
	body := []byte(`{"id":"evt-1","eventType":"workitem.attachment.added","resource":{"id":42}}`)

	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	signature := hex.EncodeToString(mac.Sum(nil))

	// correct signature: job enqueued
	w := e.do(t, http.MethodPost, "/api/attachments/v1/webhooks/workitem", body,
		map[string]string{webhooks.SignatureHeader: signature})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	queued, err := e.repos.Jobs(nil).RecentByWorkItem(context.Background(), 42, 10)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, models.JobPull, queued[0].Type)

	// wrong signature: 401, nothing enqueued
	w = e.do(t, http.MethodPost, "/api/attachments/v1/webhooks/workitem", body,
		map[string]string{webhooks.SignatureHeader: "deadbeef"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// missing header: 401
	w = e.do(t, http.MethodPost, "/api/attachments/v1/webhooks/workitem", body, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	queued, _ = e.repos.Jobs(nil).RecentByWorkItem(context.Background(), 42, 10)
	assert.Len(t, queued, 1)
}

func TestStatusEndpoint(t *testing.T) {
	e := newAPI(t)

	w := e.do(t, http.MethodPost, "/api/attachments/v1/upload", gin.H{
		"fileName":   "s.txt",
		"workItemId": 42,
		"content":    base64.StdEncoding.EncodeToString([]byte("status me")),
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w = e.do(t, http.MethodGet, "/api/attachments/v1/status/42", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Counts struct {
			Pending int `json:"pending"`
			Synced  int `json:"synced"`
			Failed  int `json:"failed"`
		} `json:"counts"`
		RecentJobs   []jobBody   `json:"recentJobs"`
		RecentEvents []eventBody `json:"recentEvents"`
	}
	decode(t, w, &resp)
	assert.Equal(t, 1, resp.Counts.Pending)
	require.Len(t, resp.RecentJobs, 1)
	assert.Equal(t, models.JobPush, resp.RecentJobs[0].Type)
	assert.NotEmpty(t, resp.RecentEvents)
}

func TestHealthz(t *testing.T) {
	e := newAPI(t)
	w := e.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
