package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cuongbtq/media-conversor/internal/api/dto"
	"github.com/cuongbtq/media-conversor/internal/api/handler"
	"github.com/cuongbtq/media-conversor/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJobID = "6f1c1b7e-2a4d-4c55-9a4f-3f7b7f0c1e11"

type fakeEnqueuer struct {
	err      error
	requests []domain.ConversionRequest
}

func (e *fakeEnqueuer) Enqueue(_ context.Context, req domain.ConversionRequest) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	e.requests = append(e.requests, req)
	return testJobID, nil
}

type fakeStatuses map[string]domain.StatusRecord

func (s fakeStatuses) QueryStatus(_ context.Context, jobID string) (domain.StatusRecord, error) {
	rec, ok := s[jobID]
	if !ok {
		return domain.StatusRecord{}, domain.ErrJobNotFound
	}
	return rec, nil
}

type fakeUploads struct {
	objects map[string][]byte
	removed []string
}

func (u *fakeUploads) PutInput(_ context.Context, key string, reader io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	if u.objects == nil {
		u.objects = make(map[string][]byte)
	}
	u.objects[key] = data
	return nil
}

func (u *fakeUploads) RemoveInput(_ context.Context, key string) error {
	u.removed = append(u.removed, key)
	return nil
}

type testAPI struct {
	router   *gin.Engine
	enqueuer *fakeEnqueuer
	uploads  *fakeUploads
}

func newTestAPI(statuses fakeStatuses, connected bool) *testAPI {
	gin.SetMode(gin.TestMode)
	api := &testAPI{enqueuer: &fakeEnqueuer{}, uploads: &fakeUploads{}}
	api.router = SetupRouter(&handler.Dependencies{
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		Enqueuer:        api.enqueuer,
		Statuses:        statuses,
		Uploads:         api.uploads,
		MaxFileSize:     64,
		BrokerConnected: func() bool { return connected },
	})
	return api
}

func uploadRequest(t *testing.T, fields map[string]string, fileName string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if fileName != "" {
		part, err := w.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func serve(api *testAPI, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	return rec
}

func TestCreateJob(t *testing.T) {
	api := newTestAPI(nil, true)

	rec := serve(api, uploadRequest(t, map[string]string{"output_format": "MP3", "email": "user@example.com"}, "Clip.MP4", []byte("video")))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp dto.CreateJobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, testJobID, resp.JobID)
	assert.Equal(t, "queued", resp.Status)

	require.Len(t, api.enqueuer.requests, 1)
	req := api.enqueuer.requests[0]
	assert.Equal(t, domain.FormatMP3, req.OutputFormat)
	assert.True(t, strings.HasPrefix(req.InputRef, "inputs/"))
	assert.True(t, strings.HasSuffix(req.InputRef, ".mp4"))
	assert.Equal(t, "user@example.com", req.Metadata[domain.MetadataEmail])
	assert.Equal(t, "Clip.MP4", req.Metadata[domain.MetadataOriginalName])
	assert.Equal(t, []byte("video"), api.uploads.objects[req.InputRef])
}

func TestCreateJob_Validation(t *testing.T) {
	tests := []struct {
		name     string
		fields   map[string]string
		fileName string
		content  []byte
	}{
		{name: "missing format", fields: map[string]string{}, fileName: "a.mp4", content: []byte("x")},
		{name: "unsupported format", fields: map[string]string{"output_format": "flac"}, fileName: "a.mp4", content: []byte("x")},
		{name: "invalid email", fields: map[string]string{"output_format": "mp3", "email": "not-an-email"}, fileName: "a.mp4", content: []byte("x")},
		{name: "missing file", fields: map[string]string{"output_format": "mp3"}},
		{name: "file too large", fields: map[string]string{"output_format": "mp3"}, fileName: "a.mp4", content: bytes.Repeat([]byte("x"), 65)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI(nil, true)

			rec := serve(api, uploadRequest(t, tt.fields, tt.fileName, tt.content))

			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Empty(t, api.enqueuer.requests)
			assert.Empty(t, api.uploads.objects)
		})
	}
}

func TestCreateJob_QueueUnavailable(t *testing.T) {
	api := newTestAPI(nil, false)
	api.enqueuer.err = fmt.Errorf("%w: broker connection is closed", domain.ErrQueueUnavailable)

	rec := serve(api, uploadRequest(t, map[string]string{"output_format": "wav"}, "a.mp4", []byte("x")))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("Retry-After"))
	assert.Len(t, api.uploads.removed, 1)
}

func TestGetJob(t *testing.T) {
	updated := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	api := newTestAPI(fakeStatuses{
		testJobID: {
			JobID:     testJobID,
			Status:    domain.StatusCompleted,
			Timestamp: updated,
			Attempts:  1,
			Result:    map[string]string{domain.ResultDownloadURL: "https://example.com/a.mp3"},
		},
	}, true)

	rec := serve(api, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+testJobID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp dto.JobStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, dto.JobStatusResponse{
		JobID:       testJobID,
		Status:      "completed",
		Attempts:    1,
		DownloadURL: "https://example.com/a.mp3",
		UpdatedAt:   "2026-03-01T10:00:00Z",
	}, resp)
}

func TestGetJob_Errors(t *testing.T) {
	api := newTestAPI(fakeStatuses{}, true)

	rec := serve(api, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(api, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+testJobID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	rec := serve(newTestAPI(nil, true), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(newTestAPI(nil, false), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	rec := serve(newTestAPI(nil, true), httptest.NewRequest(http.MethodOptions, "/api/v1/jobs", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
