package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/snarg/whisper-worker/internal/jobs"
)

func buildMultipartForm(t *testing.T, fields map[string]string, fileField string, fileData []byte, fileName string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		writer.WriteField(k, v)
	}
	if fileData != nil && fileField != "" {
		part, err := writer.CreateFormFile(fileField, fileName)
		if err != nil {
			t.Fatal(err)
		}
		part.Write(fileData)
	}
	writer.Close()
	return body, writer.FormDataContentType()
}

func doUpload(t *testing.T, h *UploadHandler, query string, fields map[string]string, fileField string) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := buildMultipartForm(t, fields, fileField, []byte("fake-audio-data"), "meeting.m4a")
	req := httptest.NewRequest("POST", "/api/v1/upload/record"+query, body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.Upload(rec, req)
	return rec
}

func TestUpload_WaitsForResult(t *testing.T) {
	proc := &cannedProcessor{result: successResult()}
	saver := &dirSaver{dir: t.TempDir()}
	h := NewUploadHandler(saver, newTestPool(t, proc, 4), zerolog.Nop())

	rec := doUpload(t, h, "", map[string]string{"language": "zh_CN"}, "file")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp UploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.JobID == "" || resp.Status != jobs.ResultSuccess {
		t.Errorf("resp = %+v", resp)
	}
	if len(resp.Batches) != 2 || resp.Batches[1][0].Content != "world" {
		t.Errorf("batches = %+v", resp.Batches)
	}
	if saver.lastName != "meeting.m4a" || saver.lastData != "fake-audio-data" {
		t.Errorf("saved %q with %q", saver.lastName, saver.lastData)
	}

	seen := proc.jobs()
	if len(seen) != 1 {
		t.Fatalf("processed %d jobs", len(seen))
	}
	if seen[0].Source != jobs.SourceHTTP || seen[0].Language != "zh_CN" || seen[0].OriginalName != "meeting.m4a" {
		t.Errorf("job = %+v", seen[0])
	}
}

func TestUpload_Formats(t *testing.T) {
	tests := []struct {
		name        string
		query       string
		contentType string
		want        string
	}{
		{"vtt", "?format=vtt", "text/vtt; charset=utf-8",
			"WEBVTT\n\n00:00:00.000 --> 00:00:02.500\nhello\n\n00:00:02.500 --> 00:00:04.000\nworld\n"},
		{"srt", "?format=srt", "application/x-subrip; charset=utf-8",
			"1\n00:00:00,000 --> 00:00:02,500\nhello\n\n2\n00:00:02,500 --> 00:00:04,000\nworld\n"},
		{"lrc", "?format=lrc", "text/plain; charset=utf-8", "[00:00.00]hello\n[00:02.50]world\n"},
		{"txt", "?format=txt", "text/plain; charset=utf-8", "hello\nworld\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := &cannedProcessor{result: successResult()}
			h := NewUploadHandler(&dirSaver{dir: t.TempDir()}, newTestPool(t, proc, 4), zerolog.Nop())

			rec := doUpload(t, h, tt.query, nil, "file")
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
			}
			if ct := rec.Header().Get("Content-Type"); ct != tt.contentType {
				t.Errorf("Content-Type = %q, want %q", ct, tt.contentType)
			}
			if rec.Body.String() != tt.want {
				t.Errorf("body = %q\nwant %q", rec.Body.String(), tt.want)
			}
		})
	}
}

func TestUpload_NoWait(t *testing.T) {
	proc := &cannedProcessor{result: successResult(), block: make(chan struct{})}
	defer close(proc.block)
	h := NewUploadHandler(&dirSaver{dir: t.TempDir()}, newTestPool(t, proc, 4), zerolog.Nop())

	rec := doUpload(t, h, "?wait=false", nil, "file")

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp AcceptedResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.JobID == "" {
		t.Error("expected job_id")
	}
	if loc := rec.Header().Get("Location"); loc != "/api/v1/jobs/"+resp.JobID {
		t.Errorf("Location = %q", loc)
	}
}

func TestUpload_JobFailure(t *testing.T) {
	proc := &cannedProcessor{result: failedResult()}
	h := NewUploadHandler(&dirSaver{dir: t.TempDir()}, newTestPool(t, proc, 4), zerolog.Nop())

	rec := doUpload(t, h, "", nil, "file")

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	var resp ErrorResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Code != "ERROR_TRANSCODE" {
		t.Errorf("code = %q", resp.Code)
	}
}

func TestUpload_BadRequests(t *testing.T) {
	t.Run("missing_file", func(t *testing.T) {
		h := NewUploadHandler(&dirSaver{dir: t.TempDir()}, newTestPool(t, &cannedProcessor{}, 4), zerolog.Nop())
		rec := doUpload(t, h, "", map[string]string{"language": "en"}, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("wrong_field_name", func(t *testing.T) {
		h := NewUploadHandler(&dirSaver{dir: t.TempDir()}, newTestPool(t, &cannedProcessor{}, 4), zerolog.Nop())
		rec := doUpload(t, h, "", nil, "audio")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("unknown_format", func(t *testing.T) {
		h := NewUploadHandler(&dirSaver{dir: t.TempDir()}, newTestPool(t, &cannedProcessor{}, 4), zerolog.Nop())
		rec := doUpload(t, h, "?format=docx", nil, "file")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("unsupported_language", func(t *testing.T) {
		h := NewUploadHandler(&dirSaver{dir: t.TempDir()}, newTestPool(t, &cannedProcessor{}, 4), zerolog.Nop())
		rec := doUpload(t, h, "", map[string]string{"language": "klingon"}, "file")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("not_multipart", func(t *testing.T) {
		h := NewUploadHandler(&dirSaver{dir: t.TempDir()}, newTestPool(t, &cannedProcessor{}, 4), zerolog.Nop())
		req := httptest.NewRequest("POST", "/api/v1/upload/record", strings.NewReader("{}"))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		h.Upload(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})
}

func TestUpload_SaveError(t *testing.T) {
	h := NewUploadHandler(&dirSaver{err: errors.New("disk full")}, newTestPool(t, &cannedProcessor{}, 4), zerolog.Nop())
	rec := doUpload(t, h, "", nil, "file")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

func TestUpload_QueueFull(t *testing.T) {
	saver := &dirSaver{dir: t.TempDir()}
	// Zero workers and no queue room: every enqueue is refused.
	wp := jobs.NewWorkerPool(jobs.PoolOptions{Processor: &cannedProcessor{}, QueueSize: 0, Log: zerolog.Nop()})
	h := NewUploadHandler(saver, wp, zerolog.Nop())

	rec := doUpload(t, h, "", nil, "file")

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	entries, _ := os.ReadDir(saver.dir)
	if len(entries) != 0 {
		t.Errorf("rejected upload should be removed, found %d files", len(entries))
	}
}
