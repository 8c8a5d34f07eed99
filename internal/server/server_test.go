package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zudsniper/audio2text/internal/media"
	"github.com/zudsniper/audio2text/internal/pipeline"
	"github.com/zudsniper/audio2text/internal/transcribe"
)

type recognizerFunc func(ctx context.Context, audio transcribe.Audio, language string) (string, error)

func (f recognizerFunc) Recognize(ctx context.Context, audio transcribe.Audio, language string) (string, error) {
	return f(ctx, audio, language)
}

// silence writes 90 seconds of 100 Hz silence, two chunks at the default
// chunk duration.
func silence(_ context.Context, _, out string) error {
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()
	format := beep.Format{SampleRate: 100, NumChannels: 1, Precision: 2}
	return wav.Encode(f, beep.Silence(90*100), format)
}

func newTestServer(t *testing.T, rec transcribe.Recognizer) (*Server, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	tmp := t.TempDir()
	log := hclog.NewNullLogger()
	ctrl := pipeline.NewController(
		media.NewNormalizer(media.DecoderFunc(silence), tmp, log),
		func() transcribe.Recognizer { return rec },
		nil,
		pipeline.Options{Workers: 1, TmpDir: tmp},
		log,
	)
	s := New(ctrl, Options{UploadDir: t.TempDir()}, log)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		s.Close()
	})
	return s, ts
}

func upload(t *testing.T, url, filename, language string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte("fake audio"))
		require.NoError(t, err)
	}
	if language != "" {
		require.NoError(t, mw.WriteField("language", language))
	}
	require.NoError(t, mw.Close())

	resp, err := http.Post(url+"/v1/jobs", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response) jobView {
	t.Helper()
	defer resp.Body.Close()
	var v jobView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func waitFinished(t *testing.T, url, id string) jobView {
	t.Helper()
	var v jobView
	require.Eventually(t, func() bool {
		resp, err := http.Get(url + "/v1/jobs/" + id)
		if err != nil {
			return false
		}
		v = decode(t, resp)
		return !v.Finished.IsZero()
	}, 5*time.Second, 10*time.Millisecond)
	return v
}

func chunkText(audio transcribe.Audio) string {
	if strings.Contains(filepath.Base(audio.Path), "chunk-001") {
		return "hello"
	}
	return "world"
}

func TestCreateAndPollJob(t *testing.T) {
	s, ts := newTestServer(t, recognizerFunc(func(_ context.Context, a transcribe.Audio, lang string) (string, error) {
		if lang != "en-US" {
			return "", transcribe.ErrNotUnderstood
		}
		return chunkText(a), nil
	}))

	resp := upload(t, ts.URL, "standup.mp3", "en-US")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	created := decode(t, resp)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "en-US", created.Language)

	v := waitFinished(t, ts.URL, created.ID)
	assert.Equal(t, "completed", v.State)
	assert.Equal(t, "Hello world.", v.Text)
	assert.Equal(t, 2, v.Done)
	assert.Equal(t, 2, v.Total)
	assert.Empty(t, v.Error)

	s.Close()
	entries, err := os.ReadDir(s.opts.UploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "uploads are removed once the job ends")
}

func TestCreateJobValidation(t *testing.T) {
	_, ts := newTestServer(t, recognizerFunc(func(context.Context, transcribe.Audio, string) (string, error) {
		return "x", nil
	}))

	resp := upload(t, ts.URL, "", "fr-FR")
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = upload(t, ts.URL, "call.mp3", "french")
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = upload(t, ts.URL, "notes.xyz", "fr-FR")
	resp.Body.Close()
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)

	resp, err := http.Get(ts.URL + "/v1/jobs/does-not-exist")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCancelJob(t *testing.T) {
	release := make(chan struct{})
	_, ts := newTestServer(t, recognizerFunc(func(context.Context, transcribe.Audio, string) (string, error) {
		<-release
		return "partial", nil
	}))

	created := decode(t, upload(t, ts.URL, "call.wav", "fr-FR"))

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/v1/jobs/"+created.ID, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	close(release)

	v := waitFinished(t, ts.URL, created.ID)
	assert.Equal(t, "cancelled", v.State)
	assert.Contains(t, v.Error, pipeline.ErrCancelled.Error())
}

func TestEventStream(t *testing.T) {
	release := make(chan struct{})
	_, ts := newTestServer(t, recognizerFunc(func(_ context.Context, a transcribe.Audio, _ string) (string, error) {
		<-release
		return chunkText(a), nil
	}))

	created := decode(t, upload(t, ts.URL, "call.ogg", "fr-FR"))
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/jobs/" + created.ID + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	close(release)

	var kinds []string
	var last pipeline.Event
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var ev pipeline.Event
		if err := conn.ReadJSON(&ev); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
			break
		}
		kinds = append(kinds, ev.Kind)
		last = ev
	}
	assert.Equal(t, []string{"progress", "chunk", "progress", "chunk", "finished"}, kinds)
	assert.Equal(t, "Hello world.", last.Message)

	// A late subscriber gets the full history replayed.
	late, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer late.Close()
	var first pipeline.Event
	require.NoError(t, late.ReadJSON(&first))
	assert.Equal(t, "progress", first.Kind)
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, recognizerFunc(func(context.Context, transcribe.Audio, string) (string, error) {
		return "", nil
	}))
	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestFinishedJobsAreEvicted(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tmp := t.TempDir()
	log := hclog.NewNullLogger()
	ctrl := pipeline.NewController(
		media.NewNormalizer(media.DecoderFunc(silence), tmp, log),
		func() transcribe.Recognizer {
			return recognizerFunc(func(context.Context, transcribe.Audio, string) (string, error) { return "x", nil })
		},
		nil,
		pipeline.Options{Workers: 1, TmpDir: tmp},
		log,
	)
	s := New(ctrl, Options{UploadDir: t.TempDir(), Retention: 10 * time.Millisecond}, log)
	ts := httptest.NewServer(s.Handler())
	defer func() {
		ts.Close()
		s.Close()
	}()

	// Only a job that has finished can expire, so a 404 here means both
	// happened.
	created := decode(t, upload(t, ts.URL, "call.wav", "fr-FR"))
	require.NotEmpty(t, created.ID)
	require.Eventually(t, func() bool {
		resp, err := http.Get(ts.URL + "/v1/jobs/" + created.ID)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusNotFound
	}, 5*time.Second, 5*time.Millisecond)
}

func TestDeleteFinishedJobRemovesIt(t *testing.T) {
	_, ts := newTestServer(t, recognizerFunc(func(context.Context, transcribe.Audio, string) (string, error) {
		return "done", nil
	}))
	created := decode(t, upload(t, ts.URL, "call.flac", "fr-FR"))
	waitFinished(t, ts.URL, created.ID)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/v1/jobs/"+created.ID, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/v1/jobs/" + created.ID)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
