package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// DefaultCloudflareEndpoint is formatted with the account id and model.
const DefaultCloudflareEndpoint = "https://api.cloudflare.com/client/v4/accounts/%s/ai/run/%s"

// Cloudflare Workers AI backend.
// POST {endpoint}/accounts/{account_id}/ai/run/{model} with a bearer API token.
type cloudflareBackend struct {
	url      string
	apiToken string
	client   *http.Client
}

// NewCloudflare returns a Recognizer for a Workers AI whisper model.
// endpoint is a format string taking the account id and the model.
func NewCloudflare(accountID, apiToken, model, endpoint string, timeout time.Duration) Recognizer {
	if endpoint == "" {
		endpoint = DefaultCloudflareEndpoint
	}
	return &cloudflareBackend{
		url:      fmt.Sprintf(endpoint, accountID, model),
		apiToken: apiToken,
		client:   &http.Client{Timeout: timeout},
	}
}

type cfResp struct {
	Success bool            `json:"success"`
	Errors  []any           `json:"errors"`
	Result  json.RawMessage `json:"result"`
}

type cfWhisperResult struct {
	Text string `json:"text"`
}

func (c *cloudflareBackend) Recognize(ctx context.Context, audio Audio, language string) (string, error) {
	f, err := os.Open(audio.Path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filepath.Base(audio.Path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return "", err
	}
	if err := mw.WriteField("language", baseLanguage(language)); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &RequestError{Backend: "cloudflare", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", &RequestError{Backend: "cloudflare", Status: resp.StatusCode, Err: errors.New(strings.TrimSpace(string(b)))}
	}
	var cr cfResp
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", &RequestError{Backend: "cloudflare", Err: errors.Wrap(err, "decode response")}
	}
	if !cr.Success {
		return "", &RequestError{Backend: "cloudflare", Err: errors.Errorf("response not successful: %v", cr.Errors)}
	}
	var wr cfWhisperResult
	if err := json.Unmarshal(cr.Result, &wr); err != nil {
		return "", &RequestError{Backend: "cloudflare", Err: errors.Wrap(err, "unexpected result")}
	}
	if strings.TrimSpace(wr.Text) == "" {
		return "", ErrNotUnderstood
	}
	return wr.Text, nil
}
