package transcribe

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
	"github.com/pkg/errors"
)

// DefaultGoogleEndpoint is the Google Web Speech API v2, the endpoint used by
// the Chromium client. POST raw little-endian L16 PCM; the answer is
// newline-delimited JSON.
const DefaultGoogleEndpoint = "http://www.google.com/speech-api/v2/recognize"

type googleBackend struct {
	endpoint string
	key      string
	client   *http.Client
}

// NewGoogle returns a Recognizer for the Google Web Speech API.
// Language tags are passed through unchanged. An empty key is left out of
// the request.
func NewGoogle(endpoint, key string, timeout time.Duration) Recognizer {
	if endpoint == "" {
		endpoint = DefaultGoogleEndpoint
	}
	return &googleBackend{endpoint: endpoint, key: key, client: &http.Client{Timeout: timeout}}
}

type googleResp struct {
	Result []struct {
		Alternative []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternative"`
		Final bool `json:"final"`
	} `json:"result"`
}

func (g *googleBackend) Recognize(ctx context.Context, audio Audio, language string) (string, error) {
	pcm, format, err := readPCM16(audio.Path, audio.Duration)
	if err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("client", "chromium")
	q.Set("lang", language)
	if g.key != "" {
		q.Set("key", g.key)
	}
	q.Set("pFilter", "0")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint+"?"+q.Encode(), bytes.NewReader(pcm))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", fmt.Sprintf("audio/l16; rate=%d", format.SampleRate))

	resp, err := g.client.Do(req)
	if err != nil {
		return "", &RequestError{Backend: "google", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", &RequestError{Backend: "google", Status: resp.StatusCode, Err: errors.New(strings.TrimSpace(string(b)))}
	}

	// The first line is usually an empty {"result":[]}.
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 64<<10), 1<<20)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var gr googleResp
		if err := json.Unmarshal(line, &gr); err != nil {
			return "", &RequestError{Backend: "google", Err: errors.Wrap(err, "decode response")}
		}
		for _, r := range gr.Result {
			best, conf := "", -1.0
			for _, alt := range r.Alternative {
				if alt.Confidence > conf || best == "" {
					best, conf = alt.Transcript, alt.Confidence
				}
			}
			if strings.TrimSpace(best) != "" {
				return best, nil
			}
		}
	}
	if err := sc.Err(); err != nil {
		return "", &RequestError{Backend: "google", Err: err}
	}
	return "", ErrNotUnderstood
}

// readPCM16 decodes a WAV file into little-endian signed 16-bit mono PCM,
// reading at most window worth of audio when window > 0.
func readPCM16(path string, window time.Duration) ([]byte, beep.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, errors.Wrap(err, "open clip")
	}
	defer f.Close()

	stream, format, err := wav.Decode(f)
	if err != nil {
		return nil, beep.Format{}, errors.Wrap(err, "decode clip")
	}
	defer stream.Close()

	var src beep.Streamer = stream
	if window > 0 {
		src = beep.Take(format.SampleRate.N(window), stream)
	}

	var out bytes.Buffer
	samples := make([][2]float64, 4096)
	var pair [2]byte
	for {
		n, ok := src.Stream(samples)
		for _, s := range samples[:n] {
			v := (s[0] + s[1]) / 2
			v = math.Max(-1, math.Min(1, v))
			binary.LittleEndian.PutUint16(pair[:], uint16(int16(v*math.MaxInt16)))
			out.Write(pair[:])
		}
		if !ok {
			break
		}
	}
	if err := stream.Err(); err != nil {
		return nil, beep.Format{}, errors.Wrap(err, "read clip")
	}
	return out.Bytes(), format, nil
}
