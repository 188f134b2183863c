package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"birdgate/internal/config"
)

// httpClient classifies windows against a remote BirdNET-style HTTP
// service, POSTing a WAV file as multipart/form-data.
type httpClient struct {
	cfg        config.BirdNETConfig
	httpClient *http.Client
}

func newHTTPClient(cfg config.BirdNETConfig) *httpClient {
	return &httpClient{
		cfg: cfg,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 8,
			},
		},
	}
}

func (c *httpClient) Analyze(ctx context.Context, samples []float32, sampleRate int) ([]Detection, error) {
	path := filepath.Join(os.TempDir(), fmt.Sprintf("birdgate-%s.wav", uuid.NewString()))
	if err := writeWAV(path, samples, sampleRate); err != nil {
		slog.Default().Warn("classifier: failed to write temp WAV", "error", err)
		return nil, nil
	}
	defer os.Remove(path)

	body, contentType, err := buildMultipartBody(path)
	if err != nil {
		slog.Default().Warn("classifier: failed to build upload body", "error", err)
		return nil, nil
	}

	reqURL := c.requestURL()
	timeoutCtx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.HTTPTimeout*float64(time.Second)))
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodPost, reqURL, body)
	if err != nil {
		slog.Default().Warn("classifier: failed to build request", "error", err)
		return nil, nil
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Default().Warn("classifier: http request failed", "url", reqURL, "error", err)
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Default().Warn("classifier: non-2xx response", "status", resp.StatusCode)
		return nil, nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		slog.Default().Warn("classifier: failed to read response body", "error", err)
		return nil, nil
	}

	dets := parseHTTPResponse(raw)
	return postProcess(dets, c.cfg.MinConfidence, c.cfg.TopN), nil
}

func (c *httpClient) requestURL() string {
	u, err := url.Parse(c.cfg.HTTPURL)
	if err != nil {
		return c.cfg.HTTPURL
	}
	q := u.Query()
	q.Set("lat", fmt.Sprintf("%v", c.cfg.Latitude))
	q.Set("lon", fmt.Sprintf("%v", c.cfg.Longitude))
	q.Set("min_confidence", fmt.Sprintf("%v", c.cfg.MinConfidence))
	u.RawQuery = q.Encode()
	return u.String()
}

func buildMultipartBody(wavPath string) (io.Reader, string, error) {
	f, err := os.Open(wavPath)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("audio", "audio.wav")
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// httpDetectionShape is the inline-object variant of the response.
type httpDetectionShape struct {
	ScientificName string  `json:"scientific_name"`
	CommonName     string  `json:"common_name"`
	Species        string  `json:"species"`
	Confidence     float64 `json:"confidence"`
	StartTime      float64 `json:"start_time"`
	EndTime        float64 `json:"end_time"`
}

type httpWrappedShape struct {
	Detections []httpDetectionShape `json:"detections"`
}

// parseHTTPResponse tolerantly decodes the three documented response
// shapes (spec §4.6.1): a bare array, a {"detections": [...]} object, or
// (falling back) a single inline detection object.
func parseHTTPResponse(raw []byte) []Detection {
	var arr []httpDetectionShape
	if err := json.Unmarshal(raw, &arr); err == nil && arr != nil {
		return toDetections(arr)
	}

	var wrapped httpWrappedShape
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Detections != nil {
		return toDetections(wrapped.Detections)
	}

	var single httpDetectionShape
	if err := json.Unmarshal(raw, &single); err == nil && speciesName(single) != "" {
		return toDetections([]httpDetectionShape{single})
	}

	return nil
}

func toDetections(shapes []httpDetectionShape) []Detection {
	dets := make([]Detection, 0, len(shapes))
	for _, s := range shapes {
		name := speciesName(s)
		if name == "" {
			name = "Unknown"
		}
		dets = append(dets, Detection{
			Species:    name,
			Confidence: s.Confidence,
			StartTime:  s.StartTime,
			EndTime:    s.EndTime,
		})
	}
	return dets
}

// speciesName returns "" when no name field is present, so callers that
// need to tell "no name at all" apart from a resolved name (see the
// single-object fallback in parseHTTPResponse) can still do so; toDetections
// is where the spec's "Unknown" default is applied.
func speciesName(s httpDetectionShape) string {
	switch {
	case s.ScientificName != "":
		return s.ScientificName
	case s.CommonName != "":
		return s.CommonName
	case s.Species != "":
		return s.Species
	default:
		return ""
	}
}
