// Package imagehost turns local images into URLs Discord can display. Images
// are uploaded to Imgur; when that is not possible the image is embedded as
// a data URI instead.
package imagehost

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// DefaultEndpoint is Imgur's anonymous image upload API.
const DefaultEndpoint = "https://api.imgur.com/3/image"

// maxImageBytes is Imgur's limit for anonymous uploads.
const maxImageBytes = 20 << 20

var (
	// ErrNoClientID means uploads are not configured.
	ErrNoClientID = errors.New("no imgur client ID configured")

	// ErrTooLarge is returned for images over the upload limit.
	ErrTooLarge = errors.New("image too large")
)

// Result is the outcome of Upload. URL is set whenever Success is true. A
// successful result with a non-empty Error carries a data URI fallback.
type Result struct {
	Success  bool   `json:"success"`
	URL      string `json:"url,omitempty"`
	Error    string `json:"error,omitempty"`
	Fallback bool   `json:"fallback,omitempty"`
}

// Uploader uploads images to Imgur.
type Uploader struct {
	clientID string
	endpoint string
	client   *retryablehttp.Client
	log      *slog.Logger
}

// New creates an uploader. An empty clientID makes every upload fall back to
// a data URI.
func New(clientID string, log *slog.Logger) *Uploader {
	if log == nil {
		log = slog.Default()
	}
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 4 * time.Second
	client.HTTPClient.Timeout = 30 * time.Second
	client.Logger = nil

	return &Uploader{
		clientID: clientID,
		endpoint: DefaultEndpoint,
		client:   client,
		log:      log.With("component", "imagehost"),
	}
}

// Upload resolves src to a displayable URL. An http(s) URL is returned
// unchanged. A data URI, a file:// URL, or a plain file path is uploaded;
// if the upload fails the image is returned as a data URI.
func (u *Uploader) Upload(ctx context.Context, src string) Result {
	src = strings.TrimSpace(src)
	if src == "" {
		return Result{Error: "empty image source"}
	}
	if isRemoteURL(src) {
		return Result{Success: true, URL: src}
	}

	data, mimeType, err := load(src)
	if err != nil {
		return Result{Error: err.Error()}
	}

	link, err := u.upload(ctx, data)
	if err == nil {
		u.log.Debug("image uploaded", "url", link, "bytes", len(data))
		return Result{Success: true, URL: link}
	}

	u.log.Warn("image upload failed, embedding data URI", "error", err)
	return Result{
		Success:  true,
		URL:      DataURI(mimeType, data),
		Error:    err.Error(),
		Fallback: true,
	}
}

// ///////////////////////////////////////////////
// Upload
// ///////////////////////////////////////////////

type imgurResponse struct {
	Data struct {
		Link  string `json:"link"`
		Error any    `json:"error"`
	} `json:"data"`
	Success bool `json:"success"`
	Status  int  `json:"status"`
}

func (u *Uploader) upload(ctx context.Context, data []byte) (string, error) {
	if u.clientID == "" {
		return "", ErrNoClientID
	}
	if len(data) > maxImageBytes {
		return "", fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}

	form := url.Values{
		"image": {base64.StdEncoding.EncodeToString(data)},
		"type":  {"base64"},
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("building upload request: %w", err)
	}
	req.Header.Set("Authorization", "Client-ID "+u.clientID)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("POST %s: %w", u.endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading upload response: %w", err)
	}

	var parsed imgurResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("upload failed with status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK || !parsed.Success || parsed.Data.Link == "" {
		if parsed.Data.Error != nil {
			return "", fmt.Errorf("upload failed with status %d: %v", resp.StatusCode, parsed.Data.Error)
		}
		return "", fmt.Errorf("upload failed with status %d", resp.StatusCode)
	}
	return parsed.Data.Link, nil
}

// ///////////////////////////////////////////////
// Sources
// ///////////////////////////////////////////////

// DataURI encodes data as a base64 data URI.
func DataURI(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func isRemoteURL(src string) bool {
	u, err := url.Parse(src)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// load reads the image bytes and MIME type for a data URI, file:// URL, or
// path.
func load(src string) ([]byte, string, error) {
	if strings.HasPrefix(src, "data:") {
		return decodeDataURI(src)
	}

	path := src
	if strings.HasPrefix(src, "file://") {
		u, err := url.Parse(src)
		if err != nil {
			return nil, "", fmt.Errorf("parsing file URL: %w", err)
		}
		path = filepath.FromSlash(u.Path)
		// file:///C:/x.png parses to /C:/x.png.
		if len(path) > 2 && path[0] == filepath.Separator && path[2] == ':' {
			path = path[1:]
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("reading image: %w", err)
	}
	return data, detectMIME(path, data), nil
}

func decodeDataURI(src string) ([]byte, string, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(src, "data:"), ",")
	if !ok {
		return nil, "", errors.New("malformed data URI")
	}

	mimeType, isBase64 := strings.CutSuffix(header, ";base64")
	if mimeType == "" {
		mimeType = "text/plain"
	}

	if !isBase64 {
		text, err := url.PathUnescape(payload)
		if err != nil {
			return nil, "", fmt.Errorf("decoding data URI: %w", err)
		}
		return []byte(text), mimeType, nil
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("decoding data URI: %w", err)
	}
	return data, mimeType, nil
}

// detectMIME uses the extension first and falls back to sniffing.
func detectMIME(path string, data []byte) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); strings.HasPrefix(t, "image/") {
		t, _, _ = strings.Cut(t, ";")
		return t
	}
	t, _, _ := strings.Cut(http.DetectContentType(data), ";")
	return t
}
