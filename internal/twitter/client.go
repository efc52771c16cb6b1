package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/dghubble/oauth1"

	"github.com/kjstillabower/weather-tweet-bot/internal/circuitbreaker"
	"github.com/kjstillabower/weather-tweet-bot/internal/observability"
)

// Publisher posts tweets and uploads media. Implemented by Client; the dry-run
// decision lives in the pipeline, so implementations always perform real calls.
type Publisher interface {
	UploadMedia(ctx context.Context, png []byte, altText string) (string, error)
	CreateTweet(ctx context.Context, text string, mediaIDs []string) (string, error)
}

var (
	ErrInvalidCredentials = errors.New("invalid twitter credentials")
	ErrRateLimited        = errors.New("twitter rate limited")
	ErrUpstreamFailure    = errors.New("twitter upstream failure")
)

// Credentials holds the OAuth 1.0a user-context keys.
type Credentials struct {
	APIKey            string
	APISecret         string
	AccessToken       string
	AccessTokenSecret string
}

// Client talks to the Twitter API: v1.1 for media upload and alt-text
// metadata, v2 for tweet creation. All requests are OAuth 1.0a signed.
type Client struct {
	httpClient *http.Client
	uploadURL  string // base, e.g. https://upload.twitter.com/1.1/media
	tweetURL   string // e.g. https://api.twitter.com/2/tweets
	breaker    *circuitbreaker.CircuitBreaker
}

// NewClient creates a Client. uploadURL and tweetURL are overridable for tests.
func NewClient(creds Credentials, uploadURL, tweetURL string, timeout time.Duration) (*Client, error) {
	if creds.APIKey == "" || creds.APISecret == "" || creds.AccessToken == "" || creds.AccessTokenSecret == "" {
		return nil, fmt.Errorf("%w: all four OAuth keys are required", ErrInvalidCredentials)
	}

	config := oauth1.NewConfig(creds.APIKey, creds.APISecret)
	token := oauth1.NewToken(creds.AccessToken, creds.AccessTokenSecret)
	httpClient := config.Client(oauth1.NoContext, token)
	httpClient.Timeout = timeout

	return &Client{
		httpClient: httpClient,
		uploadURL:  uploadURL,
		tweetURL:   tweetURL,
	}, nil
}

// SetCircuitBreaker attaches a circuit breaker around posting requests.
func (c *Client) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.breaker = cb
}

type mediaUploadResponse struct {
	MediaID       int64  `json:"media_id"`
	MediaIDString string `json:"media_id_string"`
}

type createTweetRequest struct {
	Text  string      `json:"text"`
	Media *tweetMedia `json:"media,omitempty"`
}

type tweetMedia struct {
	MediaIDs []string `json:"media_ids"`
}

type createTweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

// UploadMedia uploads a PNG via the v1.1 media endpoint and attaches alt text.
// Returns the media id string for use in CreateTweet. An alt-text failure is
// not fatal; the media id is still returned.
func (c *Client) UploadMedia(ctx context.Context, png []byte, altText string) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("media", "weather_report.png")
	if err != nil {
		return "", fmt.Errorf("build multipart form: %w", err)
	}
	if _, err := part.Write(png); err != nil {
		return "", fmt.Errorf("write media bytes: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart form: %w", err)
	}

	body, err := c.do(ctx, "media_upload", c.uploadURL+"/upload.json", writer.FormDataContentType(), buf.Bytes())
	if err != nil {
		return "", err
	}

	var resp mediaUploadResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("parse media upload response: %w", err)
	}
	mediaID := resp.MediaIDString
	if mediaID == "" {
		mediaID = fmt.Sprintf("%d", resp.MediaID)
	}

	if altText != "" {
		if err := c.setAltText(ctx, mediaID, altText); err != nil {
			return mediaID, fmt.Errorf("set alt text: %w", err)
		}
	}
	return mediaID, nil
}

// setAltText attaches alt text to an uploaded media item.
func (c *Client) setAltText(ctx context.Context, mediaID, altText string) error {
	payload, err := json.Marshal(map[string]interface{}{
		"media_id": mediaID,
		"alt_text": map[string]string{"text": altText},
	})
	if err != nil {
		return fmt.Errorf("marshal metadata request: %w", err)
	}
	_, err = c.do(ctx, "media_metadata", c.uploadURL+"/metadata/create.json", "application/json", payload)
	return err
}

// CreateTweet posts a tweet via the v2 endpoint, optionally with media.
// Returns the created tweet id.
func (c *Client) CreateTweet(ctx context.Context, text string, mediaIDs []string) (string, error) {
	reqBody := createTweetRequest{Text: text}
	if len(mediaIDs) > 0 {
		reqBody.Media = &tweetMedia{MediaIDs: mediaIDs}
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal tweet request: %w", err)
	}

	body, err := c.do(ctx, "create_tweet", c.tweetURL, "application/json", payload)
	if err != nil {
		return "", err
	}

	var resp createTweetResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("parse tweet response: %w", err)
	}
	if resp.Data.ID == "" {
		return "", fmt.Errorf("%w: tweet id missing from response", ErrUpstreamFailure)
	}
	return resp.Data.ID, nil
}

// do performs one signed POST, routed through the circuit breaker when set.
func (c *Client) do(ctx context.Context, endpoint, url, contentType string, payload []byte) ([]byte, error) {
	if c.breaker == nil {
		return c.doOnce(ctx, endpoint, url, contentType, payload)
	}
	var body []byte
	err := c.breaker.Call(ctx, func() error {
		var callErr error
		body, callErr = c.doOnce(ctx, endpoint, url, contentType, payload)
		return callErr
	})
	return body, err
}

// doOnce performs the request and maps failure statuses to sentinel errors.
func (c *Client) doOnce(ctx context.Context, endpoint, url, contentType string, payload []byte) ([]byte, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		observability.TwitterAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		observability.TwitterAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		observability.TwitterAPIDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	observability.TwitterAPICallsTotal.WithLabelValues(endpoint, statusLabel(resp.StatusCode)).Inc()
	observability.TwitterAPIDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())

	body, readErr := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: HTTP %d", ErrInvalidCredentials, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w", ErrRateLimited)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrUpstreamFailure, resp.StatusCode, truncateBody(body))
	}

	if readErr != nil {
		return nil, fmt.Errorf("read response body: %w", readErr)
	}
	return body, nil
}

func truncateBody(b []byte) string {
	const max = 200
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
