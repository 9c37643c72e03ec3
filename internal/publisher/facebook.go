package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mimiza/smm/internal/logger"
)

const defaultFacebookBaseURL = "https://graph.facebook.com"

// Facebook publishes to a page feed through the Graph API. Content with an
// image goes to the photos edge with the text as caption; plain text goes
// to the feed edge. The agent UID is the page id and the token a page
// access token.
type Facebook struct {
	baseURL string
	client  *http.Client
	log     *logger.Logger
}

// NewFacebook creates the Facebook adapter.
func NewFacebook(client *http.Client, log *logger.Logger) *Facebook {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Facebook{baseURL: defaultFacebookBaseURL, client: client, log: log}
}

type facebookPostResponse struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
}

// Send creates a page post.
func (f *Facebook) Send(ctx context.Context, req Request) (*Result, error) {
	if req.Agent == nil || req.Agent.Credentials.Token == "" {
		return nil, errors.New("facebook: page token missing")
	}
	if req.Agent.UID == "" {
		return nil, errors.New("facebook: page id missing")
	}

	edge := "/feed"
	form := url.Values{"access_token": {req.Agent.Credentials.Token}}
	if req.Image != "" {
		edge = "/photos"
		form.Set("url", req.Image)
		form.Set("caption", req.Text)
	} else {
		form.Set("message", req.Text)
	}

	endpoint := f.baseURL + "/" + req.Agent.UID + edge

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("facebook: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("facebook: post: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("facebook: read response: %w", err)
	}

	audit := url.Values{}
	for key, values := range form {
		if key == "access_token" {
			continue
		}
		audit[key] = values
	}

	result := &Result{
		StatusCode: resp.StatusCode,
		Payload:    audit.Encode(),
		Response:   string(body),
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return result, nil
	}

	var parsed facebookPostResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return result, fmt.Errorf("facebook: decode response: %w", err)
	}
	result.OK = true
	result.ExternalID = parsed.PostID
	if result.ExternalID == "" {
		result.ExternalID = parsed.ID
	}
	return result, nil
}
