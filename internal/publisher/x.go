package publisher

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mimiza/smm/internal/domain"
	"github.com/mimiza/smm/internal/logger"
)

const defaultXBaseURL = "https://api.twitter.com"

// X publishes through the X API v2. Posts are created with the agent's
// OAuth2 access token; comments become replies and shares become quote
// tweets of the predecessor.
type X struct {
	baseURL string
	client  *http.Client
	log     *logger.Logger
	now     func() time.Time
}

// NewX creates the X adapter. client defaults to a 30s-timeout http.Client.
func NewX(client *http.Client, log *logger.Logger) *X {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if log == nil {
		log = logger.Discard()
	}
	return &X{baseURL: defaultXBaseURL, client: client, log: log, now: time.Now}
}

type xTweetRequest struct {
	Text         string        `json:"text"`
	Reply        *xTweetReply  `json:"reply,omitempty"`
	QuoteTweetID string        `json:"quote_tweet_id,omitempty"`
}

type xTweetReply struct {
	InReplyToTweetID string `json:"in_reply_to_tweet_id"`
}

type xTweetResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// Send creates a tweet.
func (x *X) Send(ctx context.Context, req Request) (*Result, error) {
	if req.Agent == nil || req.Agent.Credentials.AccessToken == "" {
		return nil, errors.New("x: agent access token missing")
	}

	tweet := xTweetRequest{Text: req.Text}
	if req.PredecessorExternalID != "" {
		switch req.Kind {
		case domain.KindPostComment:
			tweet.Reply = &xTweetReply{InReplyToTweetID: req.PredecessorExternalID}
		case domain.KindShareContent:
			tweet.QuoteTweetID = req.PredecessorExternalID
		}
	}

	payload, err := json.Marshal(tweet)
	if err != nil {
		return nil, fmt.Errorf("x: encode tweet: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, x.baseURL+"/2/tweets", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("x: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+req.Agent.Credentials.AccessToken)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := x.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("x: send tweet: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("x: read response: %w", err)
	}

	result := &Result{
		StatusCode: resp.StatusCode,
		Payload:    string(payload),
		Response:   string(body),
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return result, nil
	}

	var parsed xTweetResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return result, fmt.Errorf("x: decode response: %w", err)
	}
	result.OK = true
	result.ExternalID = parsed.Data.ID
	return result, nil
}

type xTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// RefreshToken rotates the agent's OAuth2 access token using its refresh
// token and the app's consumer pair. The caller persists the agent.
func (x *X) RefreshToken(ctx context.Context, agent *domain.Agent) error {
	creds := &agent.Credentials
	if creds.RefreshToken == "" {
		return errors.New("x: agent refresh token missing")
	}
	if creds.ConsumerKey == "" || creds.ConsumerSecret == "" {
		return errors.New("x: consumer credentials missing")
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {creds.RefreshToken},
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, x.baseURL+"/2/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("x: build token request: %w", err)
	}
	basic := base64.StdEncoding.EncodeToString([]byte(creds.ConsumerKey + ":" + creds.ConsumerSecret))
	httpReq.Header.Set("Authorization", "Basic "+basic)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := x.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("x: refresh token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("x: read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("x: refresh token rejected: status %d: %s", resp.StatusCode, body)
	}

	var parsed xTokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return fmt.Errorf("x: decode token response: %w", err)
	}
	if parsed.AccessToken == "" {
		return errors.New("x: token response without access token")
	}

	creds.AccessToken = parsed.AccessToken
	if parsed.RefreshToken != "" {
		creds.RefreshToken = parsed.RefreshToken
	}
	creds.Refreshed = x.now()

	x.log.Info("x token refreshed", logger.Field{Key: "agent", Value: agent.ID})
	return nil
}
