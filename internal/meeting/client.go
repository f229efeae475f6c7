package meeting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client provisions meetings through a Zoom-compatible REST API.
type Client struct {
	baseURL  string
	hostUser string
	apiToken string
	client   *http.Client
}

func NewClient(baseURL, hostUser, apiToken string) *Client {
	return &Client{
		baseURL:  baseURL,
		hostUser: hostUser,
		apiToken: apiToken,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

type createMeetingRequest struct {
	Topic     string `json:"topic"`
	Type      int    `json:"type"`
	StartTime string `json:"start_time"`
	Duration  int    `json:"duration"`
	Timezone  string `json:"timezone"`
	Settings  struct {
		AlternativeHosts string `json:"alternative_hosts,omitempty"`
		JoinBeforeHost   bool   `json:"join_before_host"`
		WaitingRoom      bool   `json:"waiting_room"`
	} `json:"settings"`
}

type createMeetingResponse struct {
	ID       int64  `json:"id"`
	JoinURL  string `json:"join_url"`
	Password string `json:"password"`
	Settings struct {
		GlobalDialInNumbers []struct {
			Number string `json:"number"`
		} `json:"global_dial_in_numbers"`
	} `json:"settings"`
}

// scheduledMeeting is the API's meeting type for a meeting with a fixed start time.
const scheduledMeeting = 2

func (c *Client) CreateMeeting(ctx context.Context, req Request) (*Meeting, error) {
	body := createMeetingRequest{
		Topic:     req.Topic,
		Type:      scheduledMeeting,
		StartTime: req.StartTime.UTC().Format(time.RFC3339),
		Duration:  req.Duration,
		Timezone:  "UTC",
	}
	body.Settings.AlternativeHosts = req.HostEmail
	body.Settings.WaitingRoom = true

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding meeting request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/users/%s/meetings", c.baseURL, url.PathEscape(c.hostUser))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	c.authorize(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d creating meeting", resp.StatusCode)
	}

	var out createMeetingResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding meeting response: %w", err)
	}

	m := &Meeting{
		ID:       strconv.FormatInt(out.ID, 10),
		JoinURL:  out.JoinURL,
		Password: out.Password,
	}

	if len(out.Settings.GlobalDialInNumbers) > 0 {
		m.DialIn = out.Settings.GlobalDialInNumbers[0].Number
	}

	return m, nil
}

func (c *Client) DeleteMeeting(ctx context.Context, id string) error {
	endpoint := fmt.Sprintf("%s/meetings/%s", c.baseURL, url.PathEscape(id))

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK:
		return nil
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return fmt.Errorf("unexpected status code %d deleting meeting %s", resp.StatusCode, id)
	}
}

func (c *Client) authorize(req *http.Request) {
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}
}
