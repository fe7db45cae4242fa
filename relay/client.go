package relay

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// maxBodySize bounds how much of a response body is read from the device.
const maxBodySize = 512

type Client struct {
	url  *url.URL
	host string
	http *http.Client
}

// Toggle flips the relay. Any 2xx answer counts as success, the body is ignored.
func (c *Client) Toggle(ctx context.Context) error {
	endpoint := c.url.JoinPath("/toggle")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return fmt.Errorf("error creating the request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: error sending the request: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("%w: error reading the response body: %w", ErrNetwork, err)
	}
	if !isSuccess(resp.StatusCode) {
		return fmt.Errorf("%w: error toggling relay (StatusCode: %d, Body: %v)", ErrNetwork, resp.StatusCode, string(body))
	}

	return nil
}

// QueryState asks the relay for its current power state.
func (c *Client) QueryState(ctx context.Context) (State, error) {
	endpoint := c.url.JoinPath("/state")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return StateUnknown, fmt.Errorf("error creating the request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return StateUnknown, fmt.Errorf("%w: error sending the request: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return StateUnknown, fmt.Errorf("%w: error reading the response body: %w", ErrNetwork, err)
	}
	if !isSuccess(resp.StatusCode) {
		return StateUnknown, fmt.Errorf("%w: error retrieving relay state (StatusCode: %d, Body: %v)", ErrNetwork, resp.StatusCode, string(body))
	}

	return ParseState(string(body))
}

// Status fetches the reported state and pings the relay host concurrently.
func (c *Client) Status(ctx context.Context) (Result[State], Result[bool]) {
	stateTask, stateChan := MakeAsync(func() Result[State] {
		value, err := c.QueryState(ctx)
		return Result[State]{value, err}
	})

	pingTask, pingChan := MakeAsync(func() Result[bool] {
		value, err := Ping(c.host)
		return Result[bool]{value, err}
	})

	go stateTask()
	go pingTask()

	return <-stateChan, <-pingChan
}

func (c *Client) URL() string {
	return c.url.String()
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}

// NewClient builds a client for the relay at ip:port. A zero timeout keeps the
// transport default.
func NewClient(ip string, port int, timeout time.Duration) (*Client, error) {
	if ip == "" {
		return nil, fmt.Errorf("relay address is empty")
	}
	parsedUrl, err := url.Parse("http://" + net.JoinHostPort(ip, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("error parsing the URL: %w", err)
	}
	return &Client{
		url:  parsedUrl,
		host: ip,
		http: &http.Client{Timeout: timeout},
	}, nil
}
