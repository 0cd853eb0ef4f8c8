package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Unidata/tds-sub001/internal/daemon/keyfile"
	"github.com/Unidata/tds-sub001/pkg/models"
	"github.com/Unidata/tds-sub001/pkg/signer"
	"github.com/Unidata/tds-sub001/version"
	"github.com/gorilla/websocket"
)

// RemoteClient implements Client by calling the daemon's HTTP API over a Unix socket.
type RemoteClient struct {
	httpClient *http.Client
	socketPath string
	keyPath    string
}

// NewRemoteClient creates a new RemoteClient connected to the daemon socket.
// keyPath is read when a trigger is signed, so a restarted daemon's fresh
// key is picked up.
func NewRemoteClient(socketPath, keyPath string) (*RemoteClient, error) {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
		DisableKeepAlives: false,
		MaxIdleConns:      10,
		IdleConnTimeout:   90 * time.Second,
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   10 * time.Second,
	}

	return &RemoteClient{
		httpClient: client,
		socketPath: socketPath,
		keyPath:    keyPath,
	}, nil
}

// baseURL is the dummy host used for Unix socket HTTP requests.
// The actual connection goes through the Unix socket, not this URL.
const baseURL = "http://unix"

func (c *RemoteClient) getJSON(ctx context.Context, path string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, v)
}

func (c *RemoteClient) do(req *http.Request, v interface{}) error {
	req.Header.Set("User-Agent", version.UserAgent())
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to daemon: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("daemon returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// IsRunning returns true if the daemon is available and responding.
func (c *RemoteClient) IsRunning() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// State returns the daemon state.
func (c *RemoteClient) State(ctx context.Context) (*models.DaemonState, error) {
	var state models.DaemonState
	if err := c.getJSON(ctx, "/api/state", &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// Targets returns the configured trigger targets.
func (c *RemoteClient) Targets(ctx context.Context) ([]models.TargetInfo, error) {
	var targets []models.TargetInfo
	if err := c.getJSON(ctx, "/api/targets", &targets); err != nil {
		return nil, err
	}
	return targets, nil
}

// Config returns the daemon's running configuration as raw JSON. Secrets
// are masked by the daemon.
func (c *RemoteClient) Config(ctx context.Context) (map[string]interface{}, error) {
	var cfg map[string]interface{}
	if err := c.getJSON(ctx, "/api/config", &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Trigger sends a signed trigger request for collection.
func (c *RemoteClient) Trigger(ctx context.Context, collection string, updateType models.UpdateType) (*models.TriggerResponse, error) {
	key, err := keyfile.Read(c.keyPath)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("collection", collection)
	if updateType != "" {
		q.Set("trigger", string(updateType))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/trigger?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if err := signer.New(key).SignRequest(req); err != nil {
		return nil, err
	}

	var resp models.TriggerResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stream subscribes to state updates over a websocket.
func (c *RemoteClient) Stream(ctx context.Context) (<-chan models.StateUpdate, error) {
	dialer := websocket.Dialer{
		NetDialContext: func(dialCtx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(dialCtx, "unix", c.socketPath)
		},
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, "ws://unix/api/stream", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to stream: %w", err)
	}

	ch := make(chan models.StateUpdate, 10)

	// Unblock ReadJSON when the caller goes away.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	go func() {
		defer close(ch)
		defer conn.Close()

		for {
			var update models.StateUpdate
			if err := conn.ReadJSON(&update); err != nil {
				return
			}
			select {
			case ch <- update:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

// Close cleans up any resources used by the client.
func (c *RemoteClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// Ensure RemoteClient implements Client interface.
var _ Client = (*RemoteClient)(nil)
