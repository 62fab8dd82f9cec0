// Command smoke walks a running server through sign-up, search, a paid
// reveal and sign-out, checking the websocket events along the way.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type session struct {
	Token   string `json:"token"`
	Balance int    `json:"balance"`
}

type directoryPage struct {
	Total int `json:"total"`
	Rows  []struct {
		Key      string `json:"key"`
		HasEmail bool   `json:"has_email"`
	} `json:"rows"`
}

type outcome struct {
	Charged   bool   `json:"charged"`
	Remaining int    `json:"remaining"`
	Message   string `json:"message"`
}

type event struct {
	Type    string `json:"type"`
	Balance *int   `json:"balance"`
}

func main() {
	base := flag.String("url", "http://localhost:8080", "server base URL")
	timeout := flag.Duration("timeout", 30*time.Second, "overall timeout")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, *base, http.DefaultClient, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "✗", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, base string, client *http.Client, out io.Writer) error {
	c := &smokeClient{base: strings.TrimRight(base, "/"), http: client}

	fmt.Fprintln(out, "1. Checking stats...")
	var stats struct {
		Registered int `json:"registered"`
		SpotsLeft  int `json:"spots_left"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/stats", nil, &stats); err != nil {
		return fmt.Errorf("stats: %w", err)
	}
	fmt.Fprintf(out, "✓ %d registered, %d spots left\n", stats.Registered, stats.SpotsLeft)

	fmt.Fprintln(out, "2. Signing up...")
	email := "smoke-" + uuid.NewString()[:8] + "@example.com"
	var sess session
	if err := c.do(ctx, http.MethodPost, "/auth/signup", map[string]string{
		"email":            email,
		"password":         "smoke-pass",
		"confirm_password": "smoke-pass",
	}, &sess); err != nil {
		return fmt.Errorf("signup: %w", err)
	}
	c.token = sess.Token
	fmt.Fprintf(out, "✓ %s signed up with %d tokens\n", email, sess.Balance)

	fmt.Fprintln(out, "3. Connecting event stream...")
	conn, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("events: %w", err)
	}
	defer conn.Close()
	if _, err := waitFor(conn, "session"); err != nil {
		return err
	}
	fmt.Fprintln(out, "✓ Session event received")

	fmt.Fprintln(out, "4. Searching directory...")
	var page directoryPage
	if err := c.do(ctx, http.MethodGet, "/api/directory?page=1", nil, &page); err != nil {
		return fmt.Errorf("directory: %w", err)
	}
	rowKey := ""
	for _, row := range page.Rows {
		if row.HasEmail {
			rowKey = row.Key
			break
		}
	}
	if rowKey == "" {
		return errors.New("no row with an email on the first page")
	}
	fmt.Fprintf(out, "✓ %d rows in directory\n", page.Total)

	fmt.Fprintln(out, "5. Revealing an email...")
	var res outcome
	if err := c.do(ctx, http.MethodPost, "/api/reveals", map[string]string{"row_key": rowKey, "kind": "email"}, &res); err != nil {
		return fmt.Errorf("reveal: %w", err)
	}
	if !res.Charged || res.Remaining >= sess.Balance {
		return fmt.Errorf("reveal was not charged: %+v", res)
	}
	ev, err := waitFor(conn, "balance")
	if err != nil {
		return err
	}
	if ev.Balance == nil || *ev.Balance != res.Remaining {
		return fmt.Errorf("balance event does not match remaining %d", res.Remaining)
	}
	fmt.Fprintf(out, "✓ %s\n", res.Message)

	fmt.Fprintln(out, "6. Signing out...")
	if err := c.do(ctx, http.MethodPost, "/auth/logout", nil, nil); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	if _, err := waitFor(conn, "signed_out"); err != nil {
		return err
	}
	fmt.Fprintln(out, "✓ Signed-out event received")
	fmt.Fprintln(out, "=== Smoke run complete ===")
	return nil
}

type smokeClient struct {
	base  string
	token string
	http  *http.Client
}

func (c *smokeClient) do(ctx context.Context, method, path string, body, dst any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, r)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(msg)))
	}
	if dst == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

func (c *smokeClient) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.base + "/api/events")
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.RawQuery = url.Values{"token": {c.token}}.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	return conn, err
}

// waitFor reads frames until one of the given type arrives.
func waitFor(conn *websocket.Conn, eventType string) (*event, error) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var ev event
		if err := conn.ReadJSON(&ev); err != nil {
			return nil, fmt.Errorf("waiting for %s event: %w", eventType, err)
		}
		if ev.Type == eventType {
			return &ev, nil
		}
	}
}
