package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// IPEchoURL answers with the caller's public address as {"ip": "..."}.
const IPEchoURL = "https://api.ipify.org?format=json"

// PublicIP reports the address the upstream sees when requests go through transport.
func PublicIP(ctx context.Context, transport Transport, echoURL string) (string, error) {
	if echoURL == "" {
		echoURL = IPEchoURL
	}
	header := http.Header{}
	header.Set("Accept", "application/json")
	header.Set("User-Agent", browserUserAgent)

	resp, err := transport.Get(ctx, echoURL, header)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", statusError("ip check", resp.StatusCode, resp.Body)
	}

	var out struct {
		IP string `json:"ip"`
	}
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return "", malformed("ip check", fmt.Errorf("decode: %w", err))
	}
	if out.IP == "" {
		return "", malformed("ip check", fmt.Errorf("no ip in %s", snippet(resp.Body)))
	}
	return out.IP, nil
}
