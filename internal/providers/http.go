package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// postJSON sends a JSON body and decodes a JSON response. Responses outside
// 2xx count as a provider failure for the cascade.
func postJSON(ctx context.Context, client *http.Client, url, apiKey string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-Api-Key", apiKey)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type httpAddressProvider struct {
	name   string
	url    string
	apiKey string
	client *http.Client
}

func (p *httpAddressProvider) Name() string { return p.name }

func (p *httpAddressProvider) Validate(ctx context.Context, address string) (string, error) {
	var out struct {
		Normalized string `json:"normalized"`
	}
	in := map[string]string{"address": address}
	if err := postJSON(ctx, p.client, p.url, p.apiKey, in, &out); err != nil {
		return "", err
	}
	if out.Normalized == "" {
		return "", fmt.Errorf("provider %s returned no normalized address", p.name)
	}
	return out.Normalized, nil
}

type httpTextProvider struct {
	name   string
	url    string
	apiKey string
	client *http.Client
}

func (p *httpTextProvider) Name() string { return p.name }

func (p *httpTextProvider) Extract(ctx context.Context, image []byte) (string, error) {
	var out struct {
		Text string `json:"text"`
	}
	in := map[string]string{"image": base64.StdEncoding.EncodeToString(image)}
	if err := postJSON(ctx, p.client, p.url, p.apiKey, in, &out); err != nil {
		return "", err
	}
	if out.Text == "" {
		return "", fmt.Errorf("provider %s returned no text", p.name)
	}
	return out.Text, nil
}

type httpRouteProvider struct {
	name   string
	url    string
	apiKey string
	client *http.Client
}

func (p *httpRouteProvider) Name() string { return p.name }

func (p *httpRouteProvider) DriveTime(ctx context.Context, origin, destination string) (float64, error) {
	var out struct {
		Minutes float64 `json:"minutes"`
	}
	in := map[string]string{"origin": origin, "destination": destination}
	if err := postJSON(ctx, p.client, p.url, p.apiKey, in, &out); err != nil {
		return 0, err
	}
	if out.Minutes < 0 {
		return 0, fmt.Errorf("provider %s returned negative drive time", p.name)
	}
	return out.Minutes, nil
}

type httpPushSender struct {
	name   string
	url    string
	apiKey string
	client *http.Client
}

func (p *httpPushSender) Name() string { return p.name }

func (p *httpPushSender) Send(ctx context.Context, msg PushMessage) error {
	return postJSON(ctx, p.client, p.url, p.apiKey, msg, nil)
}
