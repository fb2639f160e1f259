// Package providers adapts external services: address validation, receipt
// OCR, drive-time lookup, push notifications. Each concern runs a cascade of
// interchangeable providers tried in configured order; the first success
// wins. A provider gets exactly one attempt per request, there are no
// retries, and every attempt shares one bounded timeout.
package providers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"fieldline/internal/config"
)

// Returned when every provider in the respective cascade has failed.
var (
	ErrValidationFailed  = errors.New("address validation failed: no provider succeeded")
	ErrScanFailed        = errors.New("receipt scan failed: no provider succeeded")
	ErrCalculationFailed = errors.New("drive time calculation failed: no provider succeeded")
)

// ValidatedAddress is a normalized form of a free-text address, tagged with
// the provider that produced it.
type ValidatedAddress struct {
	Input      string `json:"input"`
	Normalized string `json:"normalized"`
	Provider   string `json:"provider"`
}

// ReceiptText is the text extracted from a receipt image, tagged with the
// provider that produced it.
type ReceiptText struct {
	Text     string `json:"text"`
	Provider string `json:"provider"`
}

// DriveTime is a travel estimate between two addresses.
type DriveTime struct {
	Minutes  float64 `json:"minutes"`
	Provider string  `json:"provider"`
}

// PushMessage is a notification addressed to a single device.
type PushMessage struct {
	DeviceToken string `json:"device_token"`
	Title       string `json:"title"`
	Body        string `json:"body"`
}

// AddressProvider normalizes a free-text address.
type AddressProvider interface {
	Name() string
	Validate(ctx context.Context, address string) (string, error)
}

// TextProvider extracts text from an image.
type TextProvider interface {
	Name() string
	Extract(ctx context.Context, image []byte) (string, error)
}

// RouteProvider estimates drive time in minutes between two addresses.
type RouteProvider interface {
	Name() string
	DriveTime(ctx context.Context, origin, destination string) (float64, error)
}

// PushSender delivers a notification to a device.
type PushSender interface {
	Name() string
	Send(ctx context.Context, msg PushMessage) error
}

// Service holds the configured cascades.
type Service struct {
	Address []AddressProvider
	Text    []TextProvider
	Route   []RouteProvider
	Push    []PushSender
}

// FromConfig builds the cascades from fieldline.yml. Providers without a URL
// are left out, so an unconfigured concern fails fast with its exhaustion
// error.
func FromConfig(cfg config.Providers) *Service {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	s := &Service{}
	for _, p := range []config.ProviderSettings{cfg.Geocode, cfg.Postal} {
		if p.URL == "" {
			continue
		}
		s.Address = append(s.Address, &httpAddressProvider{name: p.Name, url: p.URL, apiKey: p.APIKey, client: client})
	}
	for _, p := range cfg.OCR {
		if p.URL == "" {
			continue
		}
		s.Text = append(s.Text, &httpTextProvider{name: p.Name, url: p.URL, apiKey: p.APIKey, client: client})
	}
	if cfg.Directions.URL != "" {
		s.Route = append(s.Route, &httpRouteProvider{name: cfg.Directions.Name, url: cfg.Directions.URL, apiKey: cfg.Directions.APIKey, client: client})
	}
	if cfg.Push.URL != "" {
		s.Push = append(s.Push, &httpPushSender{name: cfg.Push.Name, url: cfg.Push.URL, apiKey: cfg.Push.APIKey, client: client})
	}
	return s
}

// ValidateAddress tries each address provider in order and returns the first
// normalized result.
func (s *Service) ValidateAddress(ctx context.Context, address string) (ValidatedAddress, error) {
	for _, p := range s.Address {
		normalized, err := p.Validate(ctx, address)
		if err != nil {
			log.Printf("providers: address validation via %s failed: %v", p.Name(), err)
			continue
		}
		return ValidatedAddress{Input: address, Normalized: normalized, Provider: p.Name()}, nil
	}
	return ValidatedAddress{}, ErrValidationFailed
}

// ScanReceipt tries each OCR provider in order and returns the first
// extracted text.
func (s *Service) ScanReceipt(ctx context.Context, image []byte) (ReceiptText, error) {
	for _, p := range s.Text {
		text, err := p.Extract(ctx, image)
		if err != nil {
			log.Printf("providers: receipt scan via %s failed: %v", p.Name(), err)
			continue
		}
		return ReceiptText{Text: text, Provider: p.Name()}, nil
	}
	return ReceiptText{}, ErrScanFailed
}

// CalculateDriveTime tries each route provider in order and returns the
// first estimate.
func (s *Service) CalculateDriveTime(ctx context.Context, origin, destination string) (DriveTime, error) {
	for _, p := range s.Route {
		minutes, err := p.DriveTime(ctx, origin, destination)
		if err != nil {
			log.Printf("providers: drive time via %s failed: %v", p.Name(), err)
			continue
		}
		return DriveTime{Minutes: minutes, Provider: p.Name()}, nil
	}
	return DriveTime{}, ErrCalculationFailed
}

// SendPush tries each push sender in order until one delivers. Push carries
// no delivery contract: exhaustion is logged and the message is dropped.
func (s *Service) SendPush(ctx context.Context, msg PushMessage) {
	for _, p := range s.Push {
		if err := p.Send(ctx, msg); err != nil {
			log.Printf("providers: push via %s failed: %v", p.Name(), err)
			continue
		}
		return
	}
	log.Printf("providers: push notification dropped: no sender succeeded")
}
