package providers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldline/internal/config"
)

type stubAddress struct {
	name   string
	result string
	err    error
	calls  int
}

func (s *stubAddress) Name() string { return s.name }
func (s *stubAddress) Validate(ctx context.Context, address string) (string, error) {
	s.calls++
	return s.result, s.err
}

type stubText struct {
	name   string
	result string
	err    error
	calls  int
}

func (s *stubText) Name() string { return s.name }
func (s *stubText) Extract(ctx context.Context, image []byte) (string, error) {
	s.calls++
	return s.result, s.err
}

type stubRoute struct {
	name    string
	minutes float64
	err     error
}

func (s *stubRoute) Name() string { return s.name }
func (s *stubRoute) DriveTime(ctx context.Context, origin, destination string) (float64, error) {
	return s.minutes, s.err
}

type stubPush struct {
	name string
	err  error
	sent []PushMessage
}

func (s *stubPush) Name() string { return s.name }
func (s *stubPush) Send(ctx context.Context, msg PushMessage) error {
	if s.err == nil {
		s.sent = append(s.sent, msg)
	}
	return s.err
}

func TestValidateAddressFirstSuccessWins(t *testing.T) {
	ctx := context.Background()
	geocode := &stubAddress{name: "maps", result: "12 Elm St, Springfield"}
	postal := &stubAddress{name: "postal", result: "should never run"}
	svc := &Service{Address: []AddressProvider{geocode, postal}}

	res, err := svc.ValidateAddress(ctx, "12 elm street")
	require.NoError(t, err)
	assert.Equal(t, "12 Elm St, Springfield", res.Normalized)
	assert.Equal(t, "maps", res.Provider)
	assert.Equal(t, 1, geocode.calls)
	assert.Zero(t, postal.calls, "later providers must not run after a success")
}

func TestValidateAddressFallsBack(t *testing.T) {
	ctx := context.Background()
	geocode := &stubAddress{name: "maps", err: errors.New("quota exceeded")}
	postal := &stubAddress{name: "postal", result: "12 ELM ST"}
	svc := &Service{Address: []AddressProvider{geocode, postal}}

	res, err := svc.ValidateAddress(ctx, "12 elm street")
	require.NoError(t, err)
	assert.Equal(t, "postal", res.Provider)
	// One attempt each, no retries.
	assert.Equal(t, 1, geocode.calls)
	assert.Equal(t, 1, postal.calls)
}

func TestValidateAddressExhaustion(t *testing.T) {
	ctx := context.Background()
	svc := &Service{Address: []AddressProvider{
		&stubAddress{name: "maps", err: errors.New("down")},
		&stubAddress{name: "postal", err: errors.New("down too")},
	}}
	_, err := svc.ValidateAddress(ctx, "12 elm street")
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestScanReceiptCascadeOrder(t *testing.T) {
	ctx := context.Background()
	vision := &stubText{name: "vision", err: errors.New("unreadable")}
	textract := &stubText{name: "textract", result: "TOTAL $42.17"}
	docscan := &stubText{name: "docscan", result: "never"}
	svc := &Service{Text: []TextProvider{vision, textract, docscan}}

	res, err := svc.ScanReceipt(ctx, []byte{0xff, 0xd8})
	require.NoError(t, err)
	assert.Equal(t, "textract", res.Provider)
	assert.Equal(t, "TOTAL $42.17", res.Text)
	assert.Equal(t, 1, vision.calls)
	assert.Equal(t, 1, textract.calls)
	assert.Zero(t, docscan.calls)
}

func TestScanReceiptExhaustion(t *testing.T) {
	svc := &Service{}
	_, err := svc.ScanReceipt(context.Background(), []byte("img"))
	assert.ErrorIs(t, err, ErrScanFailed)
}

func TestCalculateDriveTime(t *testing.T) {
	ctx := context.Background()
	svc := &Service{Route: []RouteProvider{&stubRoute{name: "maps", minutes: 27.5}}}
	res, err := svc.CalculateDriveTime(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, 27.5, res.Minutes)

	empty := &Service{}
	_, err = empty.CalculateDriveTime(ctx, "a", "b")
	assert.ErrorIs(t, err, ErrCalculationFailed)
}

func TestSendPush(t *testing.T) {
	ctx := context.Background()
	down := &stubPush{name: "apns", err: errors.New("cert expired")}
	backup := &stubPush{name: "backup"}
	svc := &Service{Push: []PushSender{down, backup}}

	msg := PushMessage{DeviceToken: "tok", Title: "New job", Body: "12 Elm St"}
	svc.SendPush(ctx, msg)
	require.Len(t, backup.sent, 1)
	assert.Equal(t, msg, backup.sent[0])
	assert.Empty(t, down.sent)

	// Exhaustion only logs; the message is dropped without a trace for the
	// caller.
	empty := &Service{}
	empty.SendPush(ctx, msg)
}

func TestFromConfigSkipsUnconfigured(t *testing.T) {
	cfg := config.Providers{
		TimeoutSeconds: 5,
		Geocode:        config.ProviderSettings{Name: "maps", URL: "https://maps.example/validate"},
		Postal:         config.ProviderSettings{Name: "postal"}, // no URL
		OCR: []config.ProviderSettings{
			{Name: "vision", URL: "https://vision.example/ocr"},
			{Name: "textract"}, // no URL
		},
	}
	svc := FromConfig(cfg)
	require.Len(t, svc.Address, 1)
	assert.Equal(t, "maps", svc.Address[0].Name())
	require.Len(t, svc.Text, 1)
	assert.Equal(t, "vision", svc.Text[0].Name())
	assert.Empty(t, svc.Route)
	assert.Empty(t, svc.Push)
}
