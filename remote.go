package syncbox

import (
	"context"
	"encoding/json"
)

// Result is the outcome of one delivery attempt.
type Result struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Remote delivers envelopes to the system of record. Apply reports every
// failure, including transport errors and timeouts, as a Result with OK false.
type Remote interface {
	// Apply attempts delivery of env described by preview.
	Apply(ctx context.Context, env Envelope, preview RequestPreview) Result
}

// BatchRemote is a Remote that can deliver several envelopes in one call.
// The Relay uses ApplyBatch for every pass when the remote implements it.
type BatchRemote interface {
	Remote
	// ApplyBatch returns one Result per delivery, in input order.
	ApplyBatch(ctx context.Context, deliveries []Delivery) []Result
}

// RemoteFunc adapts a function to Remote.
type RemoteFunc func(ctx context.Context, env Envelope, preview RequestPreview) Result

// Apply implements Remote.
func (fn RemoteFunc) Apply(ctx context.Context, env Envelope, preview RequestPreview) Result {
	return fn(ctx, env, preview)
}

// Delivery pairs an envelope with the request it maps to.
type Delivery struct {
	Envelope Envelope
	Preview  RequestPreview
}

type previewJSON struct {
	Method string `json:"method"`
	Path   string `json:"path"`
}

type deliveryJSON struct {
	Envelope Envelope    `json:"envelope"`
	Preview  previewJSON `json:"preview"`
}

// MarshalJSON implements json.Marshaler. The preview body is not repeated;
// it is the envelope body.
func (d Delivery) MarshalJSON() ([]byte, error) {
	return json.Marshal(deliveryJSON{
		Envelope: d.Envelope,
		Preview:  previewJSON{Method: d.Preview.Method, Path: d.Preview.Path},
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Delivery) UnmarshalJSON(data []byte) error {
	var raw deliveryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*d = Delivery{
		Envelope: raw.Envelope,
		Preview: RequestPreview{
			Method: raw.Preview.Method,
			Path:   raw.Preview.Path,
			Body:   raw.Envelope.Body,
		},
	}

	return nil
}
