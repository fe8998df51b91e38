package httpremote

import "github.com/velmie/syncbox"

const (
	// ApplyPath is the single-envelope endpoint mounted by NewHandler.
	ApplyPath = "/sync/apply"
	// BatchPath is the batch endpoint mounted by NewHandler.
	BatchPath = "/sync/apply-batch"

	headerIdempotencyKey = "Idempotency-Key"
	headerDeviceID       = "X-Device-Id"
	headerPreviewMethod  = "X-Preview-Method"
	headerPreviewPath    = "X-Preview-Path"
	headerBatchCount     = "X-Batch-Count"
	headerAPIKey         = "apikey"
	headerAuthorization  = "Authorization"
	contentTypeJSON      = "application/json; charset=utf-8"
)

// Delivery pairs an envelope with the request it maps to.
type Delivery = syncbox.Delivery

type batchRequest struct {
	Ops []Delivery `json:"ops"`
}

type batchResponse struct {
	Results []syncbox.Result `json:"results"`
}
