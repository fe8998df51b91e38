package httpremote_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velmie/syncbox"
	"github.com/velmie/syncbox/httpremote"
	"github.com/velmie/syncbox/remote"
)

var sentAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func itemOp(id, name string) syncbox.PendingOperation {
	return syncbox.PendingOperation{
		EntityKind: syncbox.EntityItem,
		EntityID:   id,
		OpKind:     syncbox.OpUpsert,
		Payload:    syncbox.Payload{"name": name},
	}
}

func delivery(opID string, op syncbox.PendingOperation) httpremote.Delivery {
	return httpremote.Delivery{
		Envelope: syncbox.NewEnvelope(syncbox.Entry{OpID: opID}, op, "device-1", sentAt),
		Preview:  syncbox.Preview(op),
	}
}

func newReferenceServer(t *testing.T, opts ...httpremote.HandlerOption) (*remote.Reference, *httptest.Server) {
	t.Helper()
	ref := remote.NewReference()
	srv := httptest.NewServer(httpremote.NewHandler(ref, opts...))
	t.Cleanup(srv.Close)

	return ref, srv
}

func TestClientAppliesThroughHandler(t *testing.T) {
	ref, srv := newReferenceServer(t)
	client := httpremote.NewClient(srv.URL + httpremote.ApplyPath)
	d := delivery("op-1", itemOp("7", "Rice"))

	res := client.Apply(context.Background(), d.Envelope, d.Preview)
	require.True(t, res.OK, res.Message)
	assert.Equal(t, "HTTP 200 OK", res.Message)
	assert.Equal(t, "Rice", ref.Snapshot().Items[7]["name"])

	replay := client.Apply(context.Background(), d.Envelope, d.Preview)
	require.True(t, replay.OK, replay.Message)
	assert.Equal(t, 1, ref.Counts().Items)
}

func TestClientReportsRejection(t *testing.T) {
	_, srv := newReferenceServer(t)
	client := httpremote.NewClient(srv.URL + httpremote.ApplyPath)
	d := delivery("op-1", syncbox.PendingOperation{
		EntityKind: syncbox.EntityTransaction,
		EntityID:   "tx-1",
		OpKind:     syncbox.OpCreateSale,
		Payload: syncbox.Payload{
			"paymentMode": "CASH",
			"items":       []map[string]any{{"itemId": 99, "qty": 1, "price": 5}},
		},
	})

	res := client.Apply(context.Background(), d.Envelope, d.Preview)
	assert.False(t, res.OK)
	assert.True(t, strings.HasPrefix(res.Message, "HTTP 422 Unprocessable Entity: "), res.Message)
	assert.Contains(t, res.Message, "not synced yet")
}

func TestClientSendsHeaders(t *testing.T) {
	var got http.Header
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(srv.Close)

	client := httpremote.NewClient(srv.URL, httpremote.WithAPIKey(" secret "))
	d := delivery("op-42", itemOp("7", "Rice"))

	res := client.Apply(context.Background(), d.Envelope, d.Preview)
	require.True(t, res.OK, res.Message)
	assert.Equal(t, "HTTP 202 Accepted", res.Message)
	assert.Equal(t, "op-42", got.Get("Idempotency-Key"))
	assert.Equal(t, "device-1", got.Get("X-Device-Id"))
	assert.Equal(t, "PUT", got.Get("X-Preview-Method"))
	assert.Equal(t, "/v1/items/7", got.Get("X-Preview-Path"))
	assert.Equal(t, "secret", got.Get("apikey"))
	assert.Equal(t, "Bearer secret", got.Get("Authorization"))
	assert.Contains(t, got.Get("Content-Type"), "application/json")
	assert.Equal(t, "op-42", body["opId"])
	assert.Equal(t, "ITEM", body["entityType"])
}

func TestClientOmitsAuthWithoutKey(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
	}))
	t.Cleanup(srv.Close)

	d := delivery("op-1", itemOp("7", "Rice"))
	res := httpremote.NewClient(srv.URL).Apply(context.Background(), d.Envelope, d.Preview)
	require.True(t, res.OK)
	assert.Empty(t, got.Get("apikey"))
	assert.Empty(t, got.Get("Authorization"))
}

func TestClientNotConfigured(t *testing.T) {
	d := delivery("op-1", itemOp("7", "Rice"))
	res := httpremote.NewClient("  ").Apply(context.Background(), d.Envelope, d.Preview)
	assert.False(t, res.OK)
	assert.Contains(t, res.Message, "backend not configured")
}

func TestClientTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	d := delivery("op-1", itemOp("7", "Rice"))
	res := httpremote.NewClient(url).Apply(context.Background(), d.Envelope, d.Preview)
	assert.False(t, res.OK)
	assert.True(t, strings.HasPrefix(res.Message, "HTTP error: "), res.Message)
}

func TestClientTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	d := delivery("op-1", itemOp("7", "Rice"))
	res := httpremote.NewClient(srv.URL, httpremote.WithTimeout(50*time.Millisecond)).Apply(context.Background(), d.Envelope, d.Preview)
	assert.False(t, res.OK)
	assert.True(t, strings.HasPrefix(res.Message, "HTTP error: "), res.Message)
}

func TestClientServerErrorWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	d := delivery("op-1", itemOp("7", "Rice"))
	res := httpremote.NewClient(srv.URL).Apply(context.Background(), d.Envelope, d.Preview)
	assert.False(t, res.OK)
	assert.Equal(t, "HTTP 503 Service Unavailable", res.Message)
}

func TestHandlerRejectsMalformedRequests(t *testing.T) {
	_, srv := newReferenceServer(t)

	tests := []struct {
		name    string
		body    string
		headers map[string]string
		status  int
		message string
	}{
		{
			name:    "bad json",
			body:    `{"apiVersion":`,
			headers: map[string]string{"X-Preview-Method": "PUT", "X-Preview-Path": "/v1/items/7"},
			status:  http.StatusBadRequest,
			message: "malformed envelope",
		},
		{
			name:    "missing preview",
			body:    `{"apiVersion":1,"deviceId":"d","opId":"op-1","sentAtMillis":0,"entityType":"ITEM","op":"UPSERT"}`,
			status:  http.StatusBadRequest,
			message: "missing preview headers",
		},
		{
			name: "key mismatch",
			body: `{"apiVersion":1,"deviceId":"d","opId":"op-1","sentAtMillis":0,"entityType":"ITEM","op":"UPSERT"}`,
			headers: map[string]string{
				"X-Preview-Method": "PUT",
				"X-Preview-Path":   "/v1/items/7",
				"Idempotency-Key":  "op-2",
			},
			status:  http.StatusBadRequest,
			message: "idempotency key does not match opId",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodPost, srv.URL+httpremote.ApplyPath, strings.NewReader(tt.body))
			require.NoError(t, err)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			var result syncbox.Result
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.False(t, result.OK)
			assert.Contains(t, result.Message, tt.message)
		})
	}
}

func TestHandlerRequiresAPIKey(t *testing.T) {
	ref, srv := newReferenceServer(t, httpremote.WithRequiredAPIKey("secret"))
	d := delivery("op-1", itemOp("7", "Rice"))

	res := httpremote.NewClient(srv.URL+httpremote.ApplyPath).Apply(context.Background(), d.Envelope, d.Preview)
	assert.False(t, res.OK)
	assert.Contains(t, res.Message, "HTTP 401")
	assert.Zero(t, ref.Counts().Items)

	res = httpremote.NewClient(srv.URL+httpremote.ApplyPath, httpremote.WithAPIKey("secret")).Apply(context.Background(), d.Envelope, d.Preview)
	require.True(t, res.OK, res.Message)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestClientApplyBatch(t *testing.T) {
	ref, srv := newReferenceServer(t)
	client := httpremote.NewClient(srv.URL + httpremote.ApplyPath)

	results := client.ApplyBatch(context.Background(), []httpremote.Delivery{
		delivery("op-1", itemOp("1", "Rice")),
		delivery("op-2", itemOp("2", " ")),
		delivery("op-3", itemOp("3", "Dal")),
	})
	require.Len(t, results, 3)
	assert.True(t, results[0].OK)
	assert.False(t, results[1].OK)
	assert.Equal(t, "rejected: missing item.name", results[1].Message)
	assert.True(t, results[2].OK)
	assert.Equal(t, 2, ref.Counts().Items)
}

func TestClientApplyBatchFallsBack(t *testing.T) {
	ref := remote.NewReference()
	var (
		mu    sync.Mutex
		paths []string
	)
	full := httpremote.NewHandler(ref)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		if r.URL.Path == httpremote.BatchPath {
			http.NotFound(w, r)
			return
		}
		full.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	results := httpremote.NewClient(srv.URL+httpremote.ApplyPath).ApplyBatch(context.Background(), []httpremote.Delivery{
		delivery("op-1", itemOp("1", "Rice")),
		delivery("op-2", itemOp("2", "Dal")),
	})
	require.Len(t, results, 2)
	assert.True(t, results[0].OK)
	assert.True(t, results[1].OK)
	assert.Equal(t, []string{httpremote.BatchPath, httpremote.ApplyPath, httpremote.ApplyPath}, paths)
}

func TestRelayOverHTTP(t *testing.T) {
	ctx := context.Background()
	ref, srv := newReferenceServer(t)
	store := syncbox.NewMemoryStore(syncbox.MemoryStoreConfig{})
	relay := syncbox.NewRelay(store, httpremote.NewClient(srv.URL+httpremote.ApplyPath), "device-1")

	_, err := store.Enqueue(ctx, itemOp("7", "Rice"))
	require.NoError(t, err)
	_, err = store.Enqueue(ctx, syncbox.PendingOperation{
		EntityKind: syncbox.EntityParty,
		EntityID:   "3",
		OpKind:     syncbox.OpUpsertCustomer,
		Payload:    syncbox.Payload{"name": "Asha", "phone": "99999"},
	})
	require.NoError(t, err)

	res, err := relay.DrainOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Delivered)
	assert.Equal(t, remote.Counts{Items: 1, Parties: 1}, ref.Counts())
}

func TestRelayBatchOverHTTPHaltsAtFirstFailure(t *testing.T) {
	ctx := context.Background()
	ref := remote.NewReference()
	var (
		mu    sync.Mutex
		paths []string
	)
	full := httpremote.NewHandler(ref)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		full.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	store := syncbox.NewMemoryStore(syncbox.MemoryStoreConfig{})
	relay := syncbox.NewRelay(store, httpremote.NewClient(srv.URL+httpremote.ApplyPath), "device-1")

	var ids []int64
	for _, op := range []syncbox.PendingOperation{itemOp("1", "Rice"), itemOp("2", " "), itemOp("3", "Dal")} {
		entry, err := store.Enqueue(ctx, op)
		require.NoError(t, err)
		ids = append(ids, entry.ID)
	}

	res, err := relay.DrainOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, syncbox.DrainResult{Attempted: 2, Delivered: 1, Failed: 1, Halted: true}, res)
	assert.Equal(t, []string{httpremote.BatchPath}, paths)

	first, _, err := store.Get(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, syncbox.StatusDone, first.Status)
	second, _, err := store.Get(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, syncbox.StatusFailed, second.Status)
	assert.Equal(t, "rejected: missing item.name", second.Error)
	third, _, err := store.Get(ctx, ids[2])
	require.NoError(t, err)
	assert.Equal(t, syncbox.StatusPending, third.Status)
	require.NotNil(t, third.LastAttemptAt)

	// The remote already applied the third op; the replay is idempotent.
	assert.Equal(t, 2, ref.Counts().Items)
	res, err = relay.RetryEntry(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)

	relay = syncbox.NewRelay(store, httpremote.NewClient(srv.URL+httpremote.ApplyPath), "device-1",
		syncbox.WithContinueOnFailure())
	res, err = relay.RetryFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, syncbox.DrainResult{Attempted: 2, Delivered: 1, Failed: 1}, res)
	assert.Equal(t, 2, ref.Counts().Items)
	assert.Len(t, ref.Snapshot().SeenOpIDs, 2)
}
