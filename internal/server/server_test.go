package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blingpick/blingpick/internal/bling"
	"github.com/blingpick/blingpick/internal/ledger"
	"github.com/blingpick/blingpick/internal/picking"
)

// stubERP serves order 4821 (P x2 barcode "123", Q x1 SKU "Q1").
type stubERP struct {
	mu      sync.Mutex
	findErr error
	postErr error
	posted  []bling.StockMovement
	block   chan struct{}
	entered chan struct{}
}

func (e *stubERP) FindOrders(_ context.Context, number string) ([]bling.OrderSummary, error) {
	if e.entered != nil {
		e.entered <- struct{}{}
		<-e.block
	}

	if e.findErr != nil {
		return nil, e.findErr
	}

	if number != "4821" {
		return nil, nil
	}

	return []bling.OrderSummary{{ID: "16000000001", Number: "4821"}}, nil
}

func (e *stubERP) GetOrder(context.Context, string) (*bling.Order, error) {
	return &bling.Order{
		ID:     "16000000001",
		Number: "4821",
		Items: []bling.OrderItem{
			{Code: "SKU-P", Description: "Produto P", Quantity: decimal.NewFromInt(2), Product: bling.ProductRef{ID: "101"}},
			{Code: "Q1", Description: "Produto Q", Quantity: decimal.NewFromInt(1), Product: bling.ProductRef{ID: "202"}},
		},
	}, nil
}

func (e *stubERP) GetProduct(_ context.Context, id string) (*bling.Product, error) {
	if id == "101" {
		return &bling.Product{ID: "101", Name: "Produto P", Code: "SKU-P", Barcode: "123"}, nil
	}

	return &bling.Product{ID: json.Number(id), Code: "Q1"}, nil
}

func (e *stubERP) PostStockMovement(_ context.Context, m bling.StockMovement) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.postErr != nil {
		return e.postErr
	}

	e.posted = append(e.posted, m)

	return nil
}

type stubTokens struct {
	status bling.TokenStatus
}

func (s stubTokens) Status() bling.TokenStatus {
	return s.status
}

type testEnv struct {
	erp    *stubERP
	hub    *Hub
	server *Server
	http   *httptest.Server
}

func newTestEnv(t *testing.T, history History) *testEnv {
	t.Helper()

	erp := &stubERP{}
	hub := NewHub(slog.Default())

	var recorder picking.Recorder
	if store, ok := history.(*ledger.Store); ok {
		recorder = store
	}

	session := picking.NewSession(erp, picking.Options{OnEvent: hub.Publish, Recorder: recorder}, slog.Default())
	srv := New(Options{
		Session: session,
		Hub:     hub,
		Tokens:  stubTokens{status: bling.TokenStatus{Configured: true, Valid: true}},
		History: history,
	}, slog.Default())

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		hub.Close()
		ts.Close()
	})

	return &testEnv{erp: erp, hub: hub, server: srv, http: ts}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, e.http.URL+path, reader)
	require.NoError(t, err)

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))

	return resp.StatusCode, out
}

func TestLoadOrder_OK(t *testing.T) {
	env := newTestEnv(t, nil)

	status, body := env.do(t, http.MethodGet, "/order/4821", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "4821", body["number"])
	assert.Equal(t, "16000000001", body["orderId"])

	products, ok := body["products"].([]any)
	require.True(t, ok)
	require.Len(t, products, 2)

	first, _ := products[0].(map[string]any)
	assert.Equal(t, "101", first["productId"])
	assert.Equal(t, "Produto P", first["name"])
	assert.InDelta(t, 2, first["orderedQty"], 0)
	assert.InDelta(t, 0, first["scannedQty"], 0)
}

func TestLoadOrder_NotFound(t *testing.T) {
	env := newTestEnv(t, nil)

	status, body := env.do(t, http.MethodGet, "/order/999", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, msgOrderNotFound, body["error"])
}

func TestLoadOrder_InvalidGrant(t *testing.T) {
	env := newTestEnv(t, nil)
	env.erp.findErr = fmt.Errorf("bling: obtaining token: %w", bling.ErrInvalidGrant)

	status, body := env.do(t, http.MethodGet, "/order/4821", "")
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, msgNotAuthorized, body["error"])
}

func TestLoadOrder_Busy(t *testing.T) {
	env := newTestEnv(t, nil)
	env.erp.entered = make(chan struct{})
	env.erp.block = make(chan struct{})

	done := make(chan int, 1)

	go func() {
		resp, err := http.Get(env.http.URL + "/order/4821") //nolint:noctx // test helper
		if err != nil {
			done <- 0
			return
		}
		resp.Body.Close()
		done <- resp.StatusCode
	}()

	<-env.erp.entered

	status, body := env.do(t, http.MethodGet, "/order/4821", "")
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, msgBusy, body["error"])

	close(env.erp.block)
	assert.Equal(t, http.StatusOK, <-done)
}

func TestScan_Flow(t *testing.T) {
	env := newTestEnv(t, nil)

	status, body := env.do(t, http.MethodPost, "/scan", `{"code":"123"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, msgNoOrder, body["error"])

	status, _ = env.do(t, http.MethodGet, "/order/4821", "")
	require.Equal(t, http.StatusOK, status)

	status, body = env.do(t, http.MethodPost, "/scan", `{"code":"123"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "101", body["productId"])
	assert.InDelta(t, 1, body["scannedQty"], 0)

	status, _ = env.do(t, http.MethodPost, "/scan", `{"code":"123"}`)
	require.Equal(t, http.StatusOK, status)

	status, body = env.do(t, http.MethodPost, "/scan", `{"code":"123"}`)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, msgQuantityExceeded, body["error"])

	status, body = env.do(t, http.MethodPost, "/scan", `{"code":"000"}`)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, msgNotInOrder, body["error"])

	status, body = env.do(t, http.MethodPost, "/scan", `{"codigo":"123"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, msgBadRequest, body["error"])
}

func TestFinalize_ShortfallThenConfirm(t *testing.T) {
	env := newTestEnv(t, nil)

	status, _ := env.do(t, http.MethodGet, "/order/4821", "")
	require.Equal(t, http.StatusOK, status)

	status, _ = env.do(t, http.MethodPost, "/scan", `{"code":"123"}`)
	require.Equal(t, http.StatusOK, status)

	status, body := env.do(t, http.MethodPost, "/finalize", `{"confirmed":false}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["ok"])
	assert.Equal(t, []any{"Produto P – faltaram 1", "Produto Q – faltaram 1"}, body["faltantes"])
	assert.Empty(t, env.erp.posted)

	status, body = env.do(t, http.MethodPost, "/finalize", `{"confirmed":true}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["ok"])
	require.Len(t, env.erp.posted, 1)
	assert.Equal(t, 1, env.erp.posted[0].Items[0].Quantity)
}

func TestFinalize_CompleteWithEmptyBody(t *testing.T) {
	env := newTestEnv(t, nil)

	status, _ := env.do(t, http.MethodGet, "/order/4821", "")
	require.Equal(t, http.StatusOK, status)

	for _, code := range []string{"123", "123", "Q1"} {
		status, _ = env.do(t, http.MethodPost, "/scan", `{"code":"`+code+`"}`)
		require.Equal(t, http.StatusOK, status)
	}

	status, body := env.do(t, http.MethodPost, "/finalize", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, []any{}, body["faltantes"])
}

func TestFinalize_ERPFailureKeepsCountersForRetry(t *testing.T) {
	env := newTestEnv(t, nil)
	env.erp.postErr = &bling.APIError{StatusCode: http.StatusInternalServerError, Err: bling.ErrServerError}

	status, _ := env.do(t, http.MethodGet, "/order/4821", "")
	require.Equal(t, http.StatusOK, status)

	status, _ = env.do(t, http.MethodPost, "/scan", `{"code":"Q1"}`)
	require.Equal(t, http.StatusOK, status)

	status, body := env.do(t, http.MethodPost, "/finalize", `{"confirmed":true}`)
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, msgFinalizeFailed, body["error"])

	status, body = env.do(t, http.MethodGet, "/session", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ready", body["state"])

	order, ok := body["order"].(map[string]any)
	require.True(t, ok)
	products, ok := order["products"].([]any)
	require.True(t, ok)
	require.Len(t, products, 2)
	assert.Equal(t, float64(1), products[1].(map[string]any)["scannedQty"])

	env.erp.mu.Lock()
	env.erp.postErr = nil
	env.erp.mu.Unlock()

	status, body = env.do(t, http.MethodPost, "/finalize", `{"confirmed":true}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["ok"])

	env.erp.mu.Lock()
	defer env.erp.mu.Unlock()

	require.Len(t, env.erp.posted, 1)
	require.Len(t, env.erp.posted[0].Items, 1)
	assert.Equal(t, json.Number("202"), env.erp.posted[0].Items[0].Product.ID)
	assert.Equal(t, 1, env.erp.posted[0].Items[0].Quantity)

	status, body = env.do(t, http.MethodGet, "/session", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "empty", body["state"])
}

func TestFinalize_NoOrder(t *testing.T) {
	env := newTestEnv(t, nil)

	status, body := env.do(t, http.MethodPost, "/finalize", `{"confirmed":true}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, msgNoOrder, body["error"])
}

func TestSession_Empty(t *testing.T) {
	env := newTestEnv(t, nil)

	status, body := env.do(t, http.MethodGet, "/session", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "empty", body["state"])
	assert.NotContains(t, body, "order")
}

func TestHistory_Disabled(t *testing.T) {
	env := newTestEnv(t, nil)

	status, body := env.do(t, http.MethodGet, "/history", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, msgHistoryDisabled, body["error"])
}

func TestHistory_ListsFinalizedPicks(t *testing.T) {
	store, err := ledger.Open(context.Background(), ":memory:", slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	env := newTestEnv(t, store)

	status, _ := env.do(t, http.MethodGet, "/order/4821", "")
	require.Equal(t, http.StatusOK, status)

	status, _ = env.do(t, http.MethodPost, "/finalize", `{"confirmed":true}`)
	require.Equal(t, http.StatusOK, status)

	status, body := env.do(t, http.MethodGet, "/history?limit=5", "")
	require.Equal(t, http.StatusOK, status)

	picks, ok := body["picks"].([]any)
	require.True(t, ok)
	require.Len(t, picks, 1)

	pick, _ := picks[0].(map[string]any)
	assert.Equal(t, "4821", pick["orderNumber"])
	assert.Equal(t, true, pick["forced"])

	status, _ = env.do(t, http.MethodGet, "/history?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		status bling.TokenStatus
		want   int
	}{
		{"healthy", bling.TokenStatus{Configured: true, Valid: true}, http.StatusOK},
		{"locked out", bling.TokenStatus{Configured: true, LockedOut: true}, http.StatusServiceUnavailable},
		{"not configured", bling.TokenStatus{}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := picking.NewSession(&stubERP{}, picking.Options{}, slog.Default())
			srv := New(Options{Session: session, Tokens: stubTokens{status: tt.status}}, slog.Default())

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			srv.Handler().ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.want == http.StatusOK, body["ok"])
			assert.Equal(t, "empty", body["state"])
		})
	}
}

func TestStream_SnapshotThenEvents(t *testing.T) {
	env := newTestEnv(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(env.http.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	var greeting map[string]any
	require.NoError(t, wsjson.Read(ctx, conn, &greeting))
	assert.Equal(t, "snapshot", greeting["type"])

	status, _ := env.do(t, http.MethodGet, "/order/4821", "")
	require.Equal(t, http.StatusOK, status)

	var loaded picking.Event
	require.NoError(t, wsjson.Read(ctx, conn, &loaded))
	assert.Equal(t, picking.EventLoaded, loaded.Type)
	assert.Equal(t, "4821", loaded.Number)
	require.NotNil(t, loaded.Order)
	assert.Len(t, loaded.Order.Products, 2)

	status, _ = env.do(t, http.MethodPost, "/scan", `{"code":"Q1"}`)
	require.Equal(t, http.StatusOK, status)

	var scanned picking.Event
	require.NoError(t, wsjson.Read(ctx, conn, &scanned))
	assert.Equal(t, picking.EventScanned, scanned.Type)
	require.NotNil(t, scanned.Product)
	assert.Equal(t, "202", scanned.Product.ProductID)
}

func TestStream_ClosedOnHubClose(t *testing.T) {
	env := newTestEnv(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(env.http.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	var greeting map[string]any
	require.NoError(t, wsjson.Read(ctx, conn, &greeting))
	require.Eventually(t, func() bool { return env.hub.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	env.hub.Close()

	_, _, err = conn.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
}

func TestStream_ThroughServe(t *testing.T) {
	hub := NewHub(slog.Default())
	session := picking.NewSession(&stubERP{}, picking.Options{OnEvent: hub.Publish}, slog.Default())
	srv := New(Options{Session: session, Hub: hub}, slog.Default())

	var lc net.ListenConfig

	ln, err := lc.Listen(context.Background(), "tcp", "127.0.0.1:0")
	require.NoError(t, err)

	serveCtx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- srv.Serve(serveCtx, ln, time.Second)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+ln.Addr().String()+"/ws", nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	var greeting map[string]any
	require.NoError(t, wsjson.Read(ctx, conn, &greeting))
	assert.Equal(t, "snapshot", greeting["type"])

	_, err = session.LoadOrder(ctx, "4821")
	require.NoError(t, err)

	var loaded picking.Event
	require.NoError(t, wsjson.Read(ctx, conn, &loaded))
	assert.Equal(t, picking.EventLoaded, loaded.Type)

	stop()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestStream_PostFallsThroughToRouter(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := http.Post(env.http.URL+"/ws", "application/json", strings.NewReader("{}")) //nolint:noctx // test helper
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	session := picking.NewSession(&stubERP{}, picking.Options{}, slog.Default())
	srv := New(Options{Session: session}, slog.Default())

	var lc net.ListenConfig

	ln, err := lc.Listen(context.Background(), "tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- srv.Serve(ctx, ln, time.Second)
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/session") //nolint:noctx // test helper
		if err != nil {
			return false
		}
		resp.Body.Close()

		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestStaticDir_ServesFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>estação</h1>"), 0o600))

	session := picking.NewSession(&stubERP{}, picking.Options{}, slog.Default())
	srv := New(Options{Session: session, StaticDir: dir}, slog.Default())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "estação")
}

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		err    error
		status int
		msg    string
	}{
		{picking.ErrBusy, http.StatusTooManyRequests, msgBusy},
		{fmt.Errorf("wrap: %w", picking.ErrOrderNotFound), http.StatusNotFound, msgOrderNotFound},
		{picking.ErrOrderInvalid, http.StatusBadRequest, msgOrderInvalid},
		{picking.ErrNoOrder, http.StatusBadRequest, msgNoOrder},
		{picking.ErrNotInOrder, http.StatusNotFound, msgNotInOrder},
		{picking.ErrQuantityExceeded, http.StatusConflict, msgQuantityExceeded},
		{bling.ErrNotConfigured, http.StatusBadGateway, msgNotAuthorized},
		{bling.ErrInvalidGrant, http.StatusBadGateway, msgNotAuthorized},
		{errors.New("boom"), http.StatusBadGateway, "fallback"},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			status, msg := errorResponse(tt.err, "fallback")
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.msg, msg)
		})
	}
}
