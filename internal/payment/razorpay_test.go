package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func TestRazorpayClient_CreateOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("HTTPメソッド = %s, want POST", r.Method)
		}
		if r.URL.Path != "/orders" {
			t.Errorf("パス = %s, want /orders", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "rzp_test_key" || pass != "rzp_secret" {
			t.Errorf("Basic認証 = (%s, %s, %v)", user, pass, ok)
		}

		var req createOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("リクエストのデコードに失敗: %v", err)
		}
		if req.Amount != 199900 || req.Currency != "INR" || req.Receipt != "receipt_1" {
			t.Errorf("リクエスト = %+v", req)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":       "order_ABC",
			"entity":   "order",
			"amount":   req.Amount,
			"currency": req.Currency,
			"receipt":  req.Receipt,
			"status":   "created",
		})
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewRazorpayClient(server.Client(), newTestLogger(&buf), "rzp_test_key", "rzp_secret")
	c.endpoint = server.URL

	order, err := c.CreateOrder(context.Background(), 199900, "INR", "receipt_1")
	if err != nil {
		t.Fatalf("CreateOrder がエラーを返した: %v", err)
	}
	if order.ID != "order_ABC" || order.Amount != 199900 || order.Status != "created" {
		t.Errorf("order = %+v", order)
	}
	if c.KeyID() != "rzp_test_key" {
		t.Errorf("KeyID = %s", c.KeyID())
	}
}

func TestRazorpayClient_CreateOrder_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"Authentication failed"}}`))
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewRazorpayClient(server.Client(), newTestLogger(&buf), "k", "s")
	c.endpoint = server.URL

	_, err := c.CreateOrder(context.Background(), 100, "INR", "r")
	if err == nil {
		t.Fatal("エラーステータスでエラーが返されるべき")
	}
	if !strings.Contains(err.Error(), "Authentication failed") {
		t.Errorf("エラーメッセージ = %v", err)
	}
	if !strings.Contains(buf.String(), "BAD_REQUEST_ERROR") {
		t.Errorf("ログにエラーコードが含まれるべき: %s", buf.String())
	}
}

func TestRazorpayClient_CreateOrder_NotConfigured(t *testing.T) {
	var buf bytes.Buffer
	c := NewRazorpayClient(http.DefaultClient, newTestLogger(&buf), "", "")

	if _, err := c.CreateOrder(context.Background(), 100, "INR", "r"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("error = %v, want ErrNotConfigured", err)
	}
}

func TestRazorpayClient_CreateOrder_MissingID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"amount":100}`))
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewRazorpayClient(server.Client(), newTestLogger(&buf), "k", "s")
	c.endpoint = server.URL

	if _, err := c.CreateOrder(context.Background(), 100, "INR", "r"); err == nil {
		t.Fatal("idのないレスポンスでエラーが返されるべき")
	}
}
