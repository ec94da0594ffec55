package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL+"/", nil, nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	t.Parallel()

	if _, err := NewClient("  ", nil, nil); err == nil {
		t.Fatal("expected error for blank base url")
	}
	if _, err := NewClient("not a url", nil, nil); err == nil {
		t.Fatal("expected error for invalid base url")
	}
}

func TestClient_GetProduct(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/products/p-1":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"p-1","name":"Kettle","imageUrl":"https://img/kettle.png","price":10.5,"stockQuantity":3,"isAvailable":true}`))
		case "/api/products/broken":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	product, err := client.GetProduct(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if product == nil || product.Name != "Kettle" || product.ImageURL != "https://img/kettle.png" {
		t.Fatalf("unexpected product: %+v", product)
	}
	if product.Price.StringFixed(2) != "10.50" || product.Currency != domain.DefaultCurrency || product.Stock != 3 {
		t.Fatalf("unexpected price/stock: %+v", product)
	}

	missing, err := client.GetProduct(context.Background(), "p-404")
	if err != nil || missing != nil {
		t.Fatalf("expected (nil, nil) for 404, got %+v, %v", missing, err)
	}

	if _, err := client.GetProduct(context.Background(), "broken"); !errors.Is(err, domain.ErrTransient) {
		t.Fatalf("expected transient error for 502, got %v", err)
	}
}

func TestClient_GetProducts(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("ids") != "p-1,p-2" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`[{"id":"p-1","name":"Kettle","price":"10"},{"id":"p-2","name":"Mug","price":"5","currency":"usd"}]`))
	})

	products, err := client.GetProducts(context.Background(), []string{"p-1", "p-2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(products) != 2 || products[1].Currency != "USD" {
		t.Fatalf("unexpected products: %+v", products)
	}

	empty, err := client.GetProducts(context.Background(), nil)
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty result without request, got %+v, %v", empty, err)
	}
}

func TestClient_CheckStock(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("quantity") != "2" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		switch r.URL.Path {
		case "/api/products/in/stock":
			w.WriteHeader(http.StatusOK)
		case "/api/products/out/stock":
			w.WriteHeader(http.StatusConflict)
		case "/api/products/gone/stock":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})

	tests := []struct {
		productID string
		want      bool
		wantErr   bool
	}{
		{productID: "in", want: true},
		{productID: "out", want: false},
		{productID: "gone", want: false},
		{productID: "flaky", wantErr: true},
	}

	for _, tt := range tests {
		got, err := client.CheckStock(context.Background(), tt.productID, 2)
		if tt.wantErr {
			if !errors.Is(err, domain.ErrTransient) {
				t.Fatalf("%s: expected transient error, got %v", tt.productID, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("%s: expected %v, got %v (%v)", tt.productID, tt.want, got, err)
		}
	}
}

func TestClient_CancelledContext(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.CheckStock(ctx, "p-1", 1); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestMockService(t *testing.T) {
	t.Parallel()

	mock := NewMockService(domain.Product{ID: "p-1", Name: "Kettle"})
	mock.OutOfStock["p-2"] = true

	if p, _ := mock.GetProduct(context.Background(), "p-1"); p == nil || p.Name != "Kettle" {
		t.Fatalf("unexpected product: %+v", p)
	}
	if p, err := mock.GetProduct(context.Background(), "p-9"); p != nil || err != nil {
		t.Fatalf("expected miss, got %+v, %v", p, err)
	}
	if ok, _ := mock.CheckStock(context.Background(), "p-2", 1); ok {
		t.Fatal("expected p-2 to be out of stock")
	}
	products, _ := mock.GetProducts(context.Background(), []string{"p-9", "p-1"})
	if len(products) != 1 {
		t.Fatalf("expected one known product, got %+v", products)
	}

	mock.Err = errors.New("down")
	if _, err := mock.CheckStock(context.Background(), "p-1", 1); err == nil {
		t.Fatal("expected configured error")
	}
	if mock.CheckStockCalls != 2 || mock.GetProductCalls != 2 || mock.GetProductsCalls != 1 {
		t.Fatalf("unexpected counters: %+v", mock)
	}
}
