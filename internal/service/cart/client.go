package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

const defaultHTTPTimeout = 5 * time.Second

type cartDTO struct {
	UserID      string          `json:"userId"`
	Items       []cartItemDTO   `json:"items"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Currency    string          `json:"currency"`
}

type cartItemDTO struct {
	ProductID       string          `json:"productId"`
	ProductName     string          `json:"productName"`
	ProductImageURL string          `json:"productImageUrl"`
	Quantity        int             `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unitPrice"`
}

// Client — HTTP-клиент сервиса корзины.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *log.Entry
}

// NewClient создаёт клиент корзины.
func NewClient(baseURL string, httpClient *http.Client, logger *log.Entry) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("cart base url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("parse cart base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if logger == nil {
		logger = log.WithField("component", "cart-client")
	}
	return &Client{baseURL: baseURL, httpClient: httpClient, logger: logger}, nil
}

// GetCart возвращает корзину пользователя; 404 даёт (nil, nil).
func (c *Client) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	resp, err := c.do(ctx, http.MethodGet, userID)
	if err != nil {
		return nil, err
	}
	defer drain(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, fmt.Errorf("get cart for %s: status %d: %w", userID, resp.StatusCode, domain.ErrTransient)
	}

	var dto cartDTO
	if err := json.NewDecoder(resp.Body).Decode(&dto); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}

	cart := &domain.Cart{
		UserID:   dto.UserID,
		Currency: strings.ToUpper(strings.TrimSpace(dto.Currency)),
		Items:    make([]domain.CartItem, 0, len(dto.Items)),
	}
	if cart.Currency == "" {
		cart.Currency = domain.DefaultCurrency
	}
	for _, it := range dto.Items {
		cart.Items = append(cart.Items, domain.CartItem{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			ImageURL:    it.ProductImageURL,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
		})
	}
	return cart, nil
}

// ClearCart очищает корзину. Отсутствующая корзина не ошибка.
func (c *Client) ClearCart(ctx context.Context, userID string) error {
	resp, err := c.do(ctx, http.MethodDelete, userID)
	if err != nil {
		return err
	}
	defer drain(resp.Body)

	if resp.StatusCode == http.StatusNotFound || (resp.StatusCode >= 200 && resp.StatusCode < 300) {
		return nil
	}
	c.logger.WithFields(log.Fields{
		"user_id": userID,
		"status":  resp.StatusCode,
	}).Warn("cart service refused to clear cart")
	return fmt.Errorf("clear cart for %s: status %d: %w", userID, resp.StatusCode, domain.ErrTransient)
}

func (c *Client) do(ctx context.Context, method, userID string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/api/cart/"+url.PathEscape(userID), nil)
	if err != nil {
		return nil, fmt.Errorf("build cart request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cart %s request: %v: %w", method, err, domain.ErrTransient)
	}
	return resp, nil
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	_ = body.Close()
}

var _ domain.CartService = (*Client)(nil)
