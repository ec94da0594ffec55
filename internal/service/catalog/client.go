package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

const defaultHTTPTimeout = 5 * time.Second

// productDTO: карточка товара в ответе каталога.
type productDTO struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	ImageURL      string          `json:"imageUrl"`
	Price         decimal.Decimal `json:"price"`
	Currency      string          `json:"currency"`
	StockQuantity int             `json:"stockQuantity"`
	IsAvailable   bool            `json:"isAvailable"`
}

func (p productDTO) product() domain.Product {
	currency := strings.ToUpper(strings.TrimSpace(p.Currency))
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	return domain.Product{
		ID:       p.ID,
		Name:     p.Name,
		ImageURL: p.ImageURL,
		Price:    p.Price,
		Currency: currency,
		Stock:    p.StockQuantity,
	}
}

// Client — HTTP-клиент каталога. Таймауты, ретраи и breaker остаются
// на стороне вызывающего.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *log.Entry
}

// NewClient создаёт клиент; httpClient == nil означает клиент с таймаутом 5s.
func NewClient(baseURL string, httpClient *http.Client, logger *log.Entry) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("catalog base url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("parse catalog base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if logger == nil {
		logger = log.WithField("component", "catalog-client")
	}
	return &Client{baseURL: baseURL, httpClient: httpClient, logger: logger}, nil
}

// GetProduct возвращает товар; 404 даёт (nil, nil).
func (c *Client) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	var dto productDTO
	found, err := c.getJSON(ctx, "/api/products/"+url.PathEscape(productID), &dto)
	if err != nil || !found {
		return nil, err
	}
	product := dto.product()
	return &product, nil
}

// GetProducts возвращает найденные товары; неизвестные id пропускаются.
func (c *Client) GetProducts(ctx context.Context, productIDs []string) ([]domain.Product, error) {
	if len(productIDs) == 0 {
		return []domain.Product{}, nil
	}

	query := url.Values{}
	query.Set("ids", strings.Join(productIDs, ","))

	var dtos []productDTO
	found, err := c.getJSON(ctx, "/api/products?"+query.Encode(), &dtos)
	if err != nil {
		return nil, err
	}
	products := make([]domain.Product, 0, len(dtos))
	if !found {
		return products, nil
	}
	for _, dto := range dtos {
		products = append(products, dto.product())
	}
	return products, nil
}

// CheckStock возвращает true на 2xx, false на 404/409. Остальные ответы
// считаются неизвестным результатом и возвращаются ошибкой.
func (c *Client) CheckStock(ctx context.Context, productID string, quantity int) (bool, error) {
	endpoint := fmt.Sprintf("%s/api/products/%s/stock?quantity=%s",
		c.baseURL, url.PathEscape(productID), strconv.Itoa(quantity))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("build stock request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("check stock for %s: %v: %w", productID, err, domain.ErrTransient)
	}
	defer drain(resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return true, nil
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusConflict:
		return false, nil
	default:
		return false, fmt.Errorf("check stock for %s: status %d: %w", productID, resp.StatusCode, domain.ErrTransient)
	}
}

func (c *Client) getJSON(ctx context.Context, path string, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return false, fmt.Errorf("build catalog request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("catalog request %s: %v: %w", path, err, domain.ErrTransient)
	}
	defer drain(resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.WithFields(log.Fields{
			"path":   path,
			"status": resp.StatusCode,
		}).Warn("catalog returned unexpected status")
		return false, fmt.Errorf("catalog request %s: status %d: %w", path, resp.StatusCode, domain.ErrTransient)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("decode catalog response: %w", err)
	}
	return true, nil
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	_ = body.Close()
}

var _ domain.CatalogService = (*Client)(nil)
