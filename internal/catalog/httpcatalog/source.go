// Package httpcatalog reads the product catalog from a remote catalog
// service through a circuit-broken HTTP client.
package httpcatalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/repressales/salescart/internal/domain"
	apperrors "github.com/repressales/salescart/pkg/errors"
	"github.com/repressales/salescart/pkg/httpclient"
)

const serviceName = "catalog"

// Doer is the subset of httpclient.CircuitBreakerClient the source needs.
type Doer interface {
	Get(ctx context.Context, url string) (*http.Response, error)
}

// Source implements catalog.Source against the catalog service API:
//
//	GET /api/v1/products/{id}
//	GET /api/v1/products?ids=a,b
//	GET /api/v1/products?offset=0&limit=20
//
// All responses use the {"data": ...} envelope.
type Source struct {
	client  Doer
	baseURL string
}

// NewSource creates a remote catalog source rooted at baseURL.
func NewSource(client Doer, baseURL string) *Source {
	return &Source{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

type envelope[T any] struct {
	Data T `json:"data"`
}

type productPage struct {
	Items      []domain.ProductEntry `json:"items"`
	TotalCount int                   `json:"total_count"`
}

// Get retrieves one product by ID.
func (s *Source) Get(ctx context.Context, productID string) (*domain.ProductEntry, error) {
	var out envelope[domain.ProductEntry]
	if err := s.getJSON(ctx, s.baseURL+"/api/v1/products/"+url.PathEscape(productID), &out); err != nil {
		return nil, fmt.Errorf("get product %s: %w", productID, err)
	}
	if out.Data.ProductID == "" {
		return nil, apperrors.NotFound("product", productID)
	}
	return &out.Data, nil
}

// GetMany retrieves the products among ids that exist.
func (s *Source) GetMany(ctx context.Context, ids []string) (map[string]domain.ProductEntry, error) {
	result := make(map[string]domain.ProductEntry, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	q := url.Values{"ids": {strings.Join(ids, ",")}}
	var out envelope[productPage]
	if err := s.getJSON(ctx, s.baseURL+"/api/v1/products?"+q.Encode(), &out); err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	for _, p := range out.Data.Items {
		result[p.ProductID] = p
	}
	return result, nil
}

// List returns a page of products.
func (s *Source) List(ctx context.Context, offset, limit int) ([]domain.ProductEntry, int, error) {
	q := url.Values{
		"offset": {strconv.Itoa(offset)},
		"limit":  {strconv.Itoa(limit)},
	}
	var out envelope[productPage]
	if err := s.getJSON(ctx, s.baseURL+"/api/v1/products?"+q.Encode(), &out); err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	if out.Data.Items == nil {
		out.Data.Items = []domain.ProductEntry{}
	}
	return out.Data.Items, out.Data.TotalCount, nil
}

// Ping checks the catalog service readiness endpoint.
func (s *Source) Ping(ctx context.Context) error {
	resp, err := s.client.Get(ctx, s.baseURL+"/health/ready")
	if err != nil {
		return apperrors.Unavailable(serviceName, err)
	}
	if resp.StatusCode != http.StatusOK {
		return httpclient.ParseResponseError(resp, serviceName)
	}
	_ = resp.Body.Close()
	return nil
}

func (s *Source) getJSON(ctx context.Context, u string, dst any) error {
	resp, err := s.client.Get(ctx, u)
	if err != nil {
		return apperrors.Unavailable(serviceName, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return httpclient.ParseResponseError(resp, serviceName)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode %s response: %w", serviceName, err)
	}
	return nil
}
