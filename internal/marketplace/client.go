package marketplace

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"dropsync-api/internal/domain"
)

// Trading API call names.
const (
	callGetSellerList         = "GetSellerList"
	callReviseInventoryStatus = "ReviseInventoryStatus"
)

const (
	compatibilityLevel = "967"
	entriesPerPage     = 200
	// Listings started in the last 119 days; the marketplace caps the
	// GetSellerList window at 120.
	listingWindowDays = 119
)

// Config holds marketplace endpoint settings shared by all accounts.
type Config struct {
	APIURL      string
	SiteID      string
	CallTimeout time.Duration
	// PageCap bounds listing pagination against runaway responses.
	PageCap int
}

// Client talks the seller Trading API for one account. The rate limiter is
// shared across all accounts: the marketplace enforces its limit globally,
// not per credential bundle.
type Client struct {
	cfg        Config
	creds      domain.Credentials
	limiter    *rate.Limiter
	httpClient *http.Client
}

// NewClient creates a client bound to one account's credential bundle.
func NewClient(cfg Config, creds domain.Credentials, limiter *rate.Limiter) *Client {
	if cfg.PageCap <= 0 {
		cfg.PageCap = 500
	}
	return &Client{
		cfg:     cfg,
		creds:   creds,
		limiter: limiter,
		httpClient: &http.Client{
			Timeout: cfg.CallTimeout,
		},
	}
}

type requesterCredentials struct {
	EBayAuthToken string `xml:"eBayAuthToken"`
}

type pagination struct {
	EntriesPerPage int `xml:"EntriesPerPage"`
	PageNumber     int `xml:"PageNumber"`
}

type getSellerListRequest struct {
	XMLName              xml.Name             `xml:"urn:ebay:apis:eBLBaseComponents GetSellerListRequest"`
	RequesterCredentials requesterCredentials `xml:"RequesterCredentials"`
	ErrorLanguage        string               `xml:"ErrorLanguage"`
	WarningLevel         string               `xml:"WarningLevel"`
	StartTimeFrom        string               `xml:"StartTimeFrom"`
	StartTimeTo          string               `xml:"StartTimeTo"`
	Pagination           pagination           `xml:"Pagination"`
	GranularityLevel     string               `xml:"GranularityLevel"`
}

type apiError struct {
	ErrorCode    string `xml:"ErrorCode"`
	ShortMessage string `xml:"ShortMessage"`
	LongMessage  string `xml:"LongMessage"`
}

func (e apiError) message() string {
	if e.LongMessage != "" {
		return e.LongMessage
	}
	return e.ShortMessage
}

type sellingStatus struct {
	ListingStatus string `xml:"ListingStatus"`
	QuantitySold  int    `xml:"QuantitySold"`
}

type sellerItem struct {
	ItemID        string        `xml:"ItemID"`
	SKU           string        `xml:"SKU"`
	Quantity      int           `xml:"Quantity"`
	SellingStatus sellingStatus `xml:"SellingStatus"`
}

type getSellerListResponse struct {
	Ack              string       `xml:"Ack"`
	Errors           []apiError   `xml:"Errors"`
	HasMoreItems     bool         `xml:"HasMoreItems"`
	Items            []sellerItem `xml:"ItemArray>Item"`
	PaginationResult struct {
		TotalNumberOfPages int `xml:"TotalNumberOfPages"`
	} `xml:"PaginationResult"`
}

type inventoryStatus struct {
	ItemID   string `xml:"ItemID"`
	Quantity int    `xml:"Quantity"`
}

type reviseInventoryStatusRequest struct {
	XMLName              xml.Name             `xml:"urn:ebay:apis:eBLBaseComponents ReviseInventoryStatusRequest"`
	RequesterCredentials requesterCredentials `xml:"RequesterCredentials"`
	ErrorLanguage        string               `xml:"ErrorLanguage"`
	WarningLevel         string               `xml:"WarningLevel"`
	InventoryStatuses    []inventoryStatus    `xml:"InventoryStatus"`
}

type reviseInventoryStatusResponse struct {
	Ack      string            `xml:"Ack"`
	Errors   []apiError        `xml:"Errors"`
	Statuses []inventoryStatus `xml:"InventoryStatus"`
}

// FetchListings retrieves every active listing for the account, paging
// through GetSellerList up to the configured page cap.
func (c *Client) FetchListings(ctx context.Context) ([]domain.Listing, error) {
	now := time.Now().UTC()
	from := now.AddDate(0, 0, -listingWindowDays).Format("2006-01-02T15:04:05.000Z")
	to := now.Format("2006-01-02T15:04:05.000Z")

	var listings []domain.Listing
	page := 1

	for {
		resp, err := c.fetchListingPage(ctx, page, from, to)
		if err != nil {
			return nil, err
		}

		for _, item := range resp.Items {
			if item.SellingStatus.ListingStatus != "Active" {
				continue
			}
			if item.ItemID == "" || item.SKU == "" {
				continue
			}
			available := item.Quantity - item.SellingStatus.QuantitySold
			if available < 0 {
				available = 0
			}
			listings = append(listings, domain.Listing{
				ItemID:   item.ItemID,
				SKU:      item.SKU,
				Quantity: available,
			})
		}

		totalPages := resp.PaginationResult.TotalNumberOfPages
		if totalPages < 1 {
			totalPages = 1
		}
		if page >= totalPages && !resp.HasMoreItems {
			break
		}
		page++
		if page > c.cfg.PageCap {
			break
		}
	}

	return listings, nil
}

func (c *Client) fetchListingPage(ctx context.Context, page int, from, to string) (*getSellerListResponse, error) {
	req := getSellerListRequest{
		RequesterCredentials: requesterCredentials{EBayAuthToken: c.creds.UserToken},
		ErrorLanguage:        "en_US",
		WarningLevel:         "High",
		StartTimeFrom:        from,
		StartTimeTo:          to,
		Pagination:           pagination{EntriesPerPage: entriesPerPage, PageNumber: page},
		GranularityLevel:     "Fine",
	}

	var resp getSellerListResponse
	if err := c.call(ctx, callGetSellerList, req, &resp); err != nil {
		return nil, err
	}
	if err := checkAck(resp.Ack, resp.Errors); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ReviseQuantities pushes one batch of quantity updates and returns the set
// of item IDs the marketplace acknowledged. Each item update is atomic at
// the API boundary; a partially-acked batch means the remainder failed.
func (c *Client) ReviseQuantities(ctx context.Context, batch []domain.QuantityUpdate) (map[string]bool, error) {
	statuses := make([]inventoryStatus, len(batch))
	for i, u := range batch {
		statuses[i] = inventoryStatus{ItemID: u.ItemID, Quantity: u.NewQty}
	}

	req := reviseInventoryStatusRequest{
		RequesterCredentials: requesterCredentials{EBayAuthToken: c.creds.UserToken},
		ErrorLanguage:        "en_US",
		WarningLevel:         "High",
		InventoryStatuses:    statuses,
	}

	var resp reviseInventoryStatusResponse
	if err := c.call(ctx, callReviseInventoryStatus, req, &resp); err != nil {
		return nil, err
	}
	if err := checkAck(resp.Ack, resp.Errors); err != nil {
		return nil, err
	}

	acked := make(map[string]bool, len(resp.Statuses))
	for _, s := range resp.Statuses {
		acked[s.ItemID] = true
	}
	return acked, nil
}

// call performs one rate-limited Trading API request/response round trip.
func (c *Client) call(ctx context.Context, callName string, reqBody, respBody interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &domain.TransientAPIError{Err: err}
		}
	}

	payload, err := xml.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", callName, err)
	}
	payload = append([]byte(xml.Header), payload...)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", callName, err)
	}
	c.setHeaders(httpReq, callName)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Network failures and client timeouts are retryable.
		return &domain.TransientAPIError{Err: err}
	}
	defer httpResp.Body.Close()

	switch {
	case httpResp.StatusCode == http.StatusTooManyRequests:
		return &domain.TransientAPIError{StatusCode: httpResp.StatusCode, RateLimited: true}
	case httpResp.StatusCode >= 500:
		return &domain.TransientAPIError{StatusCode: httpResp.StatusCode, Err: fmt.Errorf("server error")}
	case httpResp.StatusCode >= 400:
		return &domain.PermanentAPIError{
			StatusCode: httpResp.StatusCode,
			Code:       fmt.Sprintf("HTTP_%d", httpResp.StatusCode),
			Message:    fmt.Sprintf("%s rejected with status %d", callName, httpResp.StatusCode),
		}
	}

	if err := xml.NewDecoder(httpResp.Body).Decode(respBody); err != nil {
		return &domain.TransientAPIError{Err: fmt.Errorf("decode %s response: %w", callName, err)}
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request, callName string) {
	req.Header.Set("X-EBAY-API-SITEID", c.cfg.SiteID)
	req.Header.Set("X-EBAY-API-COMPATIBILITY-LEVEL", compatibilityLevel)
	req.Header.Set("X-EBAY-API-CALL-NAME", callName)
	req.Header.Set("X-EBAY-API-APP-NAME", c.creds.AppID)
	req.Header.Set("X-EBAY-API-DEV-NAME", c.creds.DevID)
	req.Header.Set("X-EBAY-API-CERT-NAME", c.creds.CertID)
	req.Header.Set("Content-Type", "text/xml")
}

// Error code 518 is the documented call-quota error.
const rateLimitErrorCode = "518"

// checkAck maps an application-level Ack failure to the error taxonomy.
// Warning acks still carry usable payloads.
func checkAck(ack string, errs []apiError) error {
	if ack == "Success" || ack == "Warning" {
		return nil
	}

	for _, e := range errs {
		if e.ErrorCode == rateLimitErrorCode {
			return &domain.TransientAPIError{RateLimited: true}
		}
	}

	if len(errs) > 0 {
		return &domain.PermanentAPIError{
			Code:    errs[0].ErrorCode,
			Message: errs[0].message(),
		}
	}
	return &domain.PermanentAPIError{Code: "UNKNOWN", Message: fmt.Sprintf("ack %q with no error detail", ack)}
}
