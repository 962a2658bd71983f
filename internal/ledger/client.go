// Package ledger consumes a Horizon-style payments API to compute the
// business-activity counters used by the decision engine.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/Avantemaps-pi/avante-verifier-internal/internal/circuitbreaker"
	verifyerrors "github.com/Avantemaps-pi/avante-verifier-internal/internal/errors"
	"github.com/Avantemaps-pi/avante-verifier-internal/internal/metrics"
	"github.com/Avantemaps-pi/avante-verifier-internal/internal/rpcutil"
)

const (
	pageLimit    = 200
	scanHardCap  = 10000
	paymentType  = "payment"
	pathSend     = "path_payment_strict_send"
	pathReceive  = "path_payment_strict_receive"
	pathGeneric  = "path_payment"
)

// Counters is the business activity scanned from a wallet's payment history.
type Counters struct {
	Total                int
	Credited             int
	UniqueCounterparties int
}

// Client fetches payment history from a Horizon-style ledger API.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *circuitbreaker.Manager
	metrics *metrics.Metrics
}

// New constructs a ledger Client. httpClient should already carry the
// per-page request timeout (30s by default); breaker and m may be nil.
func New(baseURL string, httpClient *http.Client, breaker *circuitbreaker.Manager, m *metrics.Metrics) *Client {
	return &Client{baseURL: baseURL, http: httpClient, breaker: breaker, metrics: m}
}

type payment struct {
	Type        string `json:"type"`
	From        string `json:"from"`
	To          string `json:"to"`
	PagingToken string `json:"paging_token"`
}

type paymentsPage struct {
	Embedded struct {
		Records []payment `json:"records"`
	} `json:"_embedded"`
	Links struct {
		Next struct {
			Href string `json:"href"`
		} `json:"next"`
	} `json:"_links"`
}

// FetchPayments scans the wallet's full payment history (capped at 10,000
// transactions) and returns the aggregated counters. A 404 from the ledger
// means the account has never been funded and returns a zero Counters, not
// an error. Any other non-2xx status or network failure is wrapped as
// ErrCodeLedgerUnavailable; context deadline exceeded is wrapped as
// ErrCodeLedgerTimeout.
func (c *Client) FetchPayments(ctx context.Context, wallet string) (Counters, error) {
	counters := Counters{}
	seen := make(map[string]struct{})

	cursor := ""
	for counters.Total < scanHardCap {
		page, err := c.fetchPage(ctx, wallet, cursor)
		if err != nil {
			return Counters{}, err
		}
		if page == nil {
			// 404: account never funded.
			return Counters{}, nil
		}

		for _, p := range page.Embedded.Records {
			switch p.Type {
			case paymentType, pathSend, pathReceive, pathGeneric:
			default:
				continue
			}

			counters.Total++
			if p.To == wallet {
				counters.Credited++
			}

			counterparty := p.To
			if p.From == wallet {
				counterparty = p.To
			} else {
				counterparty = p.From
			}
			if counterparty != "" && counterparty != wallet {
				seen[counterparty] = struct{}{}
			}
		}

		if len(page.Embedded.Records) < pageLimit {
			break
		}
		if page.Links.Next.Href == "" {
			break
		}
		cursor = page.Embedded.Records[len(page.Embedded.Records)-1].PagingToken
	}

	counters.UniqueCounterparties = len(seen)
	return counters, nil
}

// fetchPage performs a single paginated request, wrapped by the circuit
// breaker. A nil *paymentsPage with a nil error signals HTTP 404.
func (c *Client) fetchPage(ctx context.Context, wallet, cursor string) (*paymentsPage, error) {
	endpoint := fmt.Sprintf("%s/accounts/%s/payments?limit=%d&order=desc", c.baseURL, url.PathEscape(wallet), pageLimit)
	if cursor != "" {
		endpoint += "&cursor=" + url.QueryEscape(cursor)
	}

	start := time.Now()
	result, err := c.execute(ctx, endpoint)
	duration := time.Since(start)

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			c.observeLedger("timeout", duration)
			return nil, verifyerrors.Wrap(verifyerrors.ErrCodeLedgerTimeout, "ledger request timed out", err)
		}
		c.observeLedger("error", duration)
		return nil, verifyerrors.Wrap(verifyerrors.ErrCodeLedgerUnavailable, "ledger request failed", err)
	}

	c.observeLedger("success", duration)
	return result, nil
}

func (c *Client) execute(ctx context.Context, endpoint string) (*paymentsPage, error) {
	return rpcutil.WithRetry(ctx, func() (*paymentsPage, error) {
		return c.doRequest(ctx, endpoint)
	})
}

// doRequest performs a single attempt at the request, guarded by the
// circuit breaker. rpcutil.WithRetry wraps this for transient failures
// (timeouts, 5xx, connection resets); the breaker trips independently of
// any individual attempt's retry count.
func (c *Client) doRequest(ctx context.Context, endpoint string) (*paymentsPage, error) {
	run := func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return (*paymentsPage)(nil), nil
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("ledger returned status %d", resp.StatusCode)
		}

		var page paymentsPage
		if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
			return nil, fmt.Errorf("decode ledger response: %w", err)
		}
		return &page, nil
	}

	if c.breaker == nil {
		v, err := run()
		if err != nil {
			return nil, err
		}
		return v.(*paymentsPage), nil
	}

	v, err := c.breaker.Execute(circuitbreaker.ServiceLedger, run)
	if err != nil {
		return nil, err
	}
	return v.(*paymentsPage), nil
}

func (c *Client) observeLedger(outcome string, d time.Duration) {
	if c.metrics == nil {
		return
	}
	c.metrics.ObserveLedgerCall(outcome, d)
	if outcome != "success" {
		c.metrics.ObserveLedgerError(outcome)
	}
}
