package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/deepdev237/LivePrint/internal/infrastructure/tracing"
	"github.com/deepdev237/LivePrint/internal/shared/id"
)

// apiError is the failure body every admin route writes.
type apiError struct {
	Success bool   `json:"success"`
	Message string `json:"error"`
}

// apiClient talks to the hub's admin API.
type apiClient struct {
	resty *resty.Client
}

// clientOptions configures newAPIClient.
type clientOptions struct {
	BaseURL string
	Timeout time.Duration
	Retries int
}

// newAPIClient builds a resty client over a retrying transport. GET requests
// are retried on 5xx and connection errors; everything else only on 429.
func newAPIClient(opts clientOptions) *apiClient {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.Retries
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.Logger = nil
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.CheckRetry = checkRetry

	r := resty.NewWithClient(retryClient.StandardClient()).
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetHeader("User-Agent", "livebpctl/"+version).
		SetHeader("Accept", "application/json").
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal).
		SetError(&apiError{})

	r.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		ctx := req.Context()
		if tracing.GetTraceID(ctx) == "" {
			ctx = tracing.WithTrace(ctx, tracing.TraceID(id.NewRequestID()))
		}
		headers := make(map[string]string, 2)
		tracing.InjectTraceContext(ctx, headers)
		req.SetHeaders(headers)
		return nil
	})

	return &apiClient{resty: r}
}

func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if resp != nil && resp.Request != nil && resp.Request.Method != http.MethodGet &&
		resp.StatusCode != http.StatusTooManyRequests {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// request starts a request bound to ctx.
func (c *apiClient) request(ctx context.Context) *resty.Request {
	return c.resty.R().SetContext(ctx)
}

// get decodes the JSON body of GET path into out.
func (c *apiClient) get(ctx context.Context, path string, query map[string]string, out any) error {
	resp, err := c.request(ctx).SetQueryParams(query).SetResult(out).Get(path)
	return check(resp, err)
}

// send issues method on path with an optional JSON body and decodes the reply.
func (c *apiClient) send(ctx context.Context, method, path string, query map[string]string, body, out any) error {
	req := c.request(ctx).SetQueryParams(query).SetResult(out)
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Execute(method, path)
	return check(resp, err)
}

// check turns transport errors and non-2xx replies into errors.
func check(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if !resp.IsError() {
		return nil
	}
	if e, ok := resp.Error().(*apiError); ok && e.Message != "" {
		return fmt.Errorf("%s: %s", resp.Status(), e.Message)
	}
	return fmt.Errorf("%s", resp.Status())
}
