package binding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/castingclouds/circuit-breaker-sub001/common/clients"
	"github.com/castingclouds/circuit-breaker-sub001/pkg/workflow"
)

// HTTPFunctionBinding invokes a function binding as a plain HTTP call:
// Invocation.Input must carry "url" and, optionally, "method" and
// "payload" fields, matching the projection a BindingRef.InputMapping
// produces. Every target URL is checked by guard before the request
// goes out.
type HTTPFunctionBinding struct {
	http  *clients.HTTPClient
	guard *URLGuard
}

// NewHTTPFunctionBinding creates an HTTP-backed FunctionBinding with a
// default client timeout; WithRetry/WithTimeout in retry.go apply the
// binding's own declared policy on top of this floor. The underlying
// client stamps every outbound request with an X-Triggered-By header
// when Fire's triggeredBy is present on ctx, so a webhook receiver can
// attribute the call to the actor that fired the transition.
func NewHTTPFunctionBinding(logger clients.Logger) *HTTPFunctionBinding {
	return &HTTPFunctionBinding{
		http:  clients.NewHTTPClient(&http.Client{Timeout: 30 * time.Second}, logger),
		guard: NewURLGuard(),
	}
}

// InvokeFunction executes one HTTP call and returns the response body
// (parsed as JSON when possible) as Outcome.Output.
func (b *HTTPFunctionBinding) InvokeFunction(ctx context.Context, inv Invocation) (Outcome, error) {
	start := time.Now()

	target, _ := inv.Input["url"].(string)
	if target == "" {
		return Outcome{}, workflow.New(workflow.KindFunctionFailure, "function binding input missing url", nil)
	}
	if err := b.guard.Validate(target); err != nil {
		return Outcome{}, workflow.New(workflow.KindFunctionFailure, "function binding target rejected by url guard", err)
	}

	method, _ := inv.Input["method"].(string)
	if method == "" {
		method = http.MethodPost
	}

	var body []byte
	if payload, ok := inv.Input["payload"]; ok {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Outcome{}, workflow.New(workflow.KindFunctionFailure, "failed to marshal function payload", err)
		}
		body = raw
	}

	resp, err := b.http.DoRequest(ctx, method, target, bytes.NewReader(body), map[string]string{
		"Content-Type": "application/json",
		"User-Agent":   "circuit-breaker-sub001/1.0",
	})
	if err != nil {
		return Outcome{}, workflow.New(workflow.KindFunctionFailure, "function call failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Outcome{}, workflow.New(workflow.KindFunctionFailure, "failed to read function response", err)
	}

	var parsed interface{}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		parsed = string(respBody)
	}

	if resp.StatusCode >= 400 {
		return Outcome{}, workflow.New(workflow.KindFunctionFailure,
			fmt.Sprintf("function call returned status %d", resp.StatusCode), nil)
	}

	return Outcome{
		Output: map[string]interface{}{
			"status_code": resp.StatusCode,
			"body":        parsed,
		},
		Duration: time.Since(start),
	}, nil
}
