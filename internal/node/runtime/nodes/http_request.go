package nodes

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chatflow/workflow-core/internal/engine"
	"github.com/chatflow/workflow-core/internal/node/runtime"
	"github.com/chatflow/workflow-core/internal/workflow/domain/model"
	"github.com/chatflow/workflow-core/pkg/expression"
)

const defaultHTTPTimeout = 30 * time.Second

// HTTPRequestHandler substitutes {{NAME}} variables into the URL and body,
// performs the configured request, and emits {status, headers, body}. A
// per-URL CircuitBreaker guards against a persistently failing downstream
// host across executions (§5 "Suspension points... handler I/O").
type HTTPRequestHandler struct {
	mu       sync.Mutex
	breakers map[string]*engine.CircuitBreaker
}

func NewHTTPRequestHandler() *HTTPRequestHandler {
	return &HTTPRequestHandler{breakers: make(map[string]*engine.CircuitBreaker)}
}

func (h *HTTPRequestHandler) breakerFor(url string) *engine.CircuitBreaker {
	h.mu.Lock()
	defer h.mu.Unlock()
	cb, ok := h.breakers[url]
	if !ok {
		cb = engine.NewCircuitBreaker(url, nil)
		h.breakers[url] = cb
	}
	return cb
}

func (h *HTTPRequestHandler) Execute(ctx context.Context, rc *model.Context, node model.Node) (model.NodeStatus, map[string]interface{}, error) {
	cfg, ok := node.Config.(model.HTTPRequestConfig)
	if !ok {
		return model.NodeFailed, nil, fmt.Errorf("http_request: node %s has mismatched config type", node.ID)
	}

	vars := rc.FinalVariableValues()
	url := expression.Substitute(cfg.URL, vars)
	body := expression.Substitute(cfg.Body, vars)

	timeout := defaultHTTPTimeout
	if cfg.NodeCommon.TimeoutSeconds != nil {
		timeout = time.Duration(*cfg.NodeCommon.TimeoutSeconds) * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := cfg.Method
	if method == "" {
		method = http.MethodGet
	}

	var status int
	var respHeaders map[string]string
	var respBody string

	cb := h.breakerFor(url)
	err := cb.Execute(reqCtx, func() error {
		req, err := http.NewRequestWithContext(reqCtx, method, url, bytes.NewBufferString(body))
		if err != nil {
			return fmt.Errorf("building request: %w", err)
		}
		for k, v := range cfg.Headers {
			req.Header.Set(k, v)
		}
		applyAuth(req, cfg.Auth)

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return fmt.Errorf("performing request: %w", err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading response body: %w", err)
		}

		status = resp.StatusCode
		respBody = string(raw)
		respHeaders = make(map[string]string, len(resp.Header))
		for k := range resp.Header {
			respHeaders[k] = resp.Header.Get(k)
		}

		if status < 200 || status >= 300 {
			return fmt.Errorf("non-2xx response: %d", status)
		}
		return nil
	})

	output := map[string]interface{}{
		"status":  status,
		"headers": respHeaders,
		"body":    respBody,
	}
	if err != nil {
		return model.NodeFailed, output, err
	}
	return model.NodeSuccess, output, nil
}

func applyAuth(req *http.Request, auth map[string]interface{}) {
	if auth == nil {
		return
	}
	switch strings.ToLower(fmt.Sprintf("%v", auth["type"])) {
	case "bearer":
		if token, ok := auth["token"].(string); ok {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	case "basic":
		username, _ := auth["username"].(string)
		password, _ := auth["password"].(string)
		req.SetBasicAuth(username, password)
	}
}

func init() {
	runtime.Register(model.NodeHTTPRequest, NewHTTPRequestHandler())
}
