package request

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/protocol"
	"github.com/oliveagle/jsonpath"
	"github.com/tidwall/gjson"
)

const maxResponseBytes = 1 << 20

type prepared struct {
	method   string
	url      string
	headers  http.Header
	body     string
	bodyType string
}

// Execute performs the request and applies the variable mappings.
func (n *RequestNode) Execute(ctx context.Context, execCtx *protocol.ExecutionContext, node *models.Node) (protocol.Result, error) {
	data, ok := node.Data.(*models.RequestData)
	if !ok {
		return protocol.Result{}, protocol.NewConfigError(node.ID, "data", fmt.Errorf("%w: expected request data", protocol.ErrInvalidField))
	}

	req, err := prepare(node.ID, data, execCtx)
	if err != nil {
		return protocol.Result{}, err
	}

	err = execCtx.BeforeSideEffect(ctx)
	if err != nil {
		return protocol.Result{}, err
	}

	var body []byte

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = n.initialInterval

	err = backoff.Retry(func() error {
		var callErr error

		body, callErr = n.do(ctx, node.ID, req)
		if callErr == nil {
			return nil
		}

		var external *protocol.ExternalError
		if errors.As(callErr, &external) && external.Retryable() && ctx.Err() == nil {
			execCtx.Logger.WarnContext(ctx, "request failed, retrying",
				"node_id", node.ID, "url", req.url, "error", callErr)

			return callErr
		}

		return backoff.Permanent(callErr)
	}, backoff.WithContext(backoff.WithMaxRetries(policy, n.maxRetries), ctx))
	if err != nil {
		return protocol.Result{}, err
	}

	applyMappings(execCtx, node.ID, data.VariableMappings, body)

	return protocol.Follow(models.HandleDefault), nil
}

func prepare(nodeID string, data *models.RequestData, execCtx *protocol.ExecutionContext) (*prepared, error) {
	method := strings.ToUpper(strings.TrimSpace(data.Method))
	if method == "" {
		method = http.MethodGet
	}

	raw := strings.TrimSpace(execCtx.Interpolate(data.URL))
	if raw == "" {
		return nil, protocol.NewConfigError(nodeID, "url", protocol.ErrMissingField)
	}

	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, protocol.NewConfigError(nodeID, "url", fmt.Errorf("%w: malformed url %q", protocol.ErrInvalidField, raw))
	}

	if len(data.Params) > 0 {
		query := parsed.Query()
		for _, p := range data.Params {
			if p.Key == "" {
				continue
			}

			query.Add(p.Key, execCtx.Interpolate(p.Value))
		}

		parsed.RawQuery = query.Encode()
	}

	headers := make(http.Header, len(data.Headers))
	for _, h := range data.Headers {
		if h.Key == "" {
			continue
		}

		headers.Set(h.Key, execCtx.Interpolate(h.Value))
	}

	body := execCtx.Interpolate(data.Body)
	bodyType := strings.ToLower(data.BodyType)

	if bodyType == "" && strings.TrimSpace(body) != "" {
		bodyType = "json"
	}

	switch bodyType {
	case "json":
		if !json.Valid([]byte(body)) {
			return nil, protocol.NewConfigError(nodeID, "body", fmt.Errorf("%w: body is not valid JSON", protocol.ErrInvalidField))
		}

		setDefault(headers, "Content-Type", "application/json")
	case "form":
		setDefault(headers, "Content-Type", "application/x-www-form-urlencoded")
	case "text":
		setDefault(headers, "Content-Type", "text/plain")
	case "none", "":
		body = ""
	default:
		return nil, protocol.NewConfigError(nodeID, "bodyType", fmt.Errorf("%w: %q", protocol.ErrInvalidField, data.BodyType))
	}

	return &prepared{method: method, url: parsed.String(), headers: headers, body: body, bodyType: bodyType}, nil
}

func setDefault(h http.Header, key, value string) {
	if h.Get(key) == "" {
		h.Set(key, value)
	}
}

func (n *RequestNode) do(ctx context.Context, nodeID string, p *prepared) ([]byte, error) {
	var reader io.Reader
	if p.body != "" {
		reader = strings.NewReader(p.body)
	}

	req, err := http.NewRequestWithContext(ctx, p.method, p.url, reader)
	if err != nil {
		return nil, protocol.NewConfigError(nodeID, "method", err)
	}

	req.Header = p.headers.Clone()

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, &protocol.ExternalError{NodeID: nodeID, Service: "http", Err: err}
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &protocol.ExternalError{NodeID: nodeID, Service: "http", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &protocol.ExternalError{
			NodeID:     nodeID,
			Service:    "http",
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status: %s", truncate(string(body), 200)),
		}
	}

	return body, nil
}

// applyMappings copies response values into variables. A path that does not
// resolve assigns the empty string.
func applyMappings(execCtx *protocol.ExecutionContext, nodeID string, mappings []models.VariableMapping, body []byte) {
	if len(mappings) == 0 {
		return
	}

	var document any

	decodeErr := json.Unmarshal(body, &document)

	for _, m := range mappings {
		if m.Variable == "" {
			continue
		}

		value, found := lookup(document, decodeErr == nil, body, m.JSONPath)
		if !found {
			execCtx.Logger.Debug("response path not found",
				"node_id", nodeID, "path", m.JSONPath, "variable", m.Variable)
		}

		execCtx.SetVariable(m.Variable, value)
	}
}

func lookup(document any, decoded bool, body []byte, path string) (string, bool) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", false
	}

	if strings.HasPrefix(path, "$") {
		if !decoded {
			return "", false
		}

		value, err := jsonpath.JsonPathLookup(document, path)
		if err != nil || value == nil {
			return "", false
		}

		return stringify(value), true
	}

	result := gjson.GetBytes(body, path)
	if !result.Exists() {
		return "", false
	}

	if result.Type == gjson.String {
		return result.Str, true
	}

	return result.Raw, true
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		raw, _ := json.Marshal(v)

		return string(raw)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}

		return string(raw)
	}
}

// truncate cuts s to at most limit bytes without splitting a rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}

	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}

	return s[:cut] + "..."
}
