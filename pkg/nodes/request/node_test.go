package request

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/protocol"
	"github.com/dukex/chatflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNode(data *models.RequestData) *models.Node {
	return testutil.CreateTestNode("req", models.NodeTypeRequest, data)
}

func newContext() *protocol.ExecutionContext {
	execCtx, _ := testutil.NewExecutionContext(testutil.CreateTestFlow(nil, nil), protocol.Services{})

	return execCtx
}

func TestRequestNode_Execute_InterpolatesAndMaps(t *testing.T) {
	var gotPath, gotQuery, gotAuth, gotBody, gotContentType string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("email")
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"id":42,"name":"Ana Souza","tags":["vip"]},"ok":true}`))
	}))
	defer server.Close()

	execCtx := newContext()
	execCtx.Session.Variables["order"] = "A-1"
	execCtx.Session.Variables["token"] = "secret"

	node := newNode(&models.RequestData{
		Method:  "post",
		URL:     server.URL + "/orders/{{order}}",
		Headers: []models.KeyValue{{Key: "Authorization", Value: "Bearer {{token}}"}},
		Params:  []models.KeyValue{{Key: "email", Value: "{{customer.name}}"}},
		Body:    `{"order":"{{order}}"}`,
		VariableMappings: []models.VariableMapping{
			{Variable: "remote_id", JSONPath: "$.data.id"},
			{Variable: "remote_name", JSONPath: "data.name"},
			{Variable: "tags", JSONPath: "data.tags"},
			{Variable: "missing", JSONPath: "$.data.nope"},
		},
	})

	result, err := NewRequestNode().Execute(context.Background(), execCtx, node)
	require.NoError(t, err)
	assert.Equal(t, models.HandleDefault, result.Handle)

	assert.Equal(t, "/orders/A-1", gotPath)
	assert.Equal(t, "Ana", gotQuery)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "application/json", gotContentType)
	assert.JSONEq(t, `{"order":"A-1"}`, gotBody)

	assert.Equal(t, "42", execCtx.Session.Variables["remote_id"])
	assert.Equal(t, "Ana Souza", execCtx.Session.Variables["remote_name"])
	assert.Equal(t, `["vip"]`, execCtx.Session.Variables["tags"])
	assert.Equal(t, "", execCtx.Session.Variables["missing"])
}

func TestRequestNode_Execute_DefaultsToGet(t *testing.T) {
	var method string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	_, err := NewRequestNode().Execute(context.Background(), newContext(), newNode(&models.RequestData{URL: server.URL}))
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, method)
}

func TestRequestNode_Execute_InvalidConfig(t *testing.T) {
	testCases := []struct {
		name string
		data *models.RequestData
	}{
		{"empty url", &models.RequestData{}},
		{"relative url", &models.RequestData{URL: "/orders"}},
		{"unsupported scheme", &models.RequestData{URL: "ftp://example.com"}},
		{"invalid json body", &models.RequestData{URL: "http://example.com", Body: "{nope", BodyType: "json"}},
		{"implicit json body", &models.RequestData{URL: "http://example.com", Body: "plain"}},
		{"unknown body type", &models.RequestData{URL: "http://example.com", Body: "x", BodyType: "xml"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewRequestNode().Execute(context.Background(), newContext(), newNode(tc.data))
			require.Error(t, err)
			assert.True(t, protocol.IsConfigError(err))
		})
	}
}

func TestRequestNode_Execute_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := NewRequestNode(WithRetries(3, time.Millisecond)).
		Execute(context.Background(), newContext(), newNode(&models.RequestData{URL: server.URL}))
	require.Error(t, err)

	var external *protocol.ExternalError
	require.ErrorAs(t, err, &external)
	assert.Equal(t, http.StatusNotFound, external.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRequestNode_Execute_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)

			return
		}

		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	execCtx := newContext()
	node := newNode(&models.RequestData{
		URL:              server.URL,
		VariableMappings: []models.VariableMapping{{Variable: "status", JSONPath: "status"}},
	})

	_, err := NewRequestNode(WithRetries(3, time.Millisecond)).Execute(context.Background(), execCtx, node)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, "ok", execCtx.Session.Variables["status"])
}

func TestRequestNode_Execute_CheckpointCancels(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	execCtx := newContext()
	execCtx.Checkpoint = func(context.Context) error { return protocol.ErrCancelled }

	_, err := NewRequestNode().Execute(context.Background(), execCtx, newNode(&models.RequestData{URL: server.URL}))
	require.ErrorIs(t, err, protocol.ErrCancelled)
	assert.Zero(t, calls.Load())
}

func TestTruncate(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		limit    int
		expected string
	}{
		{"short", "ok", 5, "ok"},
		{"ascii", "abcdef", 3, "abc..."},
		{"keeps whole runes", "aé€", 4, "aé..."},
		{"cut inside first rune", "€uro", 2, "..."},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, truncate(tc.input, tc.limit))
		})
	}
}
