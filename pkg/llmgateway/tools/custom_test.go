package tools_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowforge/orchestrator/pkg/llmgateway/tools"
)

func TestHTTPTool_CallsConfiguredEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pong"))
	}))
	defer srv.Close()

	tool, err := tools.NewCustomTool(tools.CustomDefinition{
		Name: "ping", Kind: tools.CustomHTTP, URL: srv.URL, Method: http.MethodPost,
	})
	require.NoError(t, err)

	out, err := tool.Call(context.Background(), `{}`)
	require.NoError(t, err)
	require.Equal(t, "pong", out)
}

func TestHTTPTool_NonOKStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	tool, err := tools.NewCustomTool(tools.CustomDefinition{Name: "broken", Kind: tools.CustomHTTP, URL: srv.URL})
	require.NoError(t, err)

	_, err = tool.Call(context.Background(), `{}`)
	require.Error(t, err)
}

func TestJSTool_ComputesResultFromArgs(t *testing.T) {
	tool, err := tools.NewCustomTool(tools.CustomDefinition{
		Name: "double", Kind: tools.CustomJS,
		Script: `var result = args.n * 2;`,
	})
	require.NoError(t, err)

	out, err := tool.Call(context.Background(), `{"n":21}`)
	require.NoError(t, err)
	require.Equal(t, "42", out)
}

func TestJSTool_SandboxHasNoHostAccess(t *testing.T) {
	tool, err := tools.NewCustomTool(tools.CustomDefinition{
		Name: "escape", Kind: tools.CustomJS,
		Script: `var result = typeof require;`,
	})
	require.NoError(t, err)

	out, err := tool.Call(context.Background(), `{}`)
	require.NoError(t, err)
	require.Equal(t, `"undefined"`, out)
}

func TestShellTool_RunsCommand(t *testing.T) {
	tool, err := tools.NewCustomTool(tools.CustomDefinition{
		Name: "echo", Kind: tools.CustomShell, Command: "echo -n hi",
	})
	require.NoError(t, err)

	out, err := tool.Call(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, "hi", out)
}
