package toolconn

import (
	"context"
	"net/http"
	"os"
	"os/exec"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// CommandDialer starts the provider as a child process speaking MCP over
// stdio. The API key is handed to it through RECIPE_API_KEY.
func CommandDialer(apiKey, name string, args ...string) Dialer {
	return func(ctx context.Context) (mcp.Transport, error) {
		// Not exec.CommandContext: the process must outlive the attempt.
		cmd := exec.Command(name, args...)
		cmd.Env = append(os.Environ(), "RECIPE_API_KEY="+apiKey)
		cmd.Stderr = os.Stderr
		return &mcp.CommandTransport{Command: cmd}, nil
	}
}

// HTTPDialer connects to a provider serving the streamable HTTP transport,
// authenticating every request with a bearer token.
func HTTPDialer(endpoint, apiKey string, base http.RoundTripper) Dialer {
	if base == nil {
		base = http.DefaultTransport
	}
	client := &http.Client{Transport: &bearerTransport{token: apiKey, base: base}}
	return func(ctx context.Context) (mcp.Transport, error) {
		return &mcp.StreamableClientTransport{
			Endpoint:   endpoint,
			HTTPClient: client,
			MaxRetries: -1,
		}, nil
	}
}

// InMemoryDialer connects to a server running in the same process. A new
// transport pair is created per attempt.
func InMemoryDialer(server *mcp.Server) Dialer {
	return func(ctx context.Context) (mcp.Transport, error) {
		serverT, clientT := mcp.NewInMemoryTransports()
		if _, err := server.Connect(context.WithoutCancel(ctx), serverT, nil); err != nil {
			return nil, err
		}
		return clientT, nil
	}
}

type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+t.token)
	return t.base.RoundTrip(req)
}
