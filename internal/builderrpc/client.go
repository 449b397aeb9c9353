package builderrpc

import (
	"context"
	"encoding/json"
	"math/rand"
	"net"
	"net/http"
	"time"

	"github.com/cristim/octobuild"
	"github.com/cristim/octobuild/internal/cache"
	"github.com/cristim/octobuild/internal/coordinator"
	"golang.org/x/xerrors"
)

// Client offloads compile sub-invocations to the cluster. Grounded on
// _examples/original_source/src/bin/octo_client.rs's main: fetch the
// builder list from the coordinator, pick one at random among builders
// advertising the wanted toolchain, dial, send the request, read the
// response.
type Client struct {
	CoordinatorURL string
	HTTPClient     *http.Client
	DialTimeout    time.Duration
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) dialTimeout() time.Duration {
	if c.DialTimeout > 0 {
		return c.DialTimeout
	}
	return 5 * time.Second
}

// fetchBuilders queries the coordinator's builder list endpoint.
func (c *Client) fetchBuilders(ctx context.Context) ([]coordinator.BuilderInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.CoordinatorURL+coordinator.RPCBuilderList, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, xerrors.Errorf("%w: %v", octobuild.ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, xerrors.Errorf("%w: coordinator returned %d", octobuild.ErrRemoteUnavailable, resp.StatusCode)
	}
	var builders []coordinator.BuilderInfo
	if err := json.NewDecoder(resp.Body).Decode(&builders); err != nil {
		return nil, xerrors.Errorf("decoding builder list: %w", err)
	}
	return builders, nil
}

// pickRandom mirrors octo_client.rs's get_random_builder: uniform choice
// among the builders that advertise toolchainID, or false if none do.
func pickRandom(builders []coordinator.BuilderInfo, toolchainID string) (coordinator.BuilderInfo, bool) {
	var candidates []coordinator.BuilderInfo
	for _, b := range builders {
		for _, t := range b.Toolchains {
			if t == toolchainID {
				candidates = append(candidates, b)
				break
			}
		}
	}
	if len(candidates) == 0 {
		return coordinator.BuilderInfo{}, false
	}
	return candidates[rand.Intn(len(candidates))], true
}

// Offload implements compiler.OffloadFunc: fetch the builder list, pick one
// advertising toolchainID, and run the compile remotely. Any failure to
// reach the coordinator or a selected builder returns ok=false so the
// caller falls back to a local compile, never a hard error.
func (c *Client) Offload(ctx context.Context, toolchainID string, compileArgs []string, filtered []byte) (cache.Bundle, bool, error) {
	builders, err := c.fetchBuilders(ctx)
	if err != nil {
		return cache.Bundle{}, false, nil
	}
	builder, ok := pickRandom(builders, toolchainID)
	if !ok {
		return cache.Bundle{}, false, nil
	}

	dialer := net.Dialer{Timeout: c.dialTimeout()}
	conn, err := dialer.DialContext(ctx, "tcp", builder.Endpoint)
	if err != nil {
		return cache.Bundle{}, false, nil
	}
	defer conn.Close()

	if deadline, set := ctx.Deadline(); set {
		conn.SetDeadline(deadline)
	}

	req := CompileRequest{Toolchain: toolchainID, Args: compileArgs, PreprocessedData: filtered}
	if err := WriteRequest(conn, req); err != nil {
		return cache.Bundle{}, false, nil
	}
	resp, err := ReadResponse(newBufReader(conn))
	if err != nil {
		return cache.Bundle{}, false, nil
	}
	if !resp.Ok {
		return cache.Bundle{}, false, nil
	}
	return cache.Bundle{
		Stdout:   resp.Output.Stdout,
		Stderr:   resp.Output.Stderr,
		ExitCode: resp.Output.ExitCode,
		Outputs:  map[string][]byte{"object": resp.Content},
	}, true, nil
}
