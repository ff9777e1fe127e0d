package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"firestige.xyz/arpguard/internal/command"
)

// Client is the part of the UDS client the commands use.
type Client interface {
	Ping(ctx context.Context) error
	Status(ctx context.Context) (*command.Response, error)
	Stats(ctx context.Context) (*command.Response, error)
	Shutdown(ctx context.Context) (*command.Response, error)
	ConfigReload(ctx context.Context) (*command.Response, error)
	FlagsGet(ctx context.Context, scope string) (*command.Response, error)
	FlagsSet(ctx context.Context, scope string, values map[string]interface{}) (*command.Response, error)
	NeighList(ctx context.Context, iface string) (*command.Response, error)
	NeighAdd(ctx context.Context, params command.NeighParams) (*command.Response, error)
	NeighFlush(ctx context.Context, iface string) (*command.Response, error)
	ProxyList(ctx context.Context) (*command.Response, error)
	ProxyAdd(ctx context.Context, addr, iface string) (*command.Response, error)
	ProxyDelete(ctx context.Context, addr, iface string) (*command.Response, error)
	AttackerList(ctx context.Context) (*command.Response, error)
	AttackerClear(ctx context.Context, hw string) (*command.Response, error)
	Resolve(ctx context.Context, iface, addr string) (*command.Response, error)
}

var _ Client = (*command.UDSClient)(nil)

// newClient is replaced in tests.
var newClient = func() Client {
	return command.NewUDSClient(socketPath, timeout)
}

// printResult writes the result of resp as indented JSON.
func printResult(out io.Writer, method string, resp *command.Response) error {
	if resp.Error != nil {
		return fmt.Errorf("%s failed: %s", method, resp.Error.Message)
	}
	data, err := json.MarshalIndent(resp.Result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format result: %w", err)
	}
	fmt.Fprintln(out, string(data))
	return nil
}

// query runs one request and prints its result.
func query(out io.Writer, method string, fn func() (*command.Response, error)) error {
	resp, err := fn()
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return printResult(out, method, resp)
}
