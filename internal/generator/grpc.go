package generator

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region methods
const (
	generateMethod = "/persuasion.v1.TextGenerator/Generate"
	streamMethod   = "/persuasion.v1.TextGenerator/GenerateStream"
)

var streamDesc = &grpc.StreamDesc{StreamName: "GenerateStream", ServerStreams: true}

// #endregion methods

// #region client-struct
// GRPCClient calls a remote text generator. Requests and responses are
// google.protobuf.Struct messages: the request carries system, user,
// temperature, maxTokens and persona; each response carries text.
type GRPCClient struct {
	conn *grpc.ClientConn
	cc   grpc.ClientConnInterface
}

var (
	_ Generator = (*GRPCClient)(nil)
	_ Streamer  = (*GRPCClient)(nil)
)

// #endregion client-struct

// #region constructor
// NewGRPCClient connects to the generator service at addr.
func NewGRPCClient(addr string) (*GRPCClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &GRPCClient{conn: conn, cc: conn}, nil
}

// NewGRPCClientWithConn wraps an existing connection. Used for testing
// without a real server.
func NewGRPCClientWithConn(cc grpc.ClientConnInterface) *GRPCClient {
	return &GRPCClient{cc: cc}
}

// Close shuts down the connection if this client owns one.
func (c *GRPCClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion constructor

// #region generate
// Generate performs one unary call.
func (c *GRPCClient) Generate(ctx context.Context, system, user string, opts Options) (string, error) {
	req, err := request(system, user, opts)
	if err != nil {
		return "", wrap(opts, err)
	}
	resp := &structpb.Struct{}
	if err := c.cc.Invoke(ctx, generateMethod, req, resp); err != nil {
		return "", wrap(opts, fmt.Errorf("generate rpc: %w", err))
	}
	text, ok := resp.GetFields()["text"]
	if !ok {
		return "", wrap(opts, errors.New("generate rpc: response has no text field"))
	}
	return text.GetStringValue(), nil
}

// #endregion generate

// #region stream
// Stream performs a server-streaming call and hands each text chunk to fn.
func (c *GRPCClient) Stream(ctx context.Context, system, user string, opts Options, fn func(string) error) error {
	req, err := request(system, user, opts)
	if err != nil {
		return wrap(opts, err)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := c.cc.NewStream(ctx, streamDesc, streamMethod)
	if err != nil {
		return wrap(opts, fmt.Errorf("stream rpc: %w", err))
	}
	if err := stream.SendMsg(req); err != nil {
		return wrap(opts, fmt.Errorf("stream send: %w", err))
	}
	if err := stream.CloseSend(); err != nil {
		return wrap(opts, fmt.Errorf("stream close send: %w", err))
	}
	for {
		chunk := &structpb.Struct{}
		err := stream.RecvMsg(chunk)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return wrap(opts, fmt.Errorf("stream recv: %w", err))
		}
		if err := fn(chunk.GetFields()["text"].GetStringValue()); err != nil {
			return err
		}
	}
}

// #endregion stream

// #region helpers
func request(system, user string, opts Options) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(map[string]any{
		"system":      system,
		"user":        user,
		"temperature": opts.Temperature,
		"maxTokens":   opts.MaxTokens,
		"persona":     string(opts.Persona),
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return req, nil
}

func wrap(opts Options, err error) error {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		return &ProviderError{Provider: "grpc", Persona: opts.Persona, Retryable: true, Err: err}
	}
	return &ProviderError{Provider: "grpc", Persona: opts.Persona, Err: err}
}

// #endregion helpers
