package rpc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"dex_go/internal/infra"
)

// AccountInfo is the decoded state of a single on-chain account.
type AccountInfo struct {
	Owner    string
	Lamports uint64
	Data     []byte
}

// KeyedAccount pairs an account with its address, as returned by
// program-wide scans.
type KeyedAccount struct {
	PubKey  string
	Account AccountInfo
}

// Filter narrows a program account scan. Either DataSize or Memcmp is set.
type Filter struct {
	DataSize     int
	MemcmpOffset int
	MemcmpBytes  []byte
}

// DataSizeFilter matches accounts of an exact byte length.
func DataSizeFilter(size int) Filter {
	return Filter{DataSize: size}
}

// MemcmpFilter matches accounts whose data contains bytes at offset.
func MemcmpFilter(offset int, b []byte) Filter {
	return Filter{MemcmpOffset: offset, MemcmpBytes: b}
}

// Client is a JSON-RPC 2.0 client for a node's HTTP endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
	nextID     atomic.Uint64
}

// NewClient creates a Client for the given HTTP endpoint.
func NewClient(endpoint string) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = 100
	transport.MaxConnsPerHost = 10
	transport.IdleConnTimeout = 30 * time.Second

	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout:   15 * time.Second,
			Transport: transport,
		},
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

// Call performs a single JSON-RPC round-trip and unmarshals the result.
func (c *Client) Call(ctx context.Context, method string, params []any, result any) error {
	infra.GlobalMetrics.RecordRPCCall()

	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		infra.GlobalMetrics.RecordRPCError()
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		infra.GlobalMetrics.RecordRPCError()
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		infra.GlobalMetrics.RecordRPCError()
		return err
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		infra.GlobalMetrics.RecordRPCError()
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if rpcResp.Error != nil {
		infra.GlobalMetrics.RecordRPCError()
		return rpcResp.Error
	}

	if result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("failed to decode result: %w", err)
		}
	}
	return nil
}

// wireAccount is the account representation on the wire, with data
// as a [base64-string, "base64"] pair.
type wireAccount struct {
	Owner    string   `json:"owner"`
	Lamports uint64   `json:"lamports"`
	Data     []string `json:"data"`
}

func (w *wireAccount) decode() (AccountInfo, error) {
	info := AccountInfo{Owner: w.Owner, Lamports: w.Lamports}
	if len(w.Data) > 0 {
		data, err := base64.StdEncoding.DecodeString(w.Data[0])
		if err != nil {
			return info, fmt.Errorf("failed to decode account data: %w", err)
		}
		info.Data = data
	}
	return info, nil
}

// GetAccountInfo fetches a single account. Returns (nil, nil) when the
// account does not exist.
func (c *Client) GetAccountInfo(ctx context.Context, address string) (*AccountInfo, error) {
	var result struct {
		Value *wireAccount `json:"value"`
	}
	params := []any{address, map[string]any{"encoding": "base64"}}
	if err := c.Call(ctx, "getAccountInfo", params, &result); err != nil {
		return nil, err
	}
	if result.Value == nil {
		return nil, nil
	}
	info, err := result.Value.decode()
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// GetMultipleAccounts fetches several accounts in one round-trip. The
// returned slice is parallel to addresses; missing accounts are nil.
func (c *Client) GetMultipleAccounts(ctx context.Context, addresses []string) ([]*AccountInfo, error) {
	var result struct {
		Value []*wireAccount `json:"value"`
	}
	params := []any{addresses, map[string]any{"encoding": "base64"}}
	if err := c.Call(ctx, "getMultipleAccounts", params, &result); err != nil {
		return nil, err
	}

	infos := make([]*AccountInfo, len(result.Value))
	for i, w := range result.Value {
		if w == nil {
			continue
		}
		info, err := w.decode()
		if err != nil {
			return nil, err
		}
		infos[i] = &info
	}
	return infos, nil
}

// GetProgramAccounts scans all accounts owned by a program, optionally
// narrowed by filters.
func (c *Client) GetProgramAccounts(ctx context.Context, programID string, filters ...Filter) ([]KeyedAccount, error) {
	opts := map[string]any{"encoding": "base64"}
	if len(filters) > 0 {
		wireFilters := make([]map[string]any, 0, len(filters))
		for _, f := range filters {
			if f.MemcmpBytes != nil {
				wireFilters = append(wireFilters, map[string]any{
					"memcmp": map[string]any{
						"offset": f.MemcmpOffset,
						"bytes":  base64.StdEncoding.EncodeToString(f.MemcmpBytes),
					},
				})
			} else {
				wireFilters = append(wireFilters, map[string]any{"dataSize": f.DataSize})
			}
		}
		opts["filters"] = wireFilters
	}

	var result []struct {
		PubKey  string      `json:"pubkey"`
		Account wireAccount `json:"account"`
	}
	if err := c.Call(ctx, "getProgramAccounts", []any{programID, opts}, &result); err != nil {
		return nil, err
	}

	accounts := make([]KeyedAccount, 0, len(result))
	for _, r := range result {
		info, err := r.Account.decode()
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, KeyedAccount{PubKey: r.PubKey, Account: info})
	}
	return accounts, nil
}

// SendTransaction submits a signed transaction and returns its signature.
func (c *Client) SendTransaction(ctx context.Context, signedTx []byte) (string, error) {
	encoded := base64.StdEncoding.EncodeToString(signedTx)
	params := []any{encoded, map[string]any{"encoding": "base64"}}

	var signature string
	if err := c.Call(ctx, "sendTransaction", params, &signature); err != nil {
		return "", err
	}
	return signature, nil
}
