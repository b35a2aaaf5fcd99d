package evm

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/hornet-trading/hornet/internal/errs"
)

// ---------------------------------------------------------------------------
// Live adapter — JSON-RPC over HTTP + websocket pending-tx subscription
// ---------------------------------------------------------------------------

// ERC-20 / router / factory selectors used by read calls.
const (
	selBalanceOf     = "70a08231"
	selAllowance     = "dd62ed3e"
	selApprove       = "095ea7b3"
	selDecimals      = "313ce567"
	selSymbol        = "95d89b41"
	selTotalSupply   = "18160ddd"
	selGetAmountsOut = "d06ca61f"
	selGetPair       = "e6a43905"
)

// LiveConfig configures the live adapter.
type LiveConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	RateLimitRPS float64       `yaml:"rate_limit_rps"`
	// Sender is the signing account held by the connected node. The core
	// never touches key material; signing is the node's job.
	Sender Address `yaml:"sender"`
	// PriceFeedURL is the black-box native/USD oracle endpoint. Empty means
	// the adapter serves the chain's default quote.
	PriceFeedURL string `yaml:"price_feed_url"`
}

// DefaultLiveConfig returns production defaults.
func DefaultLiveConfig() LiveConfig {
	return LiveConfig{
		Timeout:      10 * time.Second,
		RateLimitRPS: 20,
	}
}

// LiveAdapter talks to one EVM node. It implements ChainAdapter, and
// PrivateRelay when the chain config carries a relay URL.
type LiveAdapter struct {
	cfg     ChainConfig
	opts    LiveConfig
	client  *http.Client
	limiter *rate.Limiter

	reqID   atomic.Int64
	rpcErrs atomic.Int64
}

// RPCErrors returns the cumulative count of failed RPC calls.
func (a *LiveAdapter) RPCErrors() int64 { return a.rpcErrs.Load() }

// NewLiveAdapter creates a live adapter for one chain.
func NewLiveAdapter(cfg ChainConfig, opts LiveConfig) *LiveAdapter {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RateLimitRPS <= 0 {
		opts.RateLimitRPS = 20
	}
	return &LiveAdapter{
		cfg:     cfg,
		opts:    opts,
		client:  &http.Client{Timeout: opts.Timeout},
		limiter: rate.NewLimiter(rate.Limit(opts.RateLimitRPS), int(opts.RateLimitRPS)),
	}
}

func (a *LiveAdapter) Chain() ChainConfig { return a.cfg }

// --- JSON-RPC plumbing ---

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (a *LiveAdapter) call(ctx context.Context, method string, result any, params ...any) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return errs.Wrap(errs.Timeout, err, "rate limiter wait")
	}
	if params == nil {
		params = []any{}
	}
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      a.reqID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.RPCURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		a.rpcErrs.Add(1)
		return errs.Wrap(errs.ChainUnavailable, err, "%s", method)
	}
	defer resp.Body.Close()

	var out rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		a.rpcErrs.Add(1)
		return errs.Wrap(errs.ChainUnavailable, err, "decode %s response", method)
	}
	if out.Error != nil {
		a.rpcErrs.Add(1)
		return classifyRPCError(method, out.Error)
	}
	if result != nil {
		if err := json.Unmarshal(out.Result, result); err != nil {
			return fmt.Errorf("unmarshal %s result: %w", method, err)
		}
	}
	return nil
}

// classifyRPCError maps node error strings onto the error taxonomy. The
// strings are the de-facto standard across geth/erigon/bor.
func classifyRPCError(method string, e *rpcError) error {
	msg := strings.ToLower(e.Message)
	switch {
	case strings.Contains(msg, "nonce too low"):
		return errs.New(errs.NonceTooLow, "%s: %s", method, e.Message)
	case strings.Contains(msg, "already known"), strings.Contains(msg, "known transaction"):
		return errs.New(errs.AlreadyKnown, "%s: %s", method, e.Message)
	case strings.Contains(msg, "replacement transaction underpriced"):
		return errs.New(errs.ReplacementUnderpriced, "%s: %s", method, e.Message)
	case strings.Contains(msg, "underpriced"), strings.Contains(msg, "fee too low"):
		return errs.New(errs.Underpriced, "%s: %s", method, e.Message)
	case strings.Contains(msg, "insufficient funds"):
		return errs.New(errs.InsufficientFunds, "%s: %s", method, e.Message)
	case strings.Contains(msg, "execution reverted"), strings.Contains(msg, "revert"):
		return errs.New(errs.ExecutionReverted, "%s: %s", method, e.Message)
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"):
		return errs.New(errs.Timeout, "%s: %s", method, e.Message)
	default:
		return errs.New(errs.Other, "%s: rpc error %d: %s", method, e.Code, e.Message)
	}
}

// --- hex / wire helpers ---

func hexUint64(s string) (uint64, error) {
	if s == "" || s == "0x" {
		return 0, nil
	}
	v, ok := new(big.Int).SetString(strings.TrimPrefix(s, "0x"), 16)
	if !ok {
		return 0, fmt.Errorf("bad hex quantity %q", s)
	}
	return v.Uint64(), nil
}

func hexBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(strings.TrimPrefix(s, "0x"), 16)
	if !ok {
		return big.NewInt(0)
	}
	return v
}

var (
	weiPerNative = decimal.New(1, 18)
	weiPerGwei   = decimal.New(1, 9)
)

func weiToNative(wei *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(wei, 0).Div(weiPerNative)
}

func weiToGwei(wei *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(wei, 0).Div(weiPerGwei)
}

func gweiToWeiHex(gwei decimal.Decimal) string {
	wei := gwei.Mul(weiPerGwei).Truncate(0)
	return "0x" + wei.BigInt().Text(16)
}

func nativeToWeiHex(amount decimal.Decimal) string {
	wei := amount.Mul(weiPerNative).Truncate(0)
	return "0x" + wei.BigInt().Text(16)
}

// --- wire transaction shapes ---

type wireTx struct {
	Hash             string `json:"hash"`
	From             string `json:"from"`
	To               string `json:"to"`
	Value            string `json:"value"`
	Gas              string `json:"gas"`
	GasPrice         string `json:"gasPrice"`
	Nonce            string `json:"nonce"`
	Input            string `json:"input"`
	BlockNumber      string `json:"blockNumber"`
	TransactionIndex string `json:"transactionIndex"`
}

func (w wireTx) toTransaction() Transaction {
	blockNum, _ := hexUint64(w.BlockNumber)
	txIdx, _ := hexUint64(w.TransactionIndex)
	nonce, _ := hexUint64(w.Nonce)
	gasLimit, _ := hexUint64(w.Gas)
	input, _ := hex.DecodeString(strings.TrimPrefix(w.Input, "0x"))
	return Transaction{
		Hash:        Hash(strings.ToLower(w.Hash)),
		From:        NormalizeAddress(w.From),
		To:          NormalizeAddress(w.To),
		ValueNative: weiToNative(hexBig(w.Value)),
		GasPrice:    weiToGwei(hexBig(w.GasPrice)),
		GasLimit:    gasLimit,
		Nonce:       nonce,
		Input:       input,
		BlockNumber: blockNum,
		TxIndex:     int(txIdx),
	}
}

type wireBlock struct {
	Number        string   `json:"number"`
	BaseFeePerGas string   `json:"baseFeePerGas"`
	Timestamp     string   `json:"timestamp"`
	Transactions  []wireTx `json:"transactions"`
}

type wireReceipt struct {
	TransactionHash  string `json:"transactionHash"`
	BlockNumber      string `json:"blockNumber"`
	TransactionIndex string `json:"transactionIndex"`
	Status           string `json:"status"`
	GasUsed          string `json:"gasUsed"`
	RevertReason     string `json:"revertReason"`
}

// --- reads ---

func (a *LiveAdapter) BlockNumber(ctx context.Context) (uint64, error) {
	var raw string
	if err := a.call(ctx, "eth_blockNumber", &raw); err != nil {
		return 0, err
	}
	return hexUint64(raw)
}

func (a *LiveAdapter) BlockWithTxs(ctx context.Context, number uint64) (*Block, error) {
	var raw *wireBlock
	if err := a.call(ctx, "eth_getBlockByNumber", &raw, fmt.Sprintf("0x%x", number), true); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errs.New(errs.ChainUnavailable, "block %d not found", number)
	}
	num, _ := hexUint64(raw.Number)
	ts, _ := hexUint64(raw.Timestamp)
	b := &Block{
		Number:      num,
		BaseFeeGwei: weiToGwei(hexBig(raw.BaseFeePerGas)),
		Timestamp:   time.Unix(int64(ts), 0),
		Txs:         make([]Transaction, 0, len(raw.Transactions)),
	}
	for _, wt := range raw.Transactions {
		b.Txs = append(b.Txs, wt.toTransaction())
	}
	return b, nil
}

func (a *LiveAdapter) TransactionByHash(ctx context.Context, h Hash) (*Transaction, error) {
	var raw *wireTx
	if err := a.call(ctx, "eth_getTransactionByHash", &raw, string(h)); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("transaction %s not found", h)
	}
	tx := raw.toTransaction()
	return &tx, nil
}

func (a *LiveAdapter) TransactionReceipt(ctx context.Context, h Hash) (*Receipt, error) {
	var raw *wireReceipt
	if err := a.call(ctx, "eth_getTransactionReceipt", &raw, string(h)); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	blockNum, _ := hexUint64(raw.BlockNumber)
	txIdx, _ := hexUint64(raw.TransactionIndex)
	gasUsed, _ := hexUint64(raw.GasUsed)
	status, _ := hexUint64(raw.Status)
	return &Receipt{
		TxHash:       Hash(strings.ToLower(raw.TransactionHash)),
		BlockNumber:  blockNum,
		TxIndex:      int(txIdx),
		Success:      status == 1,
		GasUsed:      gasUsed,
		RevertReason: raw.RevertReason,
	}, nil
}

func (a *LiveAdapter) GasPrice(ctx context.Context) (decimal.Decimal, error) {
	var raw string
	if err := a.call(ctx, "eth_gasPrice", &raw); err != nil {
		return decimal.Zero, err
	}
	return weiToGwei(hexBig(raw)), nil
}

func (a *LiveAdapter) BaseFee(ctx context.Context) (decimal.Decimal, error) {
	if !a.cfg.EIP1559 {
		return decimal.Zero, nil
	}
	var raw *wireBlock
	if err := a.call(ctx, "eth_getBlockByNumber", &raw, "latest", false); err != nil {
		return decimal.Zero, err
	}
	if raw == nil {
		return decimal.Zero, errs.New(errs.ChainUnavailable, "latest block not found")
	}
	return weiToGwei(hexBig(raw.BaseFeePerGas)), nil
}

func (a *LiveAdapter) Balance(ctx context.Context, addr Address) (decimal.Decimal, error) {
	var raw string
	if err := a.call(ctx, "eth_getBalance", &raw, string(addr), "latest"); err != nil {
		return decimal.Zero, err
	}
	return weiToNative(hexBig(raw)), nil
}

// ethCall runs a read-only contract call and returns the raw return data.
func (a *LiveAdapter) ethCall(ctx context.Context, to Address, data []byte) ([]byte, error) {
	var raw string
	params := map[string]string{
		"to":   string(to),
		"data": "0x" + hex.EncodeToString(data),
	}
	if err := a.call(ctx, "eth_call", &raw, params, "latest"); err != nil {
		return nil, err
	}
	return hex.DecodeString(strings.TrimPrefix(raw, "0x"))
}

func callData(selector string, words ...*big.Int) []byte {
	sel, _ := hex.DecodeString(selector)
	buf := make([]byte, 0, 4+len(words)*32)
	buf = append(buf, sel...)
	for _, w := range words {
		buf = append(buf, bigWord(w)...)
	}
	return buf
}

func (a *LiveAdapter) TokenBalance(ctx context.Context, token, addr Address) (decimal.Decimal, error) {
	out, err := a.ethCall(ctx, token, callData(selBalanceOf, addressBig(addr)))
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromBigInt(new(big.Int).SetBytes(out), 0), nil
}

func (a *LiveAdapter) Allowance(ctx context.Context, token, owner, spender Address) (decimal.Decimal, error) {
	out, err := a.ethCall(ctx, token, callData(selAllowance, addressBig(owner), addressBig(spender)))
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromBigInt(new(big.Int).SetBytes(out), 0), nil
}

func (a *LiveAdapter) TransactionCount(ctx context.Context, addr Address) (uint64, error) {
	var raw string
	if err := a.call(ctx, "eth_getTransactionCount", &raw, string(addr), "pending"); err != nil {
		return 0, err
	}
	return hexUint64(raw)
}

func (a *LiveAdapter) AmountsOut(ctx context.Context, amountIn decimal.Decimal, path []Address) ([]decimal.Decimal, error) {
	// getAmountsOut(uint256,address[]) with the array inline after the head.
	words := []*big.Int{amountIn.Truncate(0).BigInt(), big.NewInt(64), big.NewInt(int64(len(path)))}
	for _, hop := range path {
		words = append(words, addressBig(hop))
	}
	out, err := a.ethCall(ctx, a.cfg.Router, callData(selGetAmountsOut, words...))
	if err != nil {
		return nil, err
	}
	// Return data: offset word, length word, then amounts.
	if len(out) < 64 {
		return nil, fmt.Errorf("short getAmountsOut return (%d bytes)", len(out))
	}
	n := new(big.Int).SetBytes(out[32:64]).Uint64()
	amounts := make([]decimal.Decimal, 0, n)
	for i := 0; i < int(n); i++ {
		start := 64 + i*32
		if start+32 > len(out) {
			return nil, fmt.Errorf("truncated getAmountsOut return")
		}
		amounts = append(amounts, decimal.NewFromBigInt(new(big.Int).SetBytes(out[start:start+32]), 0))
	}
	return amounts, nil
}

func (a *LiveAdapter) Pair(ctx context.Context, tokenA, tokenB Address) (Address, error) {
	out, err := a.ethCall(ctx, a.cfg.Factory, callData(selGetPair, addressBig(tokenA), addressBig(tokenB)))
	if err != nil {
		return "", err
	}
	if len(out) < 32 {
		return "", fmt.Errorf("short getPair return")
	}
	return Address("0x" + hex.EncodeToString(out[12:32])), nil
}

func (a *LiveAdapter) TokenInfo(ctx context.Context, token Address) (*TokenInfo, error) {
	info := &TokenInfo{Address: token}

	if out, err := a.ethCall(ctx, token, callData(selDecimals)); err == nil && len(out) >= 32 {
		info.Decimals = uint8(new(big.Int).SetBytes(out).Uint64())
	}
	if out, err := a.ethCall(ctx, token, callData(selTotalSupply)); err == nil && len(out) >= 32 {
		info.TotalSupply = decimal.NewFromBigInt(new(big.Int).SetBytes(out), 0)
	}
	if out, err := a.ethCall(ctx, token, callData(selSymbol)); err == nil {
		info.Symbol = decodeABIString(out)
	}
	// Verification status needs an explorer index; without one the token
	// stays unverified and the risk analyzer penalizes accordingly.
	info.Verified = false
	return info, nil
}

func (a *LiveAdapter) TopHolders(ctx context.Context, token Address, limit int) ([]HolderInfo, error) {
	// Holder distribution requires an indexer; the node alone cannot answer.
	return nil, nil
}

func (a *LiveAdapter) NativePriceUSD(ctx context.Context) (decimal.Decimal, error) {
	if a.opts.PriceFeedURL == "" {
		// No oracle configured; serve a conservative static quote so USD
		// thresholds stay meaningful in development.
		return decimal.NewFromInt(3000), nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.opts.PriceFeedURL, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("build price feed request: %w", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return decimal.Zero, errs.Wrap(errs.ChainUnavailable, err, "price feed")
	}
	defer resp.Body.Close()
	var body struct {
		Price decimal.Decimal `json:"price"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("decode price feed: %w", err)
	}
	return body.Price, nil
}

func (a *LiveAdapter) EstimateGas(ctx context.Context, req TxRequest) (uint64, error) {
	var raw string
	params := map[string]string{
		"from": string(req.From),
		"to":   string(req.To),
	}
	if req.ValueNative.IsPositive() {
		params["value"] = nativeToWeiHex(req.ValueNative)
	}
	if len(req.Input) > 0 {
		params["data"] = "0x" + hex.EncodeToString(req.Input)
	}
	if err := a.call(ctx, "eth_estimateGas", &raw, params); err != nil {
		return 0, err
	}
	return hexUint64(raw)
}

func (a *LiveAdapter) Health(ctx context.Context) error {
	_, err := a.BlockNumber(ctx)
	return err
}

// --- writes ---

func (a *LiveAdapter) SendTransaction(ctx context.Context, req TxRequest) (Hash, error) {
	params := map[string]string{
		"from":  string(req.From),
		"to":    string(req.To),
		"gas":   fmt.Sprintf("0x%x", req.GasLimit),
		"nonce": fmt.Sprintf("0x%x", req.Nonce),
	}
	if req.ValueNative.IsPositive() {
		params["value"] = nativeToWeiHex(req.ValueNative)
	}
	if len(req.Input) > 0 {
		params["data"] = "0x" + hex.EncodeToString(req.Input)
	}
	if a.cfg.EIP1559 && req.MaxFeeGwei.IsPositive() {
		params["maxFeePerGas"] = gweiToWeiHex(req.MaxFeeGwei)
		params["maxPriorityFeePerGas"] = gweiToWeiHex(req.PriorityFeeGwei)
	} else {
		params["gasPrice"] = gweiToWeiHex(req.GasPriceGwei)
	}

	var raw string
	if err := a.call(ctx, "eth_sendTransaction", &raw, params); err != nil {
		return "", err
	}
	return Hash(strings.ToLower(raw)), nil
}

func (a *LiveAdapter) ApproveToken(ctx context.Context, token, spender Address, amount decimal.Decimal) (Hash, error) {
	req := TxRequest{
		From:         a.opts.Sender,
		To:           token,
		Input:        callData(selApprove, addressBig(spender), amount.Truncate(0).BigInt()),
		GasLimit:     80_000,
		GasPriceGwei: a.cfg.DefaultGasPriceGwei,
	}
	nonce, err := a.TransactionCount(ctx, a.opts.Sender)
	if err != nil {
		return "", err
	}
	req.Nonce = nonce
	return a.SendTransaction(ctx, req)
}

// --- pending-tx subscription ---

// SubscribePendingTxs opens a websocket eth_subscribe for pending transaction
// hashes, hydrates each hash into a full transaction, and streams the result.
// The returned channel closes when the socket drops; the caller owns
// reconnection policy.
func (a *LiveAdapter) SubscribePendingTxs(ctx context.Context) (<-chan Transaction, error) {
	if a.cfg.WSURL == "" {
		return nil, errs.New(errs.Other, "chain %s has no websocket endpoint", a.cfg.Name)
	}

	dialer := websocket.Dialer{HandshakeTimeout: a.opts.Timeout}
	conn, _, err := dialer.DialContext(ctx, a.cfg.WSURL, nil)
	if err != nil {
		return nil, errs.Wrap(errs.ChainUnavailable, err, "dial %s", a.cfg.WSURL)
	}

	sub := rpcRequest{JSONRPC: "2.0", ID: a.reqID.Add(1), Method: "eth_subscribe", Params: []any{"newPendingTransactions"}}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return nil, errs.Wrap(errs.ChainUnavailable, err, "eth_subscribe")
	}

	out := make(chan Transaction, 512)
	go a.readPendingLoop(ctx, conn, out)
	return out, nil
}

type wsNotification struct {
	Method string `json:"method"`
	Params struct {
		Result string `json:"result"`
	} `json:"params"`
}

func (a *LiveAdapter) readPendingLoop(ctx context.Context, conn *websocket.Conn, out chan<- Transaction) {
	defer close(out)
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		var note wsNotification
		if err := conn.ReadJSON(&note); err != nil {
			if ctx.Err() == nil {
				log.Warn().Err(err).Str("chain", a.cfg.Name).Msg("evm: pending-tx socket dropped")
			}
			return
		}
		if note.Method != "eth_subscription" || note.Params.Result == "" {
			continue
		}

		// Hydrate the hash; bound the lookup so a slow node cannot stall
		// the read loop.
		txCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		tx, err := a.TransactionByHash(txCtx, Hash(strings.ToLower(note.Params.Result)))
		cancel()
		if err != nil || tx == nil {
			continue
		}

		select {
		case out <- *tx:
		case <-ctx.Done():
			return
		default:
			// Back-pressure: drop rather than stall the socket reader.
		}
	}
}

// --- private relay ---

// SendPrivateBundle submits an ordered bundle to the chain's relay endpoint
// (flashbots-style eth_sendBundle). Fails when the chain has no relay.
func (a *LiveAdapter) SendPrivateBundle(ctx context.Context, txs []TxRequest, targetBlock uint64) (Hash, error) {
	if a.cfg.PrivateRelayURL == "" {
		return "", errs.New(errs.Other, "chain %s has no private relay", a.cfg.Name)
	}
	return a.relayCall(ctx, "eth_sendBundle", txs, targetBlock)
}

// SimulateBundle dry-runs a bundle via eth_callBundle.
func (a *LiveAdapter) SimulateBundle(ctx context.Context, txs []TxRequest, targetBlock uint64) error {
	if a.cfg.PrivateRelayURL == "" {
		return errs.New(errs.Other, "chain %s has no private relay", a.cfg.Name)
	}
	_, err := a.relayCall(ctx, "eth_callBundle", txs, targetBlock)
	return err
}

func (a *LiveAdapter) relayCall(ctx context.Context, method string, txs []TxRequest, targetBlock uint64) (Hash, error) {
	bundle := make([]map[string]string, 0, len(txs))
	for _, tx := range txs {
		entry := map[string]string{
			"from":  string(tx.From),
			"to":    string(tx.To),
			"gas":   fmt.Sprintf("0x%x", tx.GasLimit),
			"nonce": fmt.Sprintf("0x%x", tx.Nonce),
		}
		if tx.ValueNative.IsPositive() {
			entry["value"] = nativeToWeiHex(tx.ValueNative)
		}
		if len(tx.Input) > 0 {
			entry["data"] = "0x" + hex.EncodeToString(tx.Input)
		}
		bundle = append(bundle, entry)
	}
	payload := map[string]any{
		"txs":         bundle,
		"blockNumber": fmt.Sprintf("0x%x", targetBlock),
	}

	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: a.reqID.Add(1), Method: method, Params: []any{payload}})
	if err != nil {
		return "", fmt.Errorf("marshal bundle: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.PrivateRelayURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", errs.Wrap(errs.ChainUnavailable, err, "relay %s", method)
	}
	defer resp.Body.Close()

	var out struct {
		Result struct {
			BundleHash string `json:"bundleHash"`
		} `json:"result"`
		Error *rpcError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", errs.Wrap(errs.ChainUnavailable, err, "decode relay response")
	}
	if out.Error != nil {
		return "", classifyRPCError(method, out.Error)
	}
	return Hash(out.Result.BundleHash), nil
}

// decodeABIString decodes a single ABI-encoded string return value.
func decodeABIString(out []byte) string {
	if len(out) < 64 {
		return ""
	}
	n := new(big.Int).SetBytes(out[32:64]).Uint64()
	if 64+n > uint64(len(out)) {
		return ""
	}
	return string(out[64 : 64+n])
}
