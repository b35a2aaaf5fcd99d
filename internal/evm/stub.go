package evm

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/hornet-trading/hornet/internal/errs"
)

// ---------------------------------------------------------------------------
// Stub adapter (for testing and development)
// ---------------------------------------------------------------------------

// StubAdapter is an in-memory ChainAdapter for tests. It also implements
// PrivateRelay so bundle paths can be exercised without a relay endpoint.
type StubAdapter struct {
	cfg ChainConfig

	mu          sync.RWMutex
	blockNumber uint64
	blocks      map[uint64]*Block
	txs         map[Hash]*Transaction
	receipts    map[Hash]*Receipt
	tokens      map[Address]*TokenInfo
	holders     map[Address][]HolderInfo
	balances    map[Address]decimal.Decimal
	tokenBals   map[Address]map[Address]decimal.Decimal // token -> holder -> amount
	allowances  map[string]decimal.Decimal              // token|owner|spender
	pairs       map[string]Address
	nonces      map[Address]uint64
	rates       map[Address]decimal.Decimal // token -> tokens received per 1 native
	sellTaxes   map[Address]decimal.Decimal // token -> fraction skimmed on token -> native legs
	autoMine    bool
	gasPrice    decimal.Decimal
	baseFee     decimal.Decimal
	nativeUSD   decimal.Decimal

	pendingCh chan Transaction

	sent        []TxRequest
	sentHashes  []Hash
	bundles     [][]TxRequest
	failNext    map[string][]errs.Kind // method -> queued single-use failures
	sendCounter int
}

// NewStubAdapter creates a stub for the given chain config.
func NewStubAdapter(cfg ChainConfig) *StubAdapter {
	return &StubAdapter{
		cfg:        cfg,
		blocks:     make(map[uint64]*Block),
		txs:        make(map[Hash]*Transaction),
		receipts:   make(map[Hash]*Receipt),
		tokens:     make(map[Address]*TokenInfo),
		holders:    make(map[Address][]HolderInfo),
		balances:   make(map[Address]decimal.Decimal),
		tokenBals:  make(map[Address]map[Address]decimal.Decimal),
		allowances: make(map[string]decimal.Decimal),
		pairs:      make(map[string]Address),
		nonces:     make(map[Address]uint64),
		rates:      make(map[Address]decimal.Decimal),
		sellTaxes:  make(map[Address]decimal.Decimal),
		gasPrice:   decimal.NewFromInt(30),
		baseFee:    decimal.NewFromInt(25),
		nativeUSD:  decimal.NewFromInt(3000),
		pendingCh:  make(chan Transaction, 256),
		failNext:   make(map[string][]errs.Kind),
	}
}

// --- test knobs ---

func (s *StubAdapter) SetBlockNumber(n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blockNumber = n
}

func (s *StubAdapter) AddBlock(b *Block) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[b.Number] = b
	if b.Number > s.blockNumber {
		s.blockNumber = b.Number
	}
}

func (s *StubAdapter) AddTransaction(tx Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := tx
	s.txs[tx.Hash] = &cp
}

func (s *StubAdapter) AddReceipt(r Receipt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := r
	s.receipts[r.TxHash] = &cp
}

func (s *StubAdapter) AddToken(info TokenInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := info
	s.tokens[info.Address] = &cp
}

func (s *StubAdapter) AddHolders(token Address, holders []HolderInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holders[token] = holders
}

func (s *StubAdapter) SetBalance(addr Address, amount decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[addr] = amount
}

func (s *StubAdapter) SetTokenBalance(token, addr Address, amount decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tokenBals[token] == nil {
		s.tokenBals[token] = make(map[Address]decimal.Decimal)
	}
	s.tokenBals[token][addr] = amount
}

func (s *StubAdapter) SetAllowance(token, owner, spender Address, amount decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allowances[allowanceKey(token, owner, spender)] = amount
}

func (s *StubAdapter) SetPair(tokenA, tokenB, pair Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pairs[pairKey(tokenA, tokenB)] = pair
}

func (s *StubAdapter) SetNonce(addr Address, n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nonces[addr] = n
}

// SetSwapRate sets how many token units one native unit buys via AmountsOut.
func (s *StubAdapter) SetSwapRate(token Address, tokensPerNative decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates[token] = tokensPerNative
}

// SetSellTax skims a fraction from token -> native quotes, emulating a
// taxed or honeypot token.
func (s *StubAdapter) SetSellTax(token Address, fraction decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sellTaxes[token] = fraction
}

func (s *StubAdapter) SetGasPrice(gwei decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gasPrice = gwei
}

func (s *StubAdapter) SetBaseFee(gwei decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseFee = gwei
}

func (s *StubAdapter) SetNativePriceUSD(usd decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nativeUSD = usd
}

// FailNext makes the next call of the named method fail with the given kind.
// Method names match the ChainAdapter interface ("SendTransaction", ...).
// Repeated calls queue failures consumed one per invocation.
func (s *StubAdapter) FailNext(method string, kind errs.Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext[method] = append(s.failNext[method], kind)
}

// EmitPending pushes a transaction onto the pending subscription channel.
func (s *StubAdapter) EmitPending(tx Transaction) {
	s.pendingCh <- tx
}

// ClosePending closes the pending channel, simulating subscription loss.
func (s *StubAdapter) ClosePending() {
	close(s.pendingCh)
}

// SentTransactions returns every TxRequest submitted through the stub.
func (s *StubAdapter) SentTransactions() []TxRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TxRequest, len(s.sent))
	copy(out, s.sent)
	return out
}

// SentBundles returns every private bundle submitted through the stub.
func (s *StubAdapter) SentBundles() [][]TxRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([][]TxRequest, len(s.bundles))
	copy(out, s.bundles)
	return out
}

func (s *StubAdapter) takeFailure(method string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if queue, ok := s.failNext[method]; ok && len(queue) > 0 {
		kind := queue[0]
		if len(queue) == 1 {
			delete(s.failNext, method)
		} else {
			s.failNext[method] = queue[1:]
		}
		return errs.New(kind, "stub: injected %s failure", method)
	}
	return nil
}

// --- ChainAdapter implementation ---

func (s *StubAdapter) Chain() ChainConfig { return s.cfg }

func (s *StubAdapter) BlockNumber(ctx context.Context) (uint64, error) {
	if err := s.takeFailure("BlockNumber"); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.blockNumber, nil
}

func (s *StubAdapter) BlockWithTxs(ctx context.Context, number uint64) (*Block, error) {
	if err := s.takeFailure("BlockWithTxs"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blocks[number]
	if !ok {
		return nil, errs.New(errs.ChainUnavailable, "stub: no block %d", number)
	}
	return b, nil
}

func (s *StubAdapter) TransactionByHash(ctx context.Context, h Hash) (*Transaction, error) {
	if err := s.takeFailure("TransactionByHash"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.txs[h]
	if !ok {
		return nil, fmt.Errorf("stub: no transaction %s", h)
	}
	return tx, nil
}

func (s *StubAdapter) TransactionReceipt(ctx context.Context, h Hash) (*Receipt, error) {
	if err := s.takeFailure("TransactionReceipt"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.receipts[h]
	if !ok {
		return nil, nil // not mined yet
	}
	return r, nil
}

func (s *StubAdapter) GasPrice(ctx context.Context) (decimal.Decimal, error) {
	if err := s.takeFailure("GasPrice"); err != nil {
		return decimal.Zero, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gasPrice, nil
}

func (s *StubAdapter) BaseFee(ctx context.Context) (decimal.Decimal, error) {
	if err := s.takeFailure("BaseFee"); err != nil {
		return decimal.Zero, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.cfg.EIP1559 {
		return decimal.Zero, nil
	}
	return s.baseFee, nil
}

func (s *StubAdapter) Balance(ctx context.Context, addr Address) (decimal.Decimal, error) {
	if err := s.takeFailure("Balance"); err != nil {
		return decimal.Zero, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[addr], nil
}

func (s *StubAdapter) TokenBalance(ctx context.Context, token, addr Address) (decimal.Decimal, error) {
	if err := s.takeFailure("TokenBalance"); err != nil {
		return decimal.Zero, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m := s.tokenBals[token]; m != nil {
		return m[addr], nil
	}
	return decimal.Zero, nil
}

func (s *StubAdapter) Allowance(ctx context.Context, token, owner, spender Address) (decimal.Decimal, error) {
	if err := s.takeFailure("Allowance"); err != nil {
		return decimal.Zero, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.allowances[allowanceKey(token, owner, spender)], nil
}

func (s *StubAdapter) TransactionCount(ctx context.Context, addr Address) (uint64, error) {
	if err := s.takeFailure("TransactionCount"); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nonces[addr], nil
}

func (s *StubAdapter) AmountsOut(ctx context.Context, amountIn decimal.Decimal, path []Address) ([]decimal.Decimal, error) {
	if err := s.takeFailure("AmountsOut"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(path) < 2 {
		return nil, fmt.Errorf("stub: path too short")
	}
	out := make([]decimal.Decimal, len(path))
	out[0] = amountIn
	current := amountIn
	for i := 1; i < len(path); i++ {
		if path[i] == s.cfg.WrappedNative {
			// token -> native leg: invert the token's rate
			rate := s.rates[path[i-1]]
			if rate.IsPositive() {
				current = current.Div(rate)
			}
			if tax, ok := s.sellTaxes[path[i-1]]; ok && tax.IsPositive() {
				current = current.Mul(decimal.NewFromInt(1).Sub(tax))
			}
		} else {
			rate, ok := s.rates[path[i]]
			if !ok {
				return nil, errs.New(errs.ChainUnavailable, "stub: no rate for %s", path[i])
			}
			current = current.Mul(rate)
		}
		out[i] = current
	}
	return out, nil
}

func (s *StubAdapter) Pair(ctx context.Context, tokenA, tokenB Address) (Address, error) {
	if err := s.takeFailure("Pair"); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pairs[pairKey(tokenA, tokenB)], nil
}

func (s *StubAdapter) TokenInfo(ctx context.Context, token Address) (*TokenInfo, error) {
	if err := s.takeFailure("TokenInfo"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.tokens[token]
	if !ok {
		return nil, errs.New(errs.ChainUnavailable, "stub: no token %s", token)
	}
	return info, nil
}

func (s *StubAdapter) TopHolders(ctx context.Context, token Address, limit int) ([]HolderInfo, error) {
	if err := s.takeFailure("TopHolders"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	hs := s.holders[token]
	if len(hs) > limit {
		hs = hs[:limit]
	}
	out := make([]HolderInfo, len(hs))
	copy(out, hs)
	return out, nil
}

func (s *StubAdapter) NativePriceUSD(ctx context.Context) (decimal.Decimal, error) {
	if err := s.takeFailure("NativePriceUSD"); err != nil {
		return decimal.Zero, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nativeUSD, nil
}

func (s *StubAdapter) EstimateGas(ctx context.Context, req TxRequest) (uint64, error) {
	if err := s.takeFailure("EstimateGas"); err != nil {
		return 0, err
	}
	return 150_000, nil
}

func (s *StubAdapter) SubscribePendingTxs(ctx context.Context) (<-chan Transaction, error) {
	if err := s.takeFailure("SubscribePendingTxs"); err != nil {
		return nil, err
	}
	return s.pendingCh, nil
}

func (s *StubAdapter) SendTransaction(ctx context.Context, req TxRequest) (Hash, error) {
	if err := s.takeFailure("SendTransaction"); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendCounter++
	h := Hash(fmt.Sprintf("0xstub%060d", s.sendCounter))
	s.sent = append(s.sent, req)
	s.sentHashes = append(s.sentHashes, h)
	s.nonces[req.From] = req.Nonce + 1
	if s.autoMine {
		s.blockNumber++
		s.receipts[h] = &Receipt{
			TxHash:      h,
			BlockNumber: s.blockNumber,
			Success:     true,
			GasUsed:     120_000,
		}
	}
	return h, nil
}

// SetAutoMine makes every SendTransaction mine a success receipt in its
// own block immediately.
func (s *StubAdapter) SetAutoMine(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoMine = on
}

// LastSentHash returns the hash of the most recent SendTransaction.
func (s *StubAdapter) LastSentHash() Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.sentHashes) == 0 {
		return ""
	}
	return s.sentHashes[len(s.sentHashes)-1]
}

func (s *StubAdapter) ApproveToken(ctx context.Context, token, spender Address, amount decimal.Decimal) (Hash, error) {
	if err := s.takeFailure("ApproveToken"); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendCounter++
	h := Hash(fmt.Sprintf("0xapprove%057d", s.sendCounter))
	// Stub approvals are instantly mined.
	s.receipts[h] = &Receipt{TxHash: h, BlockNumber: s.blockNumber, Success: true, GasUsed: 46_000}
	return h, nil
}

func (s *StubAdapter) Health(ctx context.Context) error {
	return s.takeFailure("Health")
}

// --- PrivateRelay implementation ---

func (s *StubAdapter) SendPrivateBundle(ctx context.Context, txs []TxRequest, targetBlock uint64) (Hash, error) {
	if err := s.takeFailure("SendPrivateBundle"); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendCounter++
	bundle := make([]TxRequest, len(txs))
	copy(bundle, txs)
	s.bundles = append(s.bundles, bundle)
	h := Hash(fmt.Sprintf("0xbundle%058d", s.sendCounter))
	for _, tx := range txs {
		s.nonces[tx.From] = tx.Nonce + 1
	}
	if s.autoMine {
		s.blockNumber++
		s.receipts[h] = &Receipt{
			TxHash:      h,
			BlockNumber: s.blockNumber,
			Success:     true,
			GasUsed:     120_000,
		}
	}
	return h, nil
}

func (s *StubAdapter) SimulateBundle(ctx context.Context, txs []TxRequest, targetBlock uint64) error {
	return s.takeFailure("SimulateBundle")
}

func allowanceKey(token, owner, spender Address) string {
	return string(token) + "|" + string(owner) + "|" + string(spender)
}

func pairKey(a, b Address) string {
	if a < b {
		return string(a) + "|" + string(b)
	}
	return string(b) + "|" + string(a)
}
