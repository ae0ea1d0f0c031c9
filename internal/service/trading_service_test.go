package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"dex_go/internal/balance"
	"dex_go/internal/cache"
	"dex_go/internal/domain"
	"dex_go/internal/infra/rpc"
	"dex_go/internal/ledger"
	"dex_go/internal/registry"
	"dex_go/internal/session"
)

const (
	marketAddr = "HRk9CMrpq7Jn9sh7mzxE8CChHG8dneX9p475QKz4Fsfc"
	bidsAddr   = "9wH4Krv8Vim3op3JAu5NGZQdGxU8HLGAHZh3K77CemxC"
	asksAddr   = "HcVjkXmvA1815Es3pSiibsRaFw8r9Gy7BhyzZX83Zhjx"
	eqAddr     = "7Q4hee42y8ZGguqKmwLhpFNqVTjeVNNBqhx8nt32VF85"
	walletPub  = "FWwRjB8pxzb1F1pcEgSBkEWUtJvt8XFHvUMYUksT4dVC"
	ooMine     = "Fcxy8qYgs8MZqiLx2pijjay6LHsSUqXW47pwMGysa3i9"
	ooOther    = "6xC1ia74NbGZdBkySTw93wdxN4Sh2VfULtXh1utPaJDJ"
	rayAcct    = "CDvQqnMrt9rmjAxGGE6GTPUdzLpEhgNuNZ1tWAvPsF3W"
	srmAcct    = "HfsedaWauvDaLPm6rwgMc6D5QRmhr8siqGtS6tf2wthU"
	rayMint    = "4k3Dyjzvzp8eMZWUXbBCjEvwSkkk59S5iCNLY3QrkX6R"
	usdcMint   = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

type fakeTransport struct {
	accounts        map[string][]byte
	lamports        map[string]uint64
	programAccounts map[string][]rpc.KeyedAccount
}

func (f *fakeTransport) GetAccountInfo(ctx context.Context, address string) (*rpc.AccountInfo, error) {
	data, ok := f.accounts[address]
	lamports := f.lamports[address]
	if !ok && lamports == 0 {
		return nil, nil
	}
	return &rpc.AccountInfo{Data: data, Lamports: lamports}, nil
}

func (f *fakeTransport) GetMultipleAccounts(ctx context.Context, addresses []string) ([]*rpc.AccountInfo, error) {
	out := make([]*rpc.AccountInfo, len(addresses))
	for i, a := range addresses {
		if data, ok := f.accounts[a]; ok {
			out[i] = &rpc.AccountInfo{Data: data, Lamports: f.lamports[a]}
		}
	}
	return out, nil
}

func (f *fakeTransport) GetProgramAccounts(ctx context.Context, programID string, filters ...rpc.Filter) ([]rpc.KeyedAccount, error) {
	return f.programAccounts[programID], nil
}

type fakeWallet struct{ connected bool }

func (w *fakeWallet) PublicKey() string {
	if !w.connected {
		return ""
	}
	return walletPub
}
func (w *fakeWallet) Connected() bool { return w.connected }
func (w *fakeWallet) Connect() error  { w.connected = true; return nil }
func (w *fakeWallet) Disconnect()     { w.connected = false }
func (w *fakeWallet) SignAndSend(ctx context.Context, payload []byte) (string, error) {
	return "sig", nil
}

type fakePrefs struct{ m map[string]string }

func newFakePrefs() *fakePrefs                     { return &fakePrefs{m: make(map[string]string)} }
func (p *fakePrefs) SetPreference(k, v string) error { p.m[k] = v; return nil }
func (p *fakePrefs) GetPreference(k string) (string, error) { return p.m[k], nil }

func bookData(isBids bool, orders []ledger.BookOrder) []byte {
	return ledger.EncodeBook(&ledger.BookState{Initialized: true, IsBids: isBids, Orders: orders})
}

// newTestService selects a market whose lots and decimals are all 1:1, so
// price lots equal prices and size lots equal sizes.
func newTestService(t *testing.T) (*TradingService, *fakeTransport, *fakeWallet, *fakePrefs) {
	t.Helper()

	transport := &fakeTransport{
		accounts: map[string][]byte{
			marketAddr: ledger.EncodeMarket(&ledger.MarketState{
				Flags:        3,
				OwnAddress:   marketAddr,
				BaseMint:     rayMint,
				QuoteMint:    usdcMint,
				Bids:         bidsAddr,
				Asks:         asksAddr,
				EventQueue:   eqAddr,
				BaseLotSize:  1,
				QuoteLotSize: 1,
			}),
			rayMint:  ledger.EncodeMint(&ledger.MintState{Decimals: 0, Initialized: true}),
			usdcMint: ledger.EncodeMint(&ledger.MintState{Decimals: 0, Initialized: true}),
			bidsAddr: bookData(true, []ledger.BookOrder{
				{PriceLots: 10, SizeLots: 5, Owner: ooMine, OrderID: "1"},
				{PriceLots: 9, SizeLots: 5, Owner: ooOther, OrderID: "2"},
			}),
			asksAddr: bookData(false, []ledger.BookOrder{
				{PriceLots: 12, SizeLots: 5, Owner: ooOther, OrderID: "3"},
			}),
			eqAddr: ledger.EncodeFillEvents([]ledger.FillEvent{
				{OrderID: "7", OpenOrders: ooOther, Side: domain.SideBuy, Maker: true, PriceLots: 11, SizeLots: 2, Timestamp: 100},
				{OrderID: "8", OpenOrders: ooMine, Side: domain.SideSell, Maker: false, PriceLots: 11, SizeLots: 2, Timestamp: 101},
				{OrderID: "9", OpenOrders: ooMine, Side: domain.SideSell, Maker: true, PriceLots: 10, SizeLots: 1, Timestamp: 102},
			}),
		},
		lamports:        map[string]uint64{walletPub: 2_000_000_000},
		programAccounts: map[string][]rpc.KeyedAccount{},
	}

	reg, err := registry.NewRegistry(nil, nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if err := reg.AddCustomMarket(domain.CustomMarketInfo{
		Name: "RAY/USDC*", Address: marketAddr, ProgramID: registry.ProgramIDV3,
	}); err != nil {
		t.Fatalf("AddCustomMarket: %v", err)
	}

	c := cache.New()
	prefs := newFakePrefs()
	sess := session.New(session.Options{
		Registry:        reg,
		Cache:           c,
		Fetcher:         transport,
		Prefs:           prefs,
		RefreshInterval: time.Hour,
	})
	if err := sess.Select(context.Background(), marketAddr); err != nil {
		t.Fatalf("Select: %v", err)
	}

	w := &fakeWallet{}
	tokens := registry.NewTokenRegistry()
	agg := balance.NewAggregator(transport, tokens, reg, nil)
	svc := NewTradingService(transport, c, sess, w, agg, tokens, reg, prefs, RefreshTiers{
		VerySlow: time.Hour,
		Slow:     time.Minute,
		Fast:     time.Second,
	}, nil)
	return svc, transport, w, prefs
}

func TestGetOrderBook(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	snap, ok := svc.GetOrderBook(context.Background(), 0)
	if !ok {
		t.Fatal("not loaded")
	}
	if len(snap.Bids) != 2 || len(snap.Asks) != 1 {
		t.Fatalf("levels = %d/%d, want 2/1", len(snap.Bids), len(snap.Asks))
	}
	if !snap.Bids[0].Price.Equal(decimal.NewFromInt(10)) {
		t.Errorf("best bid = %s, want 10", snap.Bids[0].Price)
	}
	if snap.MarketAddress != marketAddr {
		t.Errorf("market = %s", snap.MarketAddress)
	}
}

func TestGetFills(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	fills, ok := svc.GetFills(context.Background())
	if !ok {
		t.Fatal("not loaded")
	}
	// Only maker events survive, newest first, side flipped to taker view.
	if len(fills) != 2 {
		t.Fatalf("fills = %d, want 2", len(fills))
	}
	if fills[0].Time != 102 || fills[1].Time != 100 {
		t.Errorf("order = %d, %d; want newest first", fills[0].Time, fills[1].Time)
	}
	if fills[0].Side != domain.SideBuy {
		t.Errorf("flipped side = %s, want buy", fills[0].Side)
	}
	if fills[1].Side != domain.SideSell {
		t.Errorf("flipped side = %s, want sell", fills[1].Side)
	}
}

type fakeStream struct{ latest map[string][]byte }

func (f *fakeStream) GetLatest(address string) []byte { return f.latest[address] }

func TestBookAndFillsReadStreamedBytes(t *testing.T) {
	svc, transport, _, _ := newTestService(t)
	ctx := context.Background()

	streams := &fakeStream{latest: map[string][]byte{
		bidsAddr: bookData(true, []ledger.BookOrder{
			{PriceLots: 20, SizeLots: 1, Owner: ooOther, OrderID: "4"},
		}),
		asksAddr: bookData(false, []ledger.BookOrder{
			{PriceLots: 21, SizeLots: 1, Owner: ooOther, OrderID: "5"},
		}),
		eqAddr: ledger.EncodeFillEvents([]ledger.FillEvent{
			{OrderID: "6", OpenOrders: ooOther, Side: domain.SideBuy, Maker: true, PriceLots: 20, SizeLots: 1, Timestamp: 200},
		}),
	}}
	svc.AttachStreams(streams)
	// Drop the transport copies: loads must come from the pushed bytes.
	delete(transport.accounts, bidsAddr)
	delete(transport.accounts, asksAddr)
	delete(transport.accounts, eqAddr)

	snap, ok := svc.GetOrderBook(ctx, 0)
	if !ok {
		t.Fatal("not loaded")
	}
	if len(snap.Bids) != 1 || !snap.Bids[0].Price.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("bids = %+v, want single level at 20 from stream", snap.Bids)
	}

	fills, ok := svc.GetFills(ctx)
	if !ok {
		t.Fatal("fills not loaded")
	}
	if len(fills) != 1 || fills[0].OrderID != "6" {
		t.Fatalf("fills = %+v, want the streamed event", fills)
	}

	// A new push plus invalidation refreshes the book within the refresh
	// interval.
	streams.latest[bidsAddr] = bookData(true, []ledger.BookOrder{
		{PriceLots: 22, SizeLots: 1, Owner: ooOther, OrderID: "7"},
	})
	svc.cache.Invalidate(cache.OrderBookKey(marketAddr))

	snap, ok = svc.GetOrderBook(ctx, 0)
	if !ok {
		t.Fatal("not loaded after push")
	}
	if !snap.Bids[0].Price.Equal(decimal.NewFromInt(22)) {
		t.Errorf("best bid = %s after push, want 22", snap.Bids[0].Price)
	}
}

func TestBookFallsBackToTransport(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	// Stream attached but nothing pushed yet for this market.
	svc.AttachStreams(&fakeStream{latest: map[string][]byte{}})

	snap, ok := svc.GetOrderBook(context.Background(), 0)
	if !ok {
		t.Fatal("not loaded")
	}
	if len(snap.Bids) != 2 || len(snap.Asks) != 1 {
		t.Errorf("levels = %d/%d from transport fallback, want 2/1", len(snap.Bids), len(snap.Asks))
	}
}

func TestGetMyFills(t *testing.T) {
	svc, transport, w, _ := newTestService(t)
	ctx := context.Background()
	w.Connect()

	transport.programAccounts[registry.ProgramIDV3] = []rpc.KeyedAccount{
		{PubKey: ooMine, Account: rpc.AccountInfo{Data: ledger.EncodeOpenOrders(&ledger.OpenOrdersState{
			Market: marketAddr, Owner: walletPub,
		})}},
	}

	fills, ok := svc.GetMyFills(ctx)
	if !ok {
		t.Fatal("not loaded")
	}
	if len(fills) != 1 {
		t.Fatalf("fills = %d, want 1", len(fills))
	}
	if fills[0].OpenOrders != ooMine || fills[0].OrderID != "9" {
		t.Errorf("fill = %+v", fills[0])
	}
}

func TestGetMarkPrice(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	// Best bid 10, best ask 12, last trade 10: median 10.
	mp, ok := svc.GetMarkPrice(context.Background())
	if !ok {
		t.Fatal("not loaded")
	}
	if mp == nil || !mp.Equal(decimal.NewFromInt(10)) {
		t.Errorf("mark = %v, want 10", mp)
	}
}

func TestGetOpenOrdersIntersectsBookWithWalletAccounts(t *testing.T) {
	svc, transport, w, _ := newTestService(t)
	ctx := context.Background()

	// Disconnected wallet: not loaded.
	if _, ok := svc.GetOpenOrders(ctx); ok {
		t.Error("loaded without wallet")
	}

	w.Connect()
	transport.programAccounts[registry.ProgramIDV3] = []rpc.KeyedAccount{
		{PubKey: ooMine, Account: rpc.AccountInfo{Data: ledger.EncodeOpenOrders(&ledger.OpenOrdersState{
			Market: marketAddr, Owner: walletPub, BaseTokenFree: 1, BaseTokenTotal: 6, QuoteTokenFree: 2, QuoteTokenTotal: 2,
		})}},
	}

	orders, ok := svc.GetOpenOrders(ctx)
	if !ok {
		t.Fatal("not loaded")
	}
	if len(orders) != 1 {
		t.Fatalf("orders = %d, want 1 (only the wallet's)", len(orders))
	}
	o := orders[0]
	if o.OpenOrders != ooMine || o.OrderID != "1" || o.Side != domain.SideBuy {
		t.Errorf("order = %+v", o)
	}
	if !o.Price.Equal(decimal.NewFromInt(10)) || !o.Size.Equal(decimal.NewFromInt(5)) {
		t.Errorf("price/size = %s/%s, want 10/5", o.Price, o.Size)
	}
}

func TestGetBalances(t *testing.T) {
	svc, transport, w, _ := newTestService(t)
	ctx := context.Background()
	w.Connect()

	transport.programAccounts[domain.TokenProgramID] = []rpc.KeyedAccount{
		{PubKey: rayAcct, Account: rpc.AccountInfo{Data: ledger.EncodeTokenAccount(&ledger.TokenAccountState{
			Mint: rayMint, Owner: walletPub, Amount: 25,
		})}},
	}
	transport.programAccounts[registry.ProgramIDV3] = []rpc.KeyedAccount{
		{PubKey: ooMine, Account: rpc.AccountInfo{Data: ledger.EncodeOpenOrders(&ledger.OpenOrdersState{
			Market: marketAddr, Owner: walletPub,
			BaseTokenFree: 1, BaseTokenTotal: 6,
			QuoteTokenFree: 2, QuoteTokenTotal: 5,
		})}},
	}

	rows, ok := svc.GetBalances(ctx)
	if !ok {
		t.Fatal("not loaded")
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}

	base := rows[0]
	if base.Coin != "RAY" {
		t.Errorf("base coin = %s", base.Coin)
	}
	if base.Wallet == nil || !base.Wallet.Equal(decimal.NewFromInt(25)) {
		t.Errorf("base wallet = %v, want 25", base.Wallet)
	}
	if base.Orders == nil || !base.Orders.Equal(decimal.NewFromInt(5)) {
		t.Errorf("base orders = %v, want 5 (total 6 - free 1)", base.Orders)
	}
	if base.Unsettled == nil || !base.Unsettled.Equal(decimal.NewFromInt(1)) {
		t.Errorf("base unsettled = %v, want 1", base.Unsettled)
	}
	if base.OpenOrders != ooMine {
		t.Errorf("open orders = %s", base.OpenOrders)
	}

	quote := rows[1]
	if quote.Coin != "USDC" {
		t.Errorf("quote coin = %s", quote.Coin)
	}
	// No USDC token account: wallet balance stays nil.
	if quote.Wallet != nil {
		t.Errorf("quote wallet = %v, want nil", quote.Wallet)
	}
	if quote.Orders == nil || !quote.Orders.Equal(decimal.NewFromInt(3)) {
		t.Errorf("quote orders = %v, want 3", quote.Orders)
	}
}

func TestPayerAccountFor(t *testing.T) {
	svc, transport, w, _ := newTestService(t)
	ctx := context.Background()
	w.Connect()

	transport.programAccounts[domain.TokenProgramID] = []rpc.KeyedAccount{
		{PubKey: rayAcct, Account: rpc.AccountInfo{Data: ledger.EncodeTokenAccount(&ledger.TokenAccountState{
			Mint: rayMint, Owner: walletPub, Amount: 25,
		})}},
	}

	if got := svc.PayerAccountFor(ctx, domain.SideSell); got != rayAcct {
		t.Errorf("sell payer = %s, want %s", got, rayAcct)
	}
	// No quote account held.
	if got := svc.PayerAccountFor(ctx, domain.SideBuy); got != "" {
		t.Errorf("buy payer = %s, want empty", got)
	}
}

func TestFeeTierMapping(t *testing.T) {
	cases := []struct {
		msrm, srm string
		want      int
	}{
		{"1", "0", 6},
		{"0.5", "2000000", 5},
		{"0", "1000000", 5},
		{"0", "150000", 4},
		{"0", "10000", 3},
		{"0", "1500", 2},
		{"0", "100", 1},
		{"0", "99", 0},
		{"0", "0", 0},
	}
	for _, tc := range cases {
		got := feeTierFromBalances(decimal.RequireFromString(tc.msrm), decimal.RequireFromString(tc.srm))
		if got != tc.want {
			t.Errorf("feeTierFromBalances(%s, %s) = %d, want %d", tc.msrm, tc.srm, got, tc.want)
		}
	}
}

func TestGetFeeTier(t *testing.T) {
	svc, transport, w, prefs := newTestService(t)
	ctx := context.Background()
	w.Connect()

	transport.programAccounts[domain.TokenProgramID] = []rpc.KeyedAccount{
		{PubKey: srmAcct, Account: rpc.AccountInfo{Data: ledger.EncodeTokenAccount(&ledger.TokenAccountState{
			Mint: registry.SRMMint, Owner: walletPub, Amount: 150_000_000_000, // 150k SRM
		})}},
	}

	tier, ok := svc.GetFeeTier(ctx)
	if !ok {
		t.Fatal("not loaded")
	}
	if tier.Tier != 4 {
		t.Errorf("tier = %d, want 4", tier.Tier)
	}
	if tier.PubKey != srmAcct || tier.Mint != registry.SRMMint {
		t.Errorf("tier account = %+v", tier)
	}
	if !tier.Balance.Equal(decimal.NewFromInt(150_000)) {
		t.Errorf("balance = %s, want 150000", tier.Balance)
	}
	if got, _ := prefs.GetPreference(domain.PrefFeeDiscountKey); got != srmAcct {
		t.Errorf("persisted key = %q, want %q", got, srmAcct)
	}
}

func TestHooksWithoutMarketOrWallet(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	// Wallet-dependent hooks report not loaded while disconnected.
	if _, ok := svc.GetBalances(ctx); ok {
		t.Error("balances loaded without wallet")
	}
	if _, ok := svc.GetFeeTier(ctx); ok {
		t.Error("fee tier loaded without wallet")
	}
	if _, ok := svc.GetTokenAccounts(ctx); ok {
		t.Error("token accounts loaded without wallet")
	}
	if _, ok := svc.GetPortfolioBalances(ctx); ok {
		t.Error("portfolio loaded without wallet")
	}
}
