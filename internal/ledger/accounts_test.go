package ledger

import (
	"testing"

	"dex_go/internal/domain"
)

const (
	testMint   = "4k3Dyjzvzp8eMZWUXbBCjEvwSkkk59S5iCNLY3QrkX6R"
	testOwner  = "FWwRjB8pxzb1F1pcEgSBkEWUtJvt8XFHvUMYUksT4dVC"
	testMarket = "9wFFyRfZBsuAha4YcuxcXLKwMxJR43S7fPfQLusDBzvT"
	testOO     = "HRk9CMrpq7Jn9sh7mzxE8CChHG8dneX9p475QKz4Fsfc"
)

func TestTokenAccountRoundTrip(t *testing.T) {
	data := EncodeTokenAccount(&TokenAccountState{
		Mint:   testMint,
		Owner:  testOwner,
		Amount: 123456789,
	})
	if len(data) != TokenAccountSize {
		t.Fatalf("encoded size = %d, want %d", len(data), TokenAccountSize)
	}

	state, err := DecodeTokenAccount(data)
	if err != nil {
		t.Fatalf("DecodeTokenAccount: %v", err)
	}
	if state.Mint != testMint || state.Owner != testOwner || state.Amount != 123456789 {
		t.Errorf("unexpected state: %+v", state)
	}
}

func TestDecodeTokenAccountShort(t *testing.T) {
	if _, err := DecodeTokenAccount(make([]byte, 64)); err == nil {
		t.Error("expected error for short data")
	}
}

func TestMintRoundTrip(t *testing.T) {
	data := EncodeMint(&MintState{Supply: 1_000_000, Decimals: 6, Initialized: true})
	state, err := DecodeMint(data)
	if err != nil {
		t.Fatalf("DecodeMint: %v", err)
	}
	if state.Decimals != 6 || !state.Initialized || state.Supply != 1_000_000 {
		t.Errorf("unexpected state: %+v", state)
	}
}

func TestMarketRoundTrip(t *testing.T) {
	in := &MarketState{
		Flags:        3,
		OwnAddress:   testMarket,
		BaseMint:     testMint,
		QuoteMint:    domain.NativeMint,
		Bids:         testOwner,
		Asks:         testOO,
		EventQueue:   testMint,
		BaseLotSize:  100,
		QuoteLotSize: 10,
	}
	state, err := DecodeMarket(EncodeMarket(in))
	if err != nil {
		t.Fatalf("DecodeMarket: %v", err)
	}
	if *state != *in {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", state, in)
	}
}

func TestBookRoundTrip(t *testing.T) {
	in := &BookState{
		Initialized: true,
		IsBids:      true,
		Orders: []BookOrder{
			{PriceLots: 100, SizeLots: 5, Owner: testOO, OrderID: "340282366920938463463374607431768211455"}, // max u128
			{PriceLots: 99, SizeLots: 10, Owner: testOwner, OrderID: "42"},
		},
	}
	state, err := DecodeBook(EncodeBook(in))
	if err != nil {
		t.Fatalf("DecodeBook: %v", err)
	}
	if !state.Initialized || !state.IsBids {
		t.Errorf("flags lost: %+v", state)
	}
	if len(state.Orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(state.Orders))
	}
	for i := range in.Orders {
		if state.Orders[i] != in.Orders[i] {
			t.Errorf("order %d mismatch:\n got %+v\nwant %+v", i, state.Orders[i], in.Orders[i])
		}
	}
}

func TestDecodeBookTruncated(t *testing.T) {
	data := EncodeBook(&BookState{Initialized: true, Orders: []BookOrder{{PriceLots: 1, SizeLots: 1, Owner: testOO, OrderID: "1"}}})
	if _, err := DecodeBook(data[:len(data)-8]); err == nil {
		t.Error("expected error for truncated book")
	}
}

func TestOpenOrdersRoundTrip(t *testing.T) {
	in := &OpenOrdersState{
		Market:          testMarket,
		Owner:           testOwner,
		BaseTokenFree:   10,
		BaseTokenTotal:  25,
		QuoteTokenFree:  100,
		QuoteTokenTotal: 400,
	}
	state, err := DecodeOpenOrders(EncodeOpenOrders(in))
	if err != nil {
		t.Fatalf("DecodeOpenOrders: %v", err)
	}
	if *state != *in {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", state, in)
	}
}

func TestFillEventsRoundTrip(t *testing.T) {
	in := []FillEvent{
		{OrderID: "7", OpenOrders: testOO, Side: domain.SideSell, Maker: true, PriceLots: 101, SizeLots: 3, Timestamp: 1700000000},
		{OrderID: "8", OpenOrders: testOwner, Side: domain.SideBuy, Maker: false, PriceLots: 100, SizeLots: 1, Timestamp: 1700000001},
	}
	events, err := DecodeFillEvents(EncodeFillEvents(in))
	if err != nil {
		t.Fatalf("DecodeFillEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	for i := range in {
		if events[i] != in[i] {
			t.Errorf("event %d mismatch:\n got %+v\nwant %+v", i, events[i], in[i])
		}
	}
}

func TestDecodeAddressRejectsBadLength(t *testing.T) {
	if _, err := DecodeAddress("abc"); err == nil {
		t.Error("expected error for short address")
	}
}
