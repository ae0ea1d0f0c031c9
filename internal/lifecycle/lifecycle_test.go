package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"dex_go/internal/cache"
	"dex_go/internal/domain"
)

const (
	ownerPub  = "FWwRjB8pxzb1F1pcEgSBkEWUtJvt8XFHvUMYUksT4dVC"
	mktAddr   = "9wFFyRfZBsuAha4YcuxcXLKwMxJR43S7fPfQLusDBzvT"
	payerAcct = "HRk9CMrpq7Jn9sh7mzxE8CChHG8dneX9p475QKz4Fsfc"
	ooAcct    = "9wH4Krv8Vim3op3JAu5NGZQdGxU8HLGAHZh3K77CemxC"
)

type fakeWallet struct {
	connected bool
	payloads  [][]byte
	sendErr   error
}

func (w *fakeWallet) PublicKey() string {
	if !w.connected {
		return ""
	}
	return ownerPub
}
func (w *fakeWallet) Connected() bool { return w.connected }
func (w *fakeWallet) Connect() error  { w.connected = true; return nil }
func (w *fakeWallet) Disconnect()     { w.connected = false }

func (w *fakeWallet) SignAndSend(ctx context.Context, payload []byte) (string, error) {
	if w.sendErr != nil {
		return "", w.sendErr
	}
	w.payloads = append(w.payloads, payload)
	return "sig-1", nil
}

// handle with tick size 0.01 and min order size 0.001.
func testHandle() *domain.MarketHandle {
	return &domain.MarketHandle{
		Address:       mktAddr,
		Name:          "SOL/USDC",
		BaseLotSize:   1_000_000,
		QuoteLotSize:  10,
		BaseDecimals:  9,
		QuoteDecimals: 6,
	}
}

func testLifecycle(w *fakeWallet, handle *domain.MarketHandle) (*Lifecycle, *cache.Cache) {
	c := cache.New()
	l := New(w, c, func() *domain.MarketHandle { return handle }, nil)
	return l, c
}

func validParams() PlaceOrderParams {
	return PlaceOrderParams{
		Side:         domain.SideBuy,
		Type:         domain.OrderTypeLimit,
		Price:        decimal.RequireFromString("10.50"),
		Size:         decimal.RequireFromString("2"),
		PayerAccount: payerAcct,
	}
}

func orderKind(err error) (domain.ErrorKind, bool) {
	var oe *domain.OrderError
	if errors.As(err, &oe) {
		return oe.Kind, true
	}
	return "", false
}

func TestPlaceOrderValidationOrder(t *testing.T) {
	w := &fakeWallet{}
	l, _ := testLifecycle(w, testHandle())
	ctx := context.Background()

	// Disconnected wallet fails before anything else.
	if _, err := l.PlaceOrder(ctx, validParams()); err == nil {
		t.Fatal("expected error")
	} else if k, _ := orderKind(err); k != domain.KindNotConnected {
		t.Errorf("kind = %s, want NotConnected", k)
	}

	w.Connect()

	// No market.
	noMarket, _ := testLifecycle(w, nil)
	if _, err := noMarket.PlaceOrder(ctx, validParams()); err == nil {
		t.Fatal("expected error")
	} else if k, _ := orderKind(err); k != domain.KindMissingMarket {
		t.Errorf("kind = %s, want MissingMarket", k)
	}

	cases := []struct {
		name   string
		mutate func(*PlaceOrderParams)
		kind   domain.ErrorKind
	}{
		{"bad side", func(p *PlaceOrderParams) { p.Side = "hold" }, domain.KindValidation},
		{"bad type", func(p *PlaceOrderParams) { p.Type = "stop" }, domain.KindValidation},
		{"zero price", func(p *PlaceOrderParams) { p.Price = decimal.Zero }, domain.KindValidation},
		{"negative size", func(p *PlaceOrderParams) { p.Size = decimal.RequireFromString("-1") }, domain.KindValidation},
		{"size below minimum", func(p *PlaceOrderParams) { p.Size = decimal.RequireFromString("0.0001") }, domain.KindValidation},
		{"off-tick price", func(p *PlaceOrderParams) { p.Price = decimal.RequireFromString("10.505") }, domain.KindValidation},
		{"no payer", func(p *PlaceOrderParams) { p.PayerAccount = "" }, domain.KindMissingAccount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := validParams()
			tc.mutate(&p)
			_, err := l.PlaceOrder(ctx, p)
			if err == nil {
				t.Fatal("expected error")
			}
			if k, ok := orderKind(err); !ok || k != tc.kind {
				t.Errorf("kind = %s, want %s", k, tc.kind)
			}
		})
	}

	// Nothing reached the wallet.
	if len(w.payloads) != 0 {
		t.Errorf("wallet saw %d payloads during validation failures", len(w.payloads))
	}
}

func TestPlaceOrderSuccessInvalidatesCaches(t *testing.T) {
	w := &fakeWallet{}
	w.Connect()
	l, c := testLifecycle(w, testHandle())
	ctx := context.Background()

	// Warm the wallet-state caches.
	loads := 0
	loader := func(ctx context.Context) (any, error) { loads++; return "v", nil }
	c.Get(ctx, cache.TokenAccountsKey(ownerPub), loader, time.Hour)
	c.Get(ctx, cache.OpenOrdersKey(mktAddr, ownerPub), loader, time.Hour)
	if loads != 2 {
		t.Fatalf("warmup loads = %d, want 2", loads)
	}

	sig, err := l.PlaceOrder(ctx, validParams())
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if sig != "sig-1" {
		t.Errorf("sig = %s", sig)
	}

	// Both caches reload despite being inside their refresh interval.
	c.Get(ctx, cache.TokenAccountsKey(ownerPub), loader, time.Hour)
	c.Get(ctx, cache.OpenOrdersKey(mktAddr, ownerPub), loader, time.Hour)
	if loads != 4 {
		t.Errorf("loads after mutation = %d, want 4", loads)
	}

	// Payload carries lot-converted price and size.
	var instr map[string]any
	if err := json.Unmarshal(w.payloads[0], &instr); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	if instr["kind"] != "newOrder" || instr["market"] != mktAddr || instr["owner"] != ownerPub {
		t.Errorf("payload = %v", instr)
	}
	// price 10.50 at tick 0.01 -> 1050 lots; size 2 at lot 0.001 -> 2000 lots.
	if instr["price_lots"].(float64) != 1050 || instr["size_lots"].(float64) != 2000 {
		t.Errorf("lots = %v/%v, want 1050/2000", instr["price_lots"], instr["size_lots"])
	}
}

func TestPlaceOrderTransportFailureVerbatim(t *testing.T) {
	w := &fakeWallet{sendErr: errors.New("custom program error: 0x22")}
	w.Connect()
	l, c := testLifecycle(w, testHandle())
	ctx := context.Background()

	loads := 0
	loader := func(ctx context.Context) (any, error) { loads++; return "v", nil }
	c.Get(ctx, cache.TokenAccountsKey(ownerPub), loader, time.Hour)

	_, err := l.PlaceOrder(ctx, validParams())
	var oe *domain.OrderError
	if !errors.As(err, &oe) {
		t.Fatalf("err = %v", err)
	}
	if oe.Kind != domain.KindTransportFailure {
		t.Errorf("kind = %s, want TransportFailure", oe.Kind)
	}
	if !errors.Is(err, w.sendErr) {
		t.Error("transport error not carried verbatim")
	}

	// Failed mutations leave caches alone.
	c.Get(ctx, cache.TokenAccountsKey(ownerPub), loader, time.Hour)
	if loads != 1 {
		t.Errorf("loads = %d after failed place, want 1", loads)
	}
}

func TestCancelOrder(t *testing.T) {
	w := &fakeWallet{}
	w.Connect()
	l, _ := testLifecycle(w, testHandle())
	ctx := context.Background()

	order := domain.OpenOrderRecord{
		OrderID:       "42",
		Side:          domain.SideSell,
		OpenOrders:    ooAcct,
		MarketAddress: mktAddr,
	}
	if _, err := l.CancelOrder(ctx, order); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}

	var instr map[string]any
	json.Unmarshal(w.payloads[0], &instr)
	if instr["kind"] != "cancelOrder" || instr["order_id"] != "42" || instr["open_orders"] != ooAcct {
		t.Errorf("payload = %v", instr)
	}

	// Missing order id.
	if _, err := l.CancelOrder(ctx, domain.OpenOrderRecord{OpenOrders: ooAcct}); err == nil {
		t.Error("expected validation error")
	} else if k, _ := orderKind(err); k != domain.KindValidation {
		t.Errorf("kind = %s, want Validation", k)
	}
}

func TestSettleFunds(t *testing.T) {
	w := &fakeWallet{}
	l, _ := testLifecycle(w, testHandle())
	ctx := context.Background()

	settleKind := func(err error) domain.ErrorKind {
		var se *domain.SettleError
		if errors.As(err, &se) {
			return se.Kind
		}
		return ""
	}

	if _, err := l.SettleFunds(ctx, ooAcct, payerAcct, payerAcct); settleKind(err) != domain.KindNotConnected {
		t.Errorf("disconnected settle err = %v", err)
	}

	w.Connect()
	if _, err := l.SettleFunds(ctx, "", payerAcct, payerAcct); settleKind(err) != domain.KindMissingAccount {
		t.Errorf("no open-orders settle err = %v", err)
	}
	if _, err := l.SettleFunds(ctx, ooAcct, "", payerAcct); settleKind(err) != domain.KindMissingAccount {
		t.Errorf("no base wallet settle err = %v", err)
	}

	sig, err := l.SettleFunds(ctx, ooAcct, payerAcct, payerAcct)
	if err != nil {
		t.Fatalf("SettleFunds: %v", err)
	}
	if sig != "sig-1" {
		t.Errorf("sig = %s", sig)
	}
}
