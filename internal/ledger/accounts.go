// Package ledger decodes raw on-chain account bytes into typed state.
// All multi-byte integers are little-endian.
package ledger

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/mr-tron/base58"

	"dex_go/internal/domain"
)

// Account sizes and filter offsets.
const (
	TokenAccountSize = 165
	MintAccountSize  = 82
	MarketAccountSize = 8 + 6*32 + 16
	OpenOrdersAccountSize = 2*32 + 4*8

	// Token accounts carry their owner at a fixed offset, which lets a
	// program scan narrow to one wallet via memcmp.
	TokenAccountOwnerOffset = 32
	OpenOrdersOwnerOffset   = 32
	OpenOrdersMarketOffset  = 0

	bookHeaderSize  = 12
	orderRecordSize = 8 + 8 + 32 + 16
	fillRecordSize  = 16 + 32 + 1 + 1 + 8 + 8 + 8
)

// TokenAccountState is a decoded token holding account.
type TokenAccountState struct {
	Mint   string
	Owner  string
	Amount uint64
}

// MintState is a decoded token mint.
type MintState struct {
	Supply      uint64
	Decimals    uint8
	Initialized bool
}

// MarketState is a decoded market account.
type MarketState struct {
	Flags        uint64
	OwnAddress   string
	BaseMint     string
	QuoteMint    string
	Bids         string
	Asks         string
	EventQueue   string
	BaseLotSize  uint64
	QuoteLotSize uint64
}

// BookOrder is a single resting order on one side of the book.
type BookOrder struct {
	PriceLots uint64
	SizeLots  uint64
	Owner     string // open-orders account address
	OrderID   string // u128, decimal form
}

// BookState is a decoded bids or asks account.
type BookState struct {
	Initialized bool
	IsBids      bool
	Orders      []BookOrder
}

// OpenOrdersState is a decoded open-orders account.
type OpenOrdersState struct {
	Market          string
	Owner           string
	BaseTokenFree   uint64
	BaseTokenTotal  uint64
	QuoteTokenFree  uint64
	QuoteTokenTotal uint64
}

// FillEvent is a decoded event-queue fill record.
type FillEvent struct {
	OrderID    string
	OpenOrders string
	Side       domain.Side
	Maker      bool
	PriceLots  uint64
	SizeLots   uint64
	Timestamp  int64
}

// DecodeAddress parses a base58 address into its 32 raw bytes.
func DecodeAddress(address string) ([]byte, error) {
	b, err := base58.Decode(address)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", address, err)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("invalid address %q: %d bytes", address, len(b))
	}
	return b, nil
}

func pubkeyAt(data []byte, offset int) string {
	return base58.Encode(data[offset : offset+32])
}

// orderIDAt renders the 16-byte little-endian order id as a decimal string.
func orderIDAt(data []byte, offset int) string {
	be := make([]byte, 16)
	for i := 0; i < 16; i++ {
		be[15-i] = data[offset+i]
	}
	return new(big.Int).SetBytes(be).String()
}

// DecodeTokenAccount parses a 165-byte token holding account.
func DecodeTokenAccount(data []byte) (*TokenAccountState, error) {
	if len(data) < TokenAccountSize {
		return nil, fmt.Errorf("token account too short: %d bytes", len(data))
	}
	return &TokenAccountState{
		Mint:   pubkeyAt(data, 0),
		Owner:  pubkeyAt(data, 32),
		Amount: binary.LittleEndian.Uint64(data[64:72]),
	}, nil
}

// DecodeMint parses an 82-byte mint account.
func DecodeMint(data []byte) (*MintState, error) {
	if len(data) < MintAccountSize {
		return nil, fmt.Errorf("mint account too short: %d bytes", len(data))
	}
	return &MintState{
		Supply:      binary.LittleEndian.Uint64(data[36:44]),
		Decimals:    data[44],
		Initialized: data[45] != 0,
	}, nil
}

// DecodeMarket parses a market account.
func DecodeMarket(data []byte) (*MarketState, error) {
	if len(data) < MarketAccountSize {
		return nil, fmt.Errorf("market account too short: %d bytes", len(data))
	}
	return &MarketState{
		Flags:        binary.LittleEndian.Uint64(data[0:8]),
		OwnAddress:   pubkeyAt(data, 8),
		BaseMint:     pubkeyAt(data, 40),
		QuoteMint:    pubkeyAt(data, 72),
		Bids:         pubkeyAt(data, 104),
		Asks:         pubkeyAt(data, 136),
		EventQueue:   pubkeyAt(data, 168),
		BaseLotSize:  binary.LittleEndian.Uint64(data[200:208]),
		QuoteLotSize: binary.LittleEndian.Uint64(data[208:216]),
	}, nil
}

// DecodeBook parses a bids or asks account. Orders come back in stored
// order; sorting is the reader's concern.
func DecodeBook(data []byte) (*BookState, error) {
	if len(data) < bookHeaderSize {
		return nil, fmt.Errorf("book account too short: %d bytes", len(data))
	}
	flags := binary.LittleEndian.Uint64(data[0:8])
	count := int(binary.LittleEndian.Uint32(data[8:12]))
	if len(data) < bookHeaderSize+count*orderRecordSize {
		return nil, fmt.Errorf("book account truncated: %d orders in %d bytes", count, len(data))
	}

	state := &BookState{
		Initialized: flags&1 != 0,
		IsBids:      flags&2 != 0,
		Orders:      make([]BookOrder, 0, count),
	}
	for i := 0; i < count; i++ {
		off := bookHeaderSize + i*orderRecordSize
		state.Orders = append(state.Orders, BookOrder{
			PriceLots: binary.LittleEndian.Uint64(data[off : off+8]),
			SizeLots:  binary.LittleEndian.Uint64(data[off+8 : off+16]),
			Owner:     pubkeyAt(data, off+16),
			OrderID:   orderIDAt(data, off+48),
		})
	}
	return state, nil
}

// DecodeOpenOrders parses an open-orders account.
func DecodeOpenOrders(data []byte) (*OpenOrdersState, error) {
	if len(data) < OpenOrdersAccountSize {
		return nil, fmt.Errorf("open-orders account too short: %d bytes", len(data))
	}
	return &OpenOrdersState{
		Market:          pubkeyAt(data, 0),
		Owner:           pubkeyAt(data, 32),
		BaseTokenFree:   binary.LittleEndian.Uint64(data[64:72]),
		BaseTokenTotal:  binary.LittleEndian.Uint64(data[72:80]),
		QuoteTokenFree:  binary.LittleEndian.Uint64(data[80:88]),
		QuoteTokenTotal: binary.LittleEndian.Uint64(data[88:96]),
	}, nil
}

// DecodeFillEvents parses an event-queue account: a u32 record count
// followed by fixed-size fill records.
func DecodeFillEvents(data []byte) ([]FillEvent, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("event queue too short: %d bytes", len(data))
	}
	count := int(binary.LittleEndian.Uint32(data[0:4]))
	if len(data) < 4+count*fillRecordSize {
		return nil, fmt.Errorf("event queue truncated: %d events in %d bytes", count, len(data))
	}

	events := make([]FillEvent, 0, count)
	for i := 0; i < count; i++ {
		off := 4 + i*fillRecordSize
		side := domain.SideBuy
		if data[off+48] != 0 {
			side = domain.SideSell
		}
		events = append(events, FillEvent{
			OrderID:    orderIDAt(data, off),
			OpenOrders: pubkeyAt(data, off+16),
			Side:       side,
			Maker:      data[off+49] != 0,
			PriceLots:  binary.LittleEndian.Uint64(data[off+50 : off+58]),
			SizeLots:   binary.LittleEndian.Uint64(data[off+58 : off+66]),
			Timestamp:  int64(binary.LittleEndian.Uint64(data[off+66 : off+74])),
		})
	}
	return events, nil
}
