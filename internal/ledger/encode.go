package ledger

import (
	"encoding/binary"
	"math/big"

	"dex_go/internal/domain"
)

// Encoders mirror the decoders. They exist so tests and local tooling can
// build synthetic account bytes without a live node.

func putPubkey(data []byte, offset int, address string) {
	b, err := DecodeAddress(address)
	if err != nil {
		return // leave zeroed
	}
	copy(data[offset:offset+32], b)
}

func putOrderID(data []byte, offset int, id string) {
	n, ok := new(big.Int).SetString(id, 10)
	if !ok {
		return
	}
	be := n.FillBytes(make([]byte, 16))
	for i := 0; i < 16; i++ {
		data[offset+i] = be[15-i]
	}
}

// EncodeTokenAccount builds a 165-byte token holding account.
func EncodeTokenAccount(s *TokenAccountState) []byte {
	data := make([]byte, TokenAccountSize)
	putPubkey(data, 0, s.Mint)
	putPubkey(data, 32, s.Owner)
	binary.LittleEndian.PutUint64(data[64:72], s.Amount)
	return data
}

// EncodeMint builds an 82-byte mint account.
func EncodeMint(s *MintState) []byte {
	data := make([]byte, MintAccountSize)
	binary.LittleEndian.PutUint64(data[36:44], s.Supply)
	data[44] = s.Decimals
	if s.Initialized {
		data[45] = 1
	}
	return data
}

// EncodeMarket builds a market account.
func EncodeMarket(s *MarketState) []byte {
	data := make([]byte, MarketAccountSize)
	binary.LittleEndian.PutUint64(data[0:8], s.Flags)
	putPubkey(data, 8, s.OwnAddress)
	putPubkey(data, 40, s.BaseMint)
	putPubkey(data, 72, s.QuoteMint)
	putPubkey(data, 104, s.Bids)
	putPubkey(data, 136, s.Asks)
	putPubkey(data, 168, s.EventQueue)
	binary.LittleEndian.PutUint64(data[200:208], s.BaseLotSize)
	binary.LittleEndian.PutUint64(data[208:216], s.QuoteLotSize)
	return data
}

// EncodeBook builds a bids or asks account.
func EncodeBook(s *BookState) []byte {
	data := make([]byte, bookHeaderSize+len(s.Orders)*orderRecordSize)
	var flags uint64
	if s.Initialized {
		flags |= 1
	}
	if s.IsBids {
		flags |= 2
	}
	binary.LittleEndian.PutUint64(data[0:8], flags)
	binary.LittleEndian.PutUint32(data[8:12], uint32(len(s.Orders)))
	for i, o := range s.Orders {
		off := bookHeaderSize + i*orderRecordSize
		binary.LittleEndian.PutUint64(data[off:off+8], o.PriceLots)
		binary.LittleEndian.PutUint64(data[off+8:off+16], o.SizeLots)
		putPubkey(data, off+16, o.Owner)
		putOrderID(data, off+48, o.OrderID)
	}
	return data
}

// EncodeOpenOrders builds an open-orders account.
func EncodeOpenOrders(s *OpenOrdersState) []byte {
	data := make([]byte, OpenOrdersAccountSize)
	putPubkey(data, 0, s.Market)
	putPubkey(data, 32, s.Owner)
	binary.LittleEndian.PutUint64(data[64:72], s.BaseTokenFree)
	binary.LittleEndian.PutUint64(data[72:80], s.BaseTokenTotal)
	binary.LittleEndian.PutUint64(data[80:88], s.QuoteTokenFree)
	binary.LittleEndian.PutUint64(data[88:96], s.QuoteTokenTotal)
	return data
}

// EncodeFillEvents builds an event-queue account.
func EncodeFillEvents(events []FillEvent) []byte {
	data := make([]byte, 4+len(events)*fillRecordSize)
	binary.LittleEndian.PutUint32(data[0:4], uint32(len(events)))
	for i, e := range events {
		off := 4 + i*fillRecordSize
		putOrderID(data, off, e.OrderID)
		putPubkey(data, off+16, e.OpenOrders)
		if e.Side == domain.SideSell {
			data[off+48] = 1
		}
		if e.Maker {
			data[off+49] = 1
		}
		binary.LittleEndian.PutUint64(data[off+50:off+58], e.PriceLots)
		binary.LittleEndian.PutUint64(data[off+58:off+66], e.SizeLots)
		binary.LittleEndian.PutUint64(data[off+66:off+74], uint64(e.Timestamp))
	}
	return data
}
