package locker

import "testing"

func key(b byte) Key {
	var k Key
	k[0] = b
	return k
}

func TestIndexAddAndPeek(t *testing.T) {
	idx := NewIndex()
	k := key(1)
	idx.Add(k, Coin{Den: 2, SN: 10}, Coin{Den: 2, SN: 11})

	coins := idx.Peek(k)
	if len(coins) != 2 {
		t.Fatalf("got %d coins, want 2", len(coins))
	}
}

func TestIndexRemoveDropsEmptyEntry(t *testing.T) {
	idx := NewIndex()
	k := key(2)
	idx.Add(k, Coin{Den: 0, SN: 1})
	idx.Remove(k, Coin{Den: 0, SN: 1})

	if coins := idx.Peek(k); coins != nil {
		t.Fatalf("expected nil after removing last coin, got %v", coins)
	}
}

func TestIndexRemovePartial(t *testing.T) {
	idx := NewIndex()
	k := key(3)
	idx.Add(k, Coin{Den: 0, SN: 1}, Coin{Den: 0, SN: 2})
	idx.Remove(k, Coin{Den: 0, SN: 1})

	coins := idx.Peek(k)
	if len(coins) != 1 || coins[0].SN != 2 {
		t.Fatalf("unexpected remainder: %+v", coins)
	}
}

func TestTradeIndexPutForSaleAndList(t *testing.T) {
	ti := NewTradeIndex()
	k := key(4)
	ti.PutForSale(k, TradePrice{CoinType: 7, Price: 500}, Coin{Den: 1, SN: 9})

	listing := ti.ListForSale(7)
	price, ok := listing[k]
	if !ok {
		t.Fatal("expected key listed under coin type 7")
	}
	if price.Price != 500 {
		t.Fatalf("price = %d, want 500", price.Price)
	}
}

func TestTradeIndexRemoveClearsSecondaryIndex(t *testing.T) {
	ti := NewTradeIndex()
	k := key(5)
	ti.PutForSale(k, TradePrice{CoinType: 3, Price: 1}, Coin{Den: 0, SN: 1})
	ti.Remove(k)

	if listing := ti.ListForSale(3); len(listing) != 0 {
		t.Fatalf("expected empty listing after remove, got %v", listing)
	}
}

func TestBuyTransfersTradeCoinsToLockerIndex(t *testing.T) {
	ti := NewTradeIndex()
	dst := NewIndex()
	tradeKey := key(6)
	buyerKey := key(7)

	ti.PutForSale(tradeKey, TradePrice{CoinType: 1, Price: 100}, Coin{Den: 2, SN: 5})

	coins := Buy(ti, dst, tradeKey, buyerKey)
	if len(coins) != 1 {
		t.Fatalf("Buy returned %d coins, want 1", len(coins))
	}
	if ti.Peek(tradeKey) != nil {
		t.Fatal("expected trade entry removed after buy")
	}
	if got := dst.Peek(buyerKey); len(got) != 1 {
		t.Fatalf("expected buyer locker to hold 1 coin, got %v", got)
	}
}

func TestTradeSuffixPatternDetection(t *testing.T) {
	var trade [16]byte
	trade[14], trade[15] = 0xee, 0xee
	if !TradeSuffixPattern(trade) {
		t.Fatal("expected trade suffix detected")
	}

	var plain [16]byte
	plain[12], plain[13], plain[14], plain[15] = 0xff, 0xff, 0xff, 0xff
	if !PlainLockerSuffixPattern(plain) {
		t.Fatal("expected plain locker suffix detected")
	}
	if TradeSuffixPattern(plain) {
		t.Fatal("plain locker suffix should not match trade pattern")
	}
}

func TestDecodeTradePrice(t *testing.T) {
	var an [16]byte
	an[0] = 9
	an[1], an[2], an[3], an[4] = 0x00, 0x00, 0x01, 0x00 // price = 256

	tp := DecodeTradePrice(an)
	if tp.CoinType != 9 || tp.Price != 256 {
		t.Fatalf("got %+v, want {CoinType:9 Price:256}", tp)
	}
}
