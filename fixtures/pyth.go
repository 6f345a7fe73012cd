package fixtures

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

const (
	PythMagic            = 0xa1b2c3d4
	PythVersion          = 2
	PythAccountTypePrice = 3

	PriceComponents  = 32
	PriceAccountSize = 3312
)

var ErrInvalidPriceAccount = errors.New("invalid pyth price account")

type PriceStatus uint32

const (
	PriceStatusUnknown PriceStatus = iota
	PriceStatusTrading
	PriceStatusHalted
	PriceStatusAuction
	PriceStatusIgnored
)

type PriceType uint32

const (
	PriceTypeUnknown PriceType = iota
	PriceTypePrice
)

type Rational struct {
	Val   int64
	Numer int64
	Denom int64
}

type PriceInfo struct {
	Price   int64
	Conf    uint64
	Status  PriceStatus
	CorpAct uint32
	PubSlot uint64
}

type PriceComp struct {
	Publisher solana.PublicKey
	Agg       PriceInfo
	Latest    PriceInfo
}

// PriceAccount is a Pyth v2 price feed account.
type PriceAccount struct {
	Magic         uint32
	Ver           uint32
	Atype         uint32
	Size          uint32
	Ptype         PriceType
	Expo          int32
	Num           uint32
	NumQt         uint32
	LastSlot      uint64
	ValidSlot     uint64
	EmaPrice      Rational
	EmaConf       Rational
	Timestamp     int64
	MinPub        uint8
	Drv2          uint8
	Drv3          uint16
	Drv4          uint32
	Prod          solana.PublicKey
	Next          solana.PublicKey
	PrevSlot      uint64
	PrevPrice     int64
	PrevConf      uint64
	PrevTimestamp int64
	Agg           PriceInfo
	Comp          [PriceComponents]PriceComp
}

// NewPriceAccount fills a price account around an aggregate price.
func NewPriceAccount(agg PriceInfo, timestamp int64) PriceAccount {
	return PriceAccount{
		Magic:         PythMagic,
		Ver:           PythVersion,
		Expo:          5,
		Atype:         PythAccountTypePrice,
		Agg:           agg,
		Timestamp:     timestamp,
		PrevTimestamp: 100,
		PrevPrice:     60,
		PrevConf:      70,
		PrevSlot:      1,
	}
}

func (w *layoutWriter) rational(r Rational) {
	w.i64(r.Val)
	w.i64(r.Numer)
	w.i64(r.Denom)
}

func (w *layoutWriter) priceInfo(p PriceInfo) {
	w.i64(p.Price)
	w.u64(p.Conf)
	w.u32(uint32(p.Status))
	w.u32(p.CorpAct)
	w.u64(p.PubSlot)
}

func (r *layoutReader) rational() Rational {
	return Rational{Val: r.i64(), Numer: r.i64(), Denom: r.i64()}
}

func (r *layoutReader) priceInfo() PriceInfo {
	return PriceInfo{
		Price:   r.i64(),
		Conf:    r.u64(),
		Status:  PriceStatus(r.u32()),
		CorpAct: r.u32(),
		PubSlot: r.u64(),
	}
}

func (p PriceAccount) Pack() ([]byte, error) {
	w := newLayoutWriter(PriceAccountSize)
	w.u32(p.Magic)
	w.u32(p.Ver)
	w.u32(p.Atype)
	w.u32(p.Size)
	w.u32(uint32(p.Ptype))
	w.i32(p.Expo)
	w.u32(p.Num)
	w.u32(p.NumQt)
	w.u64(p.LastSlot)
	w.u64(p.ValidSlot)
	w.rational(p.EmaPrice)
	w.rational(p.EmaConf)
	w.i64(p.Timestamp)
	w.u8(p.MinPub)
	w.u8(p.Drv2)
	w.u16(p.Drv3)
	w.u32(p.Drv4)
	w.key(p.Prod)
	w.key(p.Next)
	w.u64(p.PrevSlot)
	w.i64(p.PrevPrice)
	w.u64(p.PrevConf)
	w.i64(p.PrevTimestamp)
	w.priceInfo(p.Agg)
	for _, c := range p.Comp {
		w.key(c.Publisher)
		w.priceInfo(c.Agg)
		w.priceInfo(c.Latest)
	}
	return w.bytes()
}

// DecodePriceAccount parses a price account and checks its magic, version
// and account type.
func DecodePriceAccount(data []byte) (PriceAccount, error) {
	if len(data) < PriceAccountSize {
		return PriceAccount{}, fmt.Errorf("%w: %d bytes, want %d", ErrInvalidPriceAccount, len(data), PriceAccountSize)
	}
	r := newLayoutReader(data)
	var p PriceAccount
	p.Magic = r.u32()
	p.Ver = r.u32()
	p.Atype = r.u32()
	p.Size = r.u32()
	p.Ptype = PriceType(r.u32())
	p.Expo = r.i32()
	p.Num = r.u32()
	p.NumQt = r.u32()
	p.LastSlot = r.u64()
	p.ValidSlot = r.u64()
	p.EmaPrice = r.rational()
	p.EmaConf = r.rational()
	p.Timestamp = r.i64()
	p.MinPub = r.u8()
	p.Drv2 = r.u8()
	p.Drv3 = r.u16()
	p.Drv4 = r.u32()
	p.Prod = r.key()
	p.Next = r.key()
	p.PrevSlot = r.u64()
	p.PrevPrice = r.i64()
	p.PrevConf = r.u64()
	p.PrevTimestamp = r.i64()
	p.Agg = r.priceInfo()
	for i := range p.Comp {
		p.Comp[i].Publisher = r.key()
		p.Comp[i].Agg = r.priceInfo()
		p.Comp[i].Latest = r.priceInfo()
	}
	if r.err != nil {
		return PriceAccount{}, fmt.Errorf("%w: %w", ErrInvalidPriceAccount, r.err)
	}
	switch {
	case p.Magic != PythMagic:
		return PriceAccount{}, fmt.Errorf("%w: bad magic %#x", ErrInvalidPriceAccount, p.Magic)
	case p.Ver != PythVersion:
		return PriceAccount{}, fmt.Errorf("%w: unsupported version %d", ErrInvalidPriceAccount, p.Ver)
	case p.Atype != PythAccountTypePrice:
		return PriceAccount{}, fmt.Errorf("%w: account type %d is not a price account", ErrInvalidPriceAccount, p.Atype)
	}
	return p, nil
}
