package sysvar

import (
	"bytes"
	"math"

	bin "github.com/gagliardetto/binary"
)

const (
	// AccountStorageOverhead is charged on top of the data length of every account.
	AccountStorageOverhead = 128

	DefaultLamportsPerByteYear = 3480
	DefaultExemptionThreshold  = 2.0
	DefaultBurnPercent         = 50

	// RentSize is the serialized length of the Rent sysvar.
	RentSize = 17
)

type Rent struct {
	LamportsPerByteYear uint64
	ExemptionThreshold  float64
	BurnPercent         uint8
}

func DefaultRent() Rent {
	return Rent{
		LamportsPerByteYear: DefaultLamportsPerByteYear,
		ExemptionThreshold:  DefaultExemptionThreshold,
		BurnPercent:         DefaultBurnPercent,
	}
}

// MinimumBalance returns the rent-exempt minimum for an account holding
// dataLen bytes.
func (r Rent) MinimumBalance(dataLen uint64) uint64 {
	bytesPerYear := (AccountStorageOverhead + dataLen) * r.LamportsPerByteYear
	return uint64(float64(bytesPerYear) * r.ExemptionThreshold)
}

// IsExempt reports whether lamports cover the minimum for dataLen.
func (r Rent) IsExempt(lamports, dataLen uint64) bool {
	return lamports >= r.MinimumBalance(dataLen)
}

func (r Rent) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := enc.WriteUint64(r.LamportsPerByteYear, bin.LE); err != nil {
		return err
	}
	if err := enc.WriteUint64(math.Float64bits(r.ExemptionThreshold), bin.LE); err != nil {
		return err
	}
	return enc.WriteUint8(r.BurnPercent)
}

func (r *Rent) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if r.LamportsPerByteYear, err = dec.ReadUint64(bin.LE); err != nil {
		return err
	}
	bits, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return err
	}
	r.ExemptionThreshold = math.Float64frombits(bits)
	r.BurnPercent, err = dec.ReadUint8()
	return err
}

func (r Rent) Bytes() []byte {
	buf := new(bytes.Buffer)
	_ = r.MarshalWithEncoder(bin.NewBinEncoder(buf))
	return buf.Bytes()
}

func DecodeRent(data []byte) (Rent, error) {
	var r Rent
	err := r.UnmarshalWithDecoder(bin.NewBinDecoder(data))
	return r, err
}
