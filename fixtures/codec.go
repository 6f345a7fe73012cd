package fixtures

import (
	"bytes"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// layoutWriter writes little-endian fields and keeps the first error.
type layoutWriter struct {
	buf *bytes.Buffer
	enc *bin.Encoder
	err error
}

func newLayoutWriter(capacity int) *layoutWriter {
	buf := bytes.NewBuffer(make([]byte, 0, capacity))
	return &layoutWriter{buf: buf, enc: bin.NewBinEncoder(buf)}
}

func (w *layoutWriter) u8(v uint8) {
	if w.err == nil {
		w.err = w.enc.WriteUint8(v)
	}
}

func (w *layoutWriter) u16(v uint16) {
	if w.err == nil {
		w.err = w.enc.WriteUint16(v, bin.LE)
	}
}

func (w *layoutWriter) u32(v uint32) {
	if w.err == nil {
		w.err = w.enc.WriteUint32(v, bin.LE)
	}
}

func (w *layoutWriter) i32(v int32) {
	if w.err == nil {
		w.err = w.enc.WriteInt32(v, bin.LE)
	}
}

func (w *layoutWriter) u64(v uint64) {
	if w.err == nil {
		w.err = w.enc.WriteUint64(v, bin.LE)
	}
}

func (w *layoutWriter) i64(v int64) {
	if w.err == nil {
		w.err = w.enc.WriteInt64(v, bin.LE)
	}
}

func (w *layoutWriter) key(k solana.PublicKey) {
	if w.err == nil {
		w.err = w.enc.WriteBytes(k[:], false)
	}
}

func (w *layoutWriter) bool(v bool) {
	if v {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

// COption<Pubkey>: u32 tag then the key, zeroed when absent.
func (w *layoutWriter) optionKey(k *solana.PublicKey) {
	if k == nil {
		w.u32(0)
		w.key(solana.PublicKey{})
		return
	}
	w.u32(1)
	w.key(*k)
}

func (w *layoutWriter) optionU64(v *uint64) {
	if v == nil {
		w.u32(0)
		w.u64(0)
		return
	}
	w.u32(1)
	w.u64(*v)
}

func (w *layoutWriter) bytes() ([]byte, error) {
	return w.buf.Bytes(), w.err
}

// layoutReader mirrors layoutWriter.
type layoutReader struct {
	dec *bin.Decoder
	err error
}

func newLayoutReader(data []byte) *layoutReader {
	return &layoutReader{dec: bin.NewBinDecoder(data)}
}

func (r *layoutReader) u8() (v uint8) {
	if r.err == nil {
		v, r.err = r.dec.ReadUint8()
	}
	return v
}

func (r *layoutReader) u16() (v uint16) {
	if r.err == nil {
		v, r.err = r.dec.ReadUint16(bin.LE)
	}
	return v
}

func (r *layoutReader) u32() (v uint32) {
	if r.err == nil {
		v, r.err = r.dec.ReadUint32(bin.LE)
	}
	return v
}

func (r *layoutReader) i32() (v int32) {
	if r.err == nil {
		v, r.err = r.dec.ReadInt32(bin.LE)
	}
	return v
}

func (r *layoutReader) u64() (v uint64) {
	if r.err == nil {
		v, r.err = r.dec.ReadUint64(bin.LE)
	}
	return v
}

func (r *layoutReader) i64() (v int64) {
	if r.err == nil {
		v, r.err = r.dec.ReadInt64(bin.LE)
	}
	return v
}

func (r *layoutReader) key() solana.PublicKey {
	if r.err != nil {
		return solana.PublicKey{}
	}
	b, err := r.dec.ReadNBytes(32)
	if err != nil {
		r.err = err
		return solana.PublicKey{}
	}
	return solana.PublicKeyFromBytes(b)
}

func (r *layoutReader) bool() bool {
	return r.u8() != 0
}

func (r *layoutReader) optionKey() *solana.PublicKey {
	tag := r.u32()
	k := r.key()
	if tag == 0 || r.err != nil {
		return nil
	}
	return &k
}

func (r *layoutReader) optionU64() *uint64 {
	tag := r.u32()
	v := r.u64()
	if tag == 0 || r.err != nil {
		return nil
	}
	return &v
}
