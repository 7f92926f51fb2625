package crypto

import (
	"crypto/cipher"
	"encoding/binary"
)

// The GCM construction below follows NIST SP 800-38D with a 96-bit IV and no
// additional data. crypto/cipher only exposes GCM as a one-shot AEAD, so the
// counter mode and GHASH halves are driven separately to stream large archives
// while staying byte-compatible with cipher.NewGCM.

const gcmBlockSize = 16

// maxPlaintextLength is the GCM limit for a 32-bit block counter.
const maxPlaintextLength = (1<<32 - 2) * gcmBlockSize

type fieldElement struct {
	low, high uint64
}

// ghash is an incremental GHASH over ciphertext with zero-length AAD.
type ghash struct {
	table [16]fieldElement
	y     fieldElement
	buf   [gcmBlockSize]byte
	nbuf  int
	n     uint64
}

func newGHASH(h [gcmBlockSize]byte) *ghash {
	g := &ghash{}
	// table holds the 16 multiples of H, indexed in reversed bit order.
	x := fieldElement{
		binary.BigEndian.Uint64(h[:8]),
		binary.BigEndian.Uint64(h[8:]),
	}
	g.table[reverseBits(1)] = x
	for i := 2; i < 16; i += 2 {
		g.table[reverseBits(i)] = fieldDouble(&g.table[reverseBits(i/2)])
		g.table[reverseBits(i+1)] = fieldAdd(&g.table[reverseBits(i)], &x)
	}
	return g
}

func reverseBits(i int) int {
	i = ((i << 2) & 0xc) | ((i >> 2) & 0x3)
	i = ((i << 1) & 0xa) | ((i >> 1) & 0x5)
	return i
}

func fieldAdd(x, y *fieldElement) fieldElement {
	return fieldElement{x.low ^ y.low, x.high ^ y.high}
}

// fieldDouble multiplies by x in GF(2^128); with GCM bit order this is a right shift.
func fieldDouble(x *fieldElement) (double fieldElement) {
	msbSet := x.high&1 == 1

	double.high = x.high >> 1
	double.high |= x.low << 63
	double.low = x.low >> 1

	if msbSet {
		double.low ^= 0xe100000000000000
	}
	return
}

var reductionTable = []uint16{
	0x0000, 0x1c20, 0x3840, 0x2460, 0x7080, 0x6ca0, 0x48c0, 0x54e0,
	0xe100, 0xfd20, 0xd940, 0xc560, 0x9180, 0x8da0, 0xa9c0, 0xb5e0,
}

// mul sets y to y*H.
func (g *ghash) mul(y *fieldElement) {
	var z fieldElement

	for i := 0; i < 2; i++ {
		word := y.high
		if i == 1 {
			word = y.low
		}

		for j := 0; j < 64; j += 4 {
			msw := z.high & 0xf
			z.high >>= 4
			z.high |= z.low << 60
			z.low >>= 4
			z.low ^= uint64(reductionTable[msw]) << 48

			t := &g.table[word&0xf]

			z.low ^= t.low
			z.high ^= t.high
			word >>= 4
		}
	}

	*y = z
}

func (g *ghash) block(b []byte) {
	g.y.low ^= binary.BigEndian.Uint64(b)
	g.y.high ^= binary.BigEndian.Uint64(b[8:])
	g.mul(&g.y)
}

func (g *ghash) write(p []byte) {
	g.n += uint64(len(p))
	if g.nbuf > 0 {
		n := copy(g.buf[g.nbuf:], p)
		g.nbuf += n
		p = p[n:]
		if g.nbuf < gcmBlockSize {
			return
		}
		g.block(g.buf[:])
		g.nbuf = 0
	}
	for len(p) >= gcmBlockSize {
		g.block(p[:gcmBlockSize])
		p = p[gcmBlockSize:]
	}
	if len(p) > 0 {
		g.nbuf = copy(g.buf[:], p)
	}
}

// sum pads the trailing partial block, folds in the length block and
// returns the raw GHASH value.
func (g *ghash) sum() [gcmBlockSize]byte {
	if g.nbuf > 0 {
		clear(g.buf[g.nbuf:])
		g.block(g.buf[:])
		g.nbuf = 0
	}
	g.y.high ^= g.n * 8
	g.mul(&g.y)

	var out [gcmBlockSize]byte
	binary.BigEndian.PutUint64(out[:8], g.y.low)
	binary.BigEndian.PutUint64(out[8:], g.y.high)
	return out
}

// gcmStream pairs the CTR keystream with GHASH for one IV.
type gcmStream struct {
	ctr     cipher.Stream
	hash    *ghash
	tagMask [gcmBlockSize]byte
}

func newGCMStream(block cipher.Block, iv []byte) *gcmStream {
	var h [gcmBlockSize]byte
	block.Encrypt(h[:], h[:])

	var counter [gcmBlockSize]byte
	copy(counter[:], iv)
	counter[gcmBlockSize-1] = 1

	s := &gcmStream{hash: newGHASH(h)}
	block.Encrypt(s.tagMask[:], counter[:])

	counter[gcmBlockSize-1] = 2
	s.ctr = cipher.NewCTR(block, counter[:])
	return s
}

// seal encrypts src into dst and authenticates the ciphertext.
func (s *gcmStream) seal(dst, src []byte) {
	s.ctr.XORKeyStream(dst, src)
	s.hash.write(dst[:len(src)])
}

// authenticate feeds ciphertext into GHASH without decrypting it.
func (s *gcmStream) authenticate(ciphertext []byte) {
	s.hash.write(ciphertext)
}

// decrypt applies the keystream only; the tag must already be verified.
func (s *gcmStream) decrypt(dst, src []byte) {
	s.ctr.XORKeyStream(dst, src)
}

func (s *gcmStream) tag() []byte {
	sum := s.hash.sum()
	out := make([]byte, AuthTagLength)
	for i := range out {
		out[i] = sum[i] ^ s.tagMask[i]
	}
	return out
}
