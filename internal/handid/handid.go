// Package handid generates time-ordered hand identifiers.
package handid

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"
)

// Crockford's base32, lower case
const alphabet = "0123456789abcdefghjkmnpqrstvwxyz"

// Length of an encoded id.
const Length = 26

// Generator produces UUIDv7-layout ids: a 48-bit millisecond timestamp
// followed by random bits, encoded as 26 base32 characters so that ids
// sort by creation time.
type Generator struct {
	clock quartz.Clock
	rand  io.Reader
}

// NewGenerator creates a generator. A nil clock or reader selects the real
// clock and crypto/rand.
func NewGenerator(clock quartz.Clock, r io.Reader) *Generator {
	if clock == nil {
		clock = quartz.NewReal()
	}
	if r == nil {
		r = rand.Reader
	}
	return &Generator{clock: clock, rand: r}
}

var defaultGenerator = NewGenerator(nil, nil)

// New returns an id from the default generator.
func New() string {
	return defaultGenerator.New()
}

// New returns a fresh id. It panics if the random source fails.
func (g *Generator) New() string {
	u, err := uuid.NewRandomFromReader(g.rand)
	if err != nil {
		panic("handid: read random bytes: " + err.Error())
	}

	ms := uint64(g.clock.Now().UnixMilli())
	for i := range 6 {
		u[i] = byte(ms >> (40 - 8*i))
	}
	u[6] = (u[6] & 0x0f) | 0x70 // version 7
	u[8] = (u[8] & 0x3f) | 0x80 // RFC 4122 variant

	return encode(u)
}

// encode writes the 128 bits five at a time, most significant first. The
// last character carries three bits and two zero bits of padding.
func encode(u uuid.UUID) string {
	var sb strings.Builder
	sb.Grow(Length)
	for i := range Length {
		sb.WriteByte(alphabet[bitsAt(u, i*5)])
	}
	return sb.String()
}

func bitsAt(u uuid.UUID, offset int) byte {
	var v byte
	for b := range 5 {
		pos := offset + b
		v <<= 1
		if pos < 128 && u[pos/8]&(0x80>>(pos%8)) != 0 {
			v |= 1
		}
	}
	return v
}

// Validate checks that id has the shape produced by New.
func Validate(id string) error {
	if len(id) != Length {
		return fmt.Errorf("hand id must be exactly %d characters, got %d", Length, len(id))
	}
	// The leading character is the top of the timestamp and stays below 8
	// until the year 4199.
	if id[0] > '7' {
		return fmt.Errorf("hand id first character must be 0-7, got %c", id[0])
	}
	for i := range len(id) {
		if strings.IndexByte(alphabet, id[i]) < 0 {
			return fmt.Errorf("invalid character %c at position %d", id[i], i)
		}
	}
	return nil
}

// Time returns the creation time encoded in id.
func Time(id string) (time.Time, error) {
	if err := Validate(id); err != nil {
		return time.Time{}, err
	}
	// The first ten characters cover bits 0..49; the timestamp is bits 0..47.
	var v uint64
	for i := range 10 {
		v = v<<5 | uint64(strings.IndexByte(alphabet, id[i]))
	}
	return time.UnixMilli(int64(v >> 2)).UTC(), nil
}
