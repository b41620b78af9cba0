package determinism

import (
	"encoding/binary"
	"math/rand/v2"

	"github.com/google/uuid"
)

// stream is one seeded generator stream. Seeded streams use ChaCha8 keyed
// by a derived sub-seed; unseeded streams delegate to system randomness.
// A stream is stateful and must only be reached through its owning
// Context's mutex.
type stream struct {
	rand *rand.Rand // nil when unseeded
}

func newStream(seed [32]byte) *stream {
	return &stream{rand: rand.New(rand.NewChaCha8(seed))}
}

func (s *stream) uint64() uint64 {
	if s.rand != nil {
		return s.rand.Uint64()
	}
	return rand.Uint64()
}

func (s *stream) intN(n int) int {
	if s.rand != nil {
		return s.rand.IntN(n)
	}
	return rand.IntN(n)
}

func (c *Context) rngStream() *stream {
	if c.rng == nil {
		if c.Seeded() {
			c.rng = newStream(c.deriveLocked(PurposeRNG))
		} else {
			c.rng = &stream{}
		}
	}
	return c.rng
}

func (c *Context) uuidStream() *stream {
	if c.uuids == nil {
		if c.Seeded() {
			c.uuids = newStream(c.deriveLocked(PurposeUUID))
		} else {
			c.uuids = &stream{}
		}
	}
	return c.uuids
}

func (c *Context) fakeStream() *stream {
	if c.fake == nil {
		if c.Seeded() {
			c.fake = newStream(c.deriveLocked(PurposeFake))
		} else {
			c.fake = &stream{}
		}
	}
	return c.fake
}

// Uint64 returns the next value from the rng stream. With a seed the
// sequence is reproducible; without one it is system randomness.
func (c *Context) Uint64() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rngStream().uint64()
}

// IntN returns a value in [0, n) from the rng stream.
func (c *Context) IntN(n int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rngStream().intN(n)
}

// NewUUID returns the next UUID from the uuid stream. Seeded contexts
// produce RFC 4122 version-4-shaped UUIDs from the seeded byte stream;
// unseeded contexts use the system generator.
func (c *Context) NewUUID() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.uuidStream()
	if s.rand == nil {
		return uuid.New()
	}

	var b [16]byte
	binary.BigEndian.PutUint64(b[0:8], s.rand.Uint64())
	binary.BigEndian.PutUint64(b[8:16], s.rand.Uint64())
	b[6] = (b[6] & 0x0f) | 0x40 // version 4
	b[8] = (b[8] & 0x3f) | 0x80 // variant 10

	id, err := uuid.FromBytes(b[:])
	if err != nil {
		// 16 bytes can always be a UUID; FromBytes only fails on length.
		panic(err)
	}
	return id
}

// fakeWords is the vocabulary for fake-data generation. Order matters:
// changing it changes every seeded fake stream.
var fakeWords = []string{
	"amber", "basalt", "cobalt", "dune", "ember", "fjord", "garnet",
	"harbor", "indigo", "juniper", "krill", "lichen", "meadow", "nickel",
	"onyx", "pewter", "quartz", "russet", "sable", "tundra", "umber",
	"violet", "walnut", "xenon", "yarrow", "zephyr",
}

// FakeWord returns the next word from the fake-data stream.
func (c *Context) FakeWord() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fakeWords[c.fakeStream().intN(len(fakeWords))]
}

// FakeName returns a two-word fake identifier like "amber-fjord".
func (c *Context) FakeName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.fakeStream()
	return fakeWords[s.intN(len(fakeWords))] + "-" + fakeWords[s.intN(len(fakeWords))]
}
