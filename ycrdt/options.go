package ycrdt

import (
	"crypto/rand"
	mrand "math/rand/v2"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Options configures a new Doc (spec §6). ClientID and Guid are filled in
// with random values when left zero/empty, matching Yjs's own "generate me
// one if you don't care" defaulting.
//
// Logger is a pointer rather than a plain zerolog.Logger: zerolog.Logger's
// zero value is only safe at levels its embedded (nil) writer never sees,
// and a Doc logs at Warn on observer panics, so "was this field explicitly
// set" has to be unambiguous. nil means "use zerolog.Nop()".
type Options struct {
	ClientID     uint64
	Guid         string
	CollectionID string
	GC           bool
	AutoLoad     bool
	ShouldLoad   bool
	Logger       *zerolog.Logger
}

// DefaultOptions returns the baseline Options a host should start from and
// override selectively: GC enabled and content loaded eagerly, matching
// spec §6's stated defaults.
func DefaultOptions() Options {
	return Options{
		GC:         true,
		ShouldLoad: true,
	}
}

// randomClientID draws a client id from the 53-bit range spec §6 calls out
// (safe to round-trip through a JS float64 on the other side of a binding),
// seeded from crypto/rand the way a production generator should be, not
// math/rand's default insecure source.
func randomClientID() uint64 {
	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		// crypto/rand failing is a host environment problem, not one this
		// package can recover from sensibly; fall back to math/rand/v2's
		// automatically seeded global source, which is safe for
		// id-uniqueness purposes even if not for security-sensitive
		// randomness.
		return mrand.Uint64() & ((uint64(1) << 53) - 1)
	}
	src := mrand.NewChaCha8(seed)
	return mrand.New(src).Uint64() & ((uint64(1) << 53) - 1)
}

func resolveClientID(opts Options) uint64 {
	if opts.ClientID != 0 {
		return opts.ClientID
	}
	return randomClientID()
}

func resolveGuid(opts Options) string {
	if opts.Guid != "" {
		return opts.Guid
	}
	return uuid.NewString()
}

func resolveLogger(opts Options) zerolog.Logger {
	if opts.Logger != nil {
		return *opts.Logger
	}
	return zerolog.Nop()
}
