package tsch

import "math/rand/v2"

/*------------------------------------------------------------------
 *
 * Purpose:	High-byte random backoff window draws.
 *
 * Description:	The reference RNG's low bits are known to have poor
 *		randomness characteristics; the core always samples the
 *		high byte of a full-width draw instead (spec.md §9).
 *
 *------------------------------------------------------------------*/

// HighByte draws a backoff window value uniformly from [0, window] by
// masking the high byte of a fresh RNG draw. window must be of the
// form 2^k - 1 for some k (it is always (1<<BE)-1 in this module).
func HighByte(r RNG, window uint8) uint8 {
	return uint8(r.Uint32()>>24) & window
}

// defaultRNG wraps math/rand/v2's generator to satisfy RNG. Used when
// no RNG is supplied to NewCore; production deployments should inject
// one seeded from their own entropy source.
type defaultRNG struct{}

func (defaultRNG) Uint32() uint32 { return rand.Uint32() }

// DefaultRNG is the package-provided RNG used when a caller doesn't
// need to control the seed (e.g. ad hoc tools). Tests should inject a
// deterministic RNG instead.
var DefaultRNG RNG = defaultRNG{}
