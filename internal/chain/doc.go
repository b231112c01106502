// Package chain defines the core on-chain primitives: addresses,
// amounts in smallest units, the narrow RPC client contract, and the
// wire codec for single-instruction transfer transactions. Everything
// above this package treats blockhashes and signatures as opaque.
package chain
