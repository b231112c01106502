// Package creation runs the agent creation flow: register the agent
// with the backend first, then fund it with two chained transfers (a
// fixed platform fee to the bank wallet and the prize pool to the
// agent wallet the backend assigned). Registration before funding
// guarantees the prize recipient exists before any money moves.
package creation
