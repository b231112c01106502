// Package session drives the payment-gated chat lifecycle between a
// wallet user and an agent. A message is paid for with an on-chain
// transfer, the transfer must confirm before the agent backend is
// asked for a reply, and the transcript only grows when both steps
// succeed in that order.
package session
