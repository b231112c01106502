// Package api exposes the REST surface of the daemon: driving chat
// sessions, running the agent creation flow, and reading balances and
// the payment ledger.
package api
