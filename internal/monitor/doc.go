// Package monitor polls on-chain account balances at a fixed interval
// and keeps the latest observed snapshot per address. Snapshots are
// advisory display data; confirmation of a transfer is the only source
// of truth about funds.
package monitor
