// Package payment implements the payment orchestration core: transfer
// construction, signing and submission, confirmation waiting, sequencing of
// multi-leg operations, and reconciliation of transfers whose confirmation
// outcome is unknown. Authority for whether a payment happened is always the
// confirmation status recorded here, never a balance read.
package payment
