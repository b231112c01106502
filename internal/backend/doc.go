// Package backend implements the HTTP client for the agent backend
// service. The backend owns user and agent records and produces agent
// replies; this package only speaks its form-encoded contract and maps
// transport failures onto the shared error taxonomy.
package backend
