// Package distribution fans finished artifacts out to every registered
// destination and reclaims the cache afterward.
//
// A Distributor lists destinations, delivers to each concurrently through a
// Deliverer, joins, and then deletes the artifact files no matter how delivery
// went. Webhook is the Discord-compatible Deliverer used in production.
package distribution
