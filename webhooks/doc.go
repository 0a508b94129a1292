// Package webhooks receives OneTouch payment notifications over HTTP.
//
// Each delivery is reduced to a canonical key over its parameters. The key is
// claimed in a replay ledger before the callback reaches the payment service:
// exact replays are acknowledged without work, and a delivery that fails is
// released so the provider's redelivery is processed.
package webhooks
