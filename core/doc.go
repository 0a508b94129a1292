// Package core contains the OneTouch protocol client: request signing, the
// signed HTTP client, token lifecycle, the payment state machine for both the
// token and no-registration flows, and callback verification. Transport and
// storage adapters depend on this package; core must not depend on them.
package core
