// Package approval mints and verifies the signed links a human clicks to
// approve or reject a planned execution.
//
// A link token is an HMAC-SHA256 over the execution id and the issue
// timestamp, keyed by a shared secret. Verification is constant time and
// fails closed: a bad signature, a malformed parameter, and an expired link
// are indistinguishable from the outside.
package approval
