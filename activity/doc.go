// Package activity persists the security audit trail (logins, token grants,
// revocations, credential changes) and masks secrets before they are written.
// Repository implements types.ActivitySink so any component that accepts a
// sink can log into the identity_activity table.
package activity
