// Package command exposes go-command compatible handlers for the account
// workflows of go-identity: registration, password login with brute-force
// protection and MFA step-up, password change and password reset. Commands
// are wired by the service layer and can be invoked by any transport.
package command
