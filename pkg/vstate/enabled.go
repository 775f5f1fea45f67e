//go:build !novectorcheck

package vstate

// Enabled reports whether lifecycle checking is compiled in. Build with
// -tags novectorcheck to strip it: NewMachine then returns nil and every
// facade call collapses to a nil check and a constant true.
const Enabled = true
