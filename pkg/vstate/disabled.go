//go:build novectorcheck

package vstate

// Enabled reports whether lifecycle checking is compiled in.
const Enabled = false
