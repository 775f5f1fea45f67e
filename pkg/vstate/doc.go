// Package vstate verifies the lifecycle discipline of value vectors.
//
// A vector is allocated, written at strictly increasing indexes, sealed
// with a value count, read within bounds, then released or transferred.
// Code that breaks that order still mostly works - a rewritten index or
// an oversized read corrupts a batch far from the bug. The machine makes
// the order explicit so misuse is caught at the call that commits it.
//
// # Vector states
//
// Each machine tracks one vector through four states:
//
//	INITIAL ---> WRITABLE ---> READONLY
//	   ^   \        |       /     |
//	   |    +-------+------+      |
//	   |            v             |
//	   |         FAILED           |
//	   +--------------------------+
//
// INITIAL means no buffer is allocated. WRITABLE carries the high-water
// mark, the last index written. READONLY carries the max readable index.
// FAILED is absorbing: nothing leaves it, and the machine's recorder is
// frozen with the history as of the violation.
//
// # Flow
//
//  1. Vector is created, NewMachine attaches a verifier
//  2. allocateNew, machine moves to WRITABLE
//  3. Each set(i) reports write(i); indexes must strictly increase
//  4. setValueCount(n) seals, machine moves to READONLY(max=n-1)
//  5. Each get(i) reports read(i); i must stay within [0, max]
//  6. release or transfer empties the vector, back to INITIAL
//
// On a violation the machine either panics (ModeStrict) or appends the
// full transition history to the shared diagnostic sink and keeps going
// (ModeLenient, the default). Every facade method returns true so calls
// embed in assertions, and building with -tags novectorcheck compiles
// the whole checker down to nil-receiver no-ops.
package vstate
