// Package value holds helpers over cty.Value, the runtime value type of the
// flowkit engine.
//
// Values are immutable and tagged: bool, number, string, list/tuple/set for
// sequences, map/object for mappings, and null. Arbitrary Go values that
// flow between operations without inspection are wrapped in the HandleType
// capsule with Opaque.
package value
