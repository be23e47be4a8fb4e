// Package jsonrepair extracts a JSON value from raw model text.
//
// Extraction runs an ordered list of pure candidate strategies over the immutable input:
// the trimmed text, repairs (bare property wrapping, truncation closing), fenced code
// blocks, the first balanced object and the widest array span. Duplicate candidates are
// skipped and the first one that parses wins. When nothing parses, the failure tells an
// empty answer, a truncated-looking object and plain prose apart.
//
// Truncation repair is best effort: for deeply nested output cut short it can yield a
// structurally valid object with missing content.
package jsonrepair
