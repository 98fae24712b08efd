// Package language normalizes track language tags to canonical ISO 639-2
// three-letter codes. Unrecognized input is passed through unchanged so a
// policy comparing against an exotic tag still sees the original value.
package language
