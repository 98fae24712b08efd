// Package executor runs policy phases against files with transactional
// semantics: a sibling backup before any modification, rollback on fail,
// staged outputs promoted by atomic rename, and an operation audit trail
// in the store. A constraint refusal from the evaluator is informational
// and counts as success.
package executor
