// Package session implements the session directory: the bidirectional
// mapping between a user identity and its live client connection.
package session
