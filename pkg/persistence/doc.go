// Package persistence keeps a history of provisioning sessions in a JSON
// file: when each session ran, how many networks its scan found, and the
// outcome of every connect attempt. Passphrases are never written.
package persistence
