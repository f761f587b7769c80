// Package models defines the records kept by the offline store: the four
// tracked entities (foods, diary entries, weight and water samples), their
// payloads, and the outbox items that carry unconfirmed mutations.
package models
