// Package chats groups the conversation data model: speaker kinds,
// immutable turns, and the append-only transcript that every provider
// call reads.
package chats
