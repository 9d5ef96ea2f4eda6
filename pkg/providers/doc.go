// Package providers contains adapter implementations for the supported
// LLM provider wire shapes. Each subpackage implements provider.Responder
// for one API family; the set is closed and selected by configuration.
package providers
