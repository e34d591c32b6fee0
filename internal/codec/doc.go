// ABOUTME: Package documentation for the SOAP/fabric message codecs.
// ABOUTME: Describes composers, decomposers and the name registry.

// Package codec translates between wire-level SOAP messages and internal
// fabric messages.
//
// A Composer turns an inbound envelope into an exchange.Message; a
// Decomposer turns an exchange.Message back into an envelope. Codecs are
// registered by name and resolved from configuration. Unknown names degrade
// to the default codec with an error log instead of failing startup.
package codec
