// Package core defines the domain types, capability interfaces, and sentinel
// errors shared across the contact-crawler subsystems. Everything here is
// storage- and engine-agnostic; concrete implementations live under
// internal/store, internal/browser, internal/challenge, and friends.
package core
