package models

import "strings"

const keyPrefix = "rl"

// Key identifies one counter: an identifier within an endpoint class.
type Key struct {
	Class      EndpointClass
	Identifier string
}

// NewKey builds a counter key with the identifier sanitized.
func NewKey(class EndpointClass, identifier string) Key {
	return Key{Class: class, Identifier: SanitizeKeySegment(identifier)}
}

// String renders the storage key, e.g. "rl:emergency:203.0.113.7".
func (k Key) String() string {
	return keyPrefix + ":" + string(k.Class) + ":" + k.Identifier
}

// SanitizeKeySegment escapes delimiter characters in rate limit key segments
// to prevent key collision attacks where user-controlled identifiers containing
// ':' could manipulate adjacent rate limit buckets.
//
// IPv6 addresses are affected too: "2001:db8::1" becomes "2001_db8__1".
func SanitizeKeySegment(s string) string {
	return strings.ReplaceAll(s, ":", "_")
}
