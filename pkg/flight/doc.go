// Package flight defines the typed search parameters and provider payload
// shared by the cache, client, storage and search packages.
//
// Provider responses are decoded once at the client boundary into Response
// and passed between components as values; nothing downstream works on
// untyped maps.
package flight
