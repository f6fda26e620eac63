// Package twitch is the GraphQL-style platform adapter. Live status for many
// channels is fetched with a single aliased query; discovery reads one page of
// the viewer-ranked stream directory.
package twitch
