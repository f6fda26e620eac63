// Package kick is the REST platform adapter. Channels are independent
// resources, so status is fetched with one request per channel; discovery
// reads the paginated featured-livestreams feed.
package kick
