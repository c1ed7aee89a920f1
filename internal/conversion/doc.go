// Package conversion talks to a Cobalt-compatible conversion service.
//
// Client.Convert validates a Request, posts it to the service, and decodes the
// reply into a Response whose Status is one of redirect, tunnel, picker, or
// error. Response.Assets flattens any of the successful shapes into an ordered
// list of downloadable assets, and Response.Key returns the identifier the
// pipeline uses to collapse duplicate sources.
//
// The client never touches the filesystem and never retries: a non-2xx reply,
// a malformed body, or an error envelope is surfaced once as
// services.ErrServiceResponse carrying the raw payload.
package conversion
