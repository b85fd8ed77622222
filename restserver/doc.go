// Copyright 2022-2023 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package restserver publishes the workplanner as a REST service.
// The restclient package is a matching client.
//
// The complete REST API is defined in the restdata package.  In
// particular, note that the URLs described here are not actually part
// of the API.
//
// HTTP Considerations
//
// Clients should use the standard HTTP Accept: header to request a
// response format; see "MIME Types" below.
//
// This interface does not (currently) support HTTP caching or
// authentication headers.
//
// MIME Types
//
// This interface understands MIME types as follows:
//
//	application/vnd.diffeo.workplanner.v1+json
//
// JSON representation of version 1 of this interface.
//
//	application/vnd.diffeo.workplanner+json
//	application/json
//	text/json
//
// JSON representation of latest version of this interface.
//
// URL Scheme
//
// A schedule name appearing in a URL path must be URL-safe printable
// ASCII; otherwise it must be base64 encoded using the URL-safe
// alphabet (RFC 4648 section 5), with no padding, and adding an
// additional - at the front of the name.  The schedule "etl/hourly"
// has an execute-list URL of /workplans/execute/-ZXRsL2hvdXJseQ/list.
//
// The following URLs are defined:
//
//	/
//	/workplans/list
//	/workplans/count
//	/workplans/delete
//	/workplans/update
//	/workplans/update/list
//	/workplans/generate
//	/workplans/execute/{name}/list
//	/workplans/recreate
//	/workplans/{id}/replay
package restserver
