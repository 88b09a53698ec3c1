// Package httpmw provides HTTP middleware for the public page API.
//
// httpserver.NewHandler stacks them with Chain, outermost first: security
// headers, panic recovery, request ID, client IP, rate limiting, tracing,
// content headers, trace ID headers, metrics and the request logger. Inside
// the router RouteSpan, AccessLog and MaxBody run per matched route.
//
// Query strings, the Host header, cookies and user-agent never reach log
// fields; the revalidation secret travels in the body and is never logged.
package httpmw
