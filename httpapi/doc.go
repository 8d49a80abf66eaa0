// Package httpapi serves the login engine over HTTP with a chi router.
//
// Routes:
//
//	POST /login/qrcode                 issue a ticket
//	GET  /login/qrcode/{ticket}        poll; the consuming poll carries a session token
//	GET  /login/qrcode/image/{ticket}  the ticket's PNG
//	POST /login/qrcode/scan            mark scanned
//	POST /login/qrcode/confirm         confirm as the bearer session's user
//	POST /login/weixin                 code login
//	GET  /metrics                      Prometheus text, when configured
//	GET  /healthz                      readiness
//
// Errors are JSON objects {"error": code, "message": text} with a stable
// code per engine sentinel.
package httpapi
