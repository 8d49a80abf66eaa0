// Package qrimage produces the scannable artifact behind a login ticket.
//
// Both providers write PNG bytes into [Store] with the ticket's TTL and
// return a public URL that serves them. [Renderer] draws a plain QR code of
// a deep link locally. [WxacodeProvider] asks the WeChat API for a
// mini-program code whose scene is the ticket ID.
package qrimage
