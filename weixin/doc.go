// Package weixin is a small client for the WeChat mini-program server API.
//
// It covers the four calls the login service needs: issuing the app access
// token, probing a token, exchanging a wx.login code for an openid, and
// generating an unlimited mini-program code image.
//
// Upstream errcodes are mapped onto typed errors. Token rejections
// (40001, 40014, 42001) wrap [credential.ErrInvalidCredential]. Rejected
// login codes (40029, 40163, 40226) wrap [ErrCodeInvalid]. Transport
// failures, HTTP 5xx and errcode -1 wrap [ErrUnavailable]. Everything else
// is an [*APIError] wrapping [ErrRejected].
package weixin
