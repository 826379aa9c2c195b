// Package authsdk is the client SDK for the crossgate authentication
// service. It carries the request/response types the HTTP API speaks plus a
// small client wrapping the endpoints: password login, the TOTP second
// factor, and the cross-device QR handshake.
//
// The server-side handlers share these types, so the SDK is also the wire
// contract.
package authsdk
