// Package kvdb is a client for Replit-style key-value stores served over
// HTTP. Values are stored as JSON documents under string keys:
//
//	GET    {base}/{escaped key}         read a value (404 or empty body: absent)
//	POST   {base}  form {key}={json}     write a value
//	DELETE {base}/{escaped key}         delete a value
//	GET    {base}?encode=true&prefix=p  list keys, one escaped key per line
//
// The Client layers validation, JSON encoding, composed operations (Math,
// Push, Pull, StartsWith, Import, ExportTo, Ping) and a shared rate-limit
// retry budget on top of those four calls. Any Backend can stand in for the
// HTTP protocol; pkg/kvdb/mock provides an in-memory one.
package kvdb
