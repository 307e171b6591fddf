// Package cli implements uploadctl, the command-line client of the upload
// API.
//
// Commands:
//   - put: request an upload session for a local file, PUT the bytes to the
//     presigned URL with Content-MD5 and the mandated SSE header, then
//     complete the upload (optionally waiting for validation).
//   - status: print the validation status of an upload.
//
// Configuration comes from defaults, an optional JSON file (--config) and
// the --server, --token and --timeout flags, in that order.
package cli
