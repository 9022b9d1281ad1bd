// Package strikelab holds build metadata shared by the binary and the API.
package strikelab

// Version is the current release of the strikelab server.
const Version = "0.3.0"
