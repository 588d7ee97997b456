package model

import (
	"errors"
)

var ErrInvalidTransport = errors.New("invalid transport")

// Transport represents the communication transport method for the MCP server
type Transport uint8

const (
	UndefinedTransport Transport = iota
	StdioTransport
	StreamableHTTPTransport
)

// ParseTransport converts a string to a Transport type
func ParseTransport(transport string) (Transport, error) {
	switch transport {
	case "stdio":
		return StdioTransport, nil
	case "streamable-http":
		return StreamableHTTPTransport, nil
	default:
		return UndefinedTransport, ErrInvalidTransport
	}
}

// String returns the string representation of a Transport
func (t Transport) String() string {
	switch t {
	case StdioTransport:
		return "stdio"
	case StreamableHTTPTransport:
		return "streamable-http"
	default:
		return "undefined"
	}
}
