// Package model defines the photo search data types and the structured error
// taxonomy shared by the fetcher, the search pipeline and the servers.
package model

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// ErrorType represents different categories of errors that can occur
type ErrorType string

const (
	// ErrorTypeNetwork represents general network-related errors
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeTimeout represents request timeout errors
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeConnectionFailed represents connection establishment failures
	ErrorTypeConnectionFailed ErrorType = "connection_failed"
	// ErrorTypeDNSResolution represents DNS resolution failures
	ErrorTypeDNSResolution ErrorType = "dns_resolution"
	// ErrorTypeCanceled represents requests abandoned because their context was canceled
	ErrorTypeCanceled ErrorType = "canceled"

	// ErrorTypeHTTP represents general HTTP errors
	ErrorTypeHTTP ErrorType = "http"
	// ErrorTypeHTTPClientError represents HTTP 4xx client errors
	ErrorTypeHTTPClientError ErrorType = "http_client_error" // 4xx
	// ErrorTypeHTTPServerError represents HTTP 5xx server errors
	ErrorTypeHTTPServerError ErrorType = "http_server_error" // 5xx
	// ErrorTypeHTTPRedirect represents HTTP 3xx redirect issues
	ErrorTypeHTTPRedirect ErrorType = "http_redirect" // 3xx with issues

	// ErrorTypeParsing represents feed document parsing errors
	ErrorTypeParsing ErrorType = "parsing"
	// ErrorTypeMalformedXML represents malformed XML feed documents
	ErrorTypeMalformedXML ErrorType = "malformed_xml"
	// ErrorTypeEmptyFeed represents empty or no-content feed documents
	ErrorTypeEmptyFeed ErrorType = "empty_feed"

	// ErrorTypeValidation represents input validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeInvalidURL represents invalid URL format errors
	ErrorTypeInvalidURL ErrorType = "invalid_url"
	// ErrorTypeUnsupportedScheme represents unsupported URL scheme errors
	ErrorTypeUnsupportedScheme ErrorType = "unsupported_scheme"
	// ErrorTypePrivateIP represents private IP address blocked errors
	ErrorTypePrivateIP ErrorType = "private_ip_blocked"
	// ErrorTypeEmptyTerm represents a search term that is empty after trimming
	ErrorTypeEmptyTerm ErrorType = "empty_term"

	// ErrorTypeConfiguration represents configuration-related errors
	ErrorTypeConfiguration ErrorType = "configuration"
	// ErrorTypeTransport represents transport configuration errors
	ErrorTypeTransport ErrorType = "transport"

	// ErrorTypeCircuitBreaker represents circuit breaker state errors
	ErrorTypeCircuitBreaker ErrorType = "circuit_breaker"
	// ErrorTypeRateLimit represents rate limiting errors
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeCache represents caching-related errors
	ErrorTypeCache ErrorType = "cache"

	// ErrorTypeInternal represents internal errors
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeUnknown represents unknown or unclassified errors
	ErrorTypeUnknown ErrorType = "unknown"
)

// FeedError represents a structured error with additional context for debugging
type FeedError struct {
	ID         string    `json:"id"` // correlation ID
	Timestamp  time.Time `json:"timestamp"`
	ErrorType  ErrorType `json:"error_type"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion"`

	URL       string `json:"url,omitempty"`
	Term      string `json:"term,omitempty"`
	Operation string `json:"operation,omitempty"`
	Component string `json:"component,omitempty"`

	HTTPStatus  int               `json:"http_status,omitempty"`
	HTTPHeaders map[string]string `json:"http_headers,omitempty"`

	NetworkError string `json:"network_error,omitempty"`

	ParseContext *ParseContext `json:"parse_context,omitempty"`

	Cause error `json:"-"`
}

// ParseContext provides additional context for parsing errors
type ParseContext struct {
	LineNumber     int    `json:"line_number,omitempty"`
	ContentSnippet string `json:"content_snippet,omitempty"`
	FeedFormat     string `json:"feed_format,omitempty"`
}

// Error implements the error interface
func (fe *FeedError) Error() string {
	var parts []string

	if fe.Message != "" {
		parts = append(parts, fe.Message)
	}
	if fe.Term != "" {
		parts = append(parts, fmt.Sprintf("Term: %q", fe.Term))
	}
	if fe.URL != "" {
		parts = append(parts, fmt.Sprintf("URL: %s", fe.URL))
	}
	if fe.Operation != "" {
		parts = append(parts, fmt.Sprintf("Operation: %s", fe.Operation))
	}
	if fe.HTTPStatus != 0 {
		parts = append(parts, fmt.Sprintf("HTTP Status: %d", fe.HTTPStatus))
	}

	parts = append(parts, fmt.Sprintf("Type: %s", fe.ErrorType), fmt.Sprintf("ID: %s", fe.ID))

	return strings.Join(parts, " | ")
}

// Unwrap returns the underlying cause for error wrapping support
func (fe *FeedError) Unwrap() error {
	return fe.Cause
}

// NewFeedError creates a new FeedError with basic information
func NewFeedError(errorType ErrorType, message string) *FeedError {
	id, _ := gonanoid.New()

	return &FeedError{
		ID:         id,
		Timestamp:  time.Now().UTC(),
		ErrorType:  errorType,
		Message:    message,
		Suggestion: getSuggestionForErrorType(errorType),
	}
}

// NewFeedErrorWithCause creates a new FeedError wrapping an existing error
func NewFeedErrorWithCause(errorType ErrorType, message string, cause error) *FeedError {
	fe := NewFeedError(errorType, message)
	fe.Cause = cause
	return fe
}

// WithURL adds URL context to the error
func (fe *FeedError) WithURL(url string) *FeedError {
	fe.URL = url
	return fe
}

// WithTerm adds the search term that was being looked up
func (fe *FeedError) WithTerm(term string) *FeedError {
	fe.Term = term
	return fe
}

// WithOperation adds operation context to the error
func (fe *FeedError) WithOperation(operation string) *FeedError {
	fe.Operation = operation
	return fe
}

// WithComponent adds component context to the error
func (fe *FeedError) WithComponent(component string) *FeedError {
	fe.Component = component
	return fe
}

// WithHTTP adds HTTP-specific context to the error
func (fe *FeedError) WithHTTP(status int, headers http.Header) *FeedError {
	fe.HTTPStatus = status

	if headers != nil {
		fe.HTTPHeaders = make(map[string]string)

		relevantHeaders := []string{
			"Content-Type", "Content-Length", "Server", "Cache-Control",
			"Retry-After", "X-RateLimit-Remaining",
		}

		for _, header := range relevantHeaders {
			if value := headers.Get(header); value != "" {
				fe.HTTPHeaders[header] = value
			}
		}
	}

	return fe
}

// WithNetworkError adds network-specific context
func (fe *FeedError) WithNetworkError(networkErr string) *FeedError {
	fe.NetworkError = networkErr
	return fe
}

// WithParseContext adds parsing-specific context
func (fe *FeedError) WithParseContext(ctx *ParseContext) *FeedError {
	fe.ParseContext = ctx
	return fe
}

func getSuggestionForErrorType(errorType ErrorType) string {
	suggestions := map[ErrorType]string{
		ErrorTypeTimeout:           "Check network connectivity or increase the --timeout duration",
		ErrorTypeConnectionFailed:  "Verify the feed host is reachable",
		ErrorTypeDNSResolution:     "Check DNS settings and verify the --base-url host name",
		ErrorTypeCanceled:          "The request was superseded or the program is shutting down",
		ErrorTypeHTTPClientError:   "Verify the base URL and search term are correct",
		ErrorTypeHTTPServerError:   "The feed service is experiencing issues, try again later",
		ErrorTypeMalformedXML:      "The feed service returned invalid XML, try again later",
		ErrorTypeEmptyFeed:         "The feed service returned no content for this search",
		ErrorTypeInvalidURL:        "Check the URL format and ensure it's a valid HTTP/HTTPS URL",
		ErrorTypeUnsupportedScheme: "Only HTTP and HTTPS URLs are supported",
		ErrorTypePrivateIP:         "Private IP addresses are blocked, use --allow-private-ips if needed",
		ErrorTypeEmptyTerm:         "Provide a search term that is not just whitespace",
		ErrorTypeCircuitBreaker:    "The feed service is temporarily skipped after repeated failures",
		ErrorTypeRateLimit:         "Request rate limit exceeded, slow down searches",
		ErrorTypeTransport:         "Check transport configuration (stdio, streamable-http)",
		ErrorTypeConfiguration:     "Review configuration parameters for correctness",
		ErrorTypeInternal:          "Internal error occurred, check logs for details",
	}

	if suggestion, exists := suggestions[errorType]; exists {
		return suggestion
	}

	return "Check the error details and try again"
}
