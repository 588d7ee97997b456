package model

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
)

const (
	componentHTTPClient   = "http_client"
	operationFetchFeed    = "fetch_feed"
	componentFeedParser   = "feed_parser"
	componentURLValidator = "url_validator"
)

// CreateNetworkError creates a FeedError for network-related issues
func CreateNetworkError(err error, feedURL string) *FeedError {
	errorType := ErrorTypeNetwork
	message := "Network error occurred"

	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		errorType = ErrorTypeCanceled
		message = "Request canceled"
	case isTimeoutError(err):
		errorType = ErrorTypeTimeout
		message = "Request timed out"
	case isDNSError(err):
		errorType = ErrorTypeDNSResolution
		message = "DNS resolution failed"
	case isConnectionError(err):
		errorType = ErrorTypeConnectionFailed
		message = "Connection failed"
	}

	fe := NewFeedErrorWithCause(errorType, message, err).
		WithURL(feedURL).
		WithOperation(operationFetchFeed).
		WithComponent(componentHTTPClient)
	if err != nil {
		fe.WithNetworkError(err.Error())
	}
	return fe
}

// CreateHTTPError creates a FeedError for HTTP response errors
func CreateHTTPError(resp *http.Response, feedURL string) *FeedError {
	var errorType ErrorType
	var message string

	status := resp.StatusCode

	switch {
	case status >= 400 && status < 500:
		errorType = ErrorTypeHTTPClientError
		message = fmt.Sprintf("Client error: %s", resp.Status)
	case status >= 500:
		errorType = ErrorTypeHTTPServerError
		message = fmt.Sprintf("Server error: %s", resp.Status)
	case status >= 300 && status < 400:
		errorType = ErrorTypeHTTPRedirect
		message = fmt.Sprintf("Redirect error: %s", resp.Status)
	default:
		errorType = ErrorTypeHTTP
		message = fmt.Sprintf("HTTP error: %s", resp.Status)
	}

	return NewFeedError(errorType, message).
		WithURL(feedURL).
		WithOperation(operationFetchFeed).
		WithComponent(componentHTTPClient).
		WithHTTP(status, resp.Header)
}

// CreateParsingError creates a FeedError for feed document parsing issues
func CreateParsingError(err error, feedURL, content string) *FeedError {
	errorType := ErrorTypeParsing
	message := "Failed to parse feed document"

	if err != nil {
		errStr := strings.ToLower(err.Error())

		if strings.Contains(errStr, "xml") {
			errorType = ErrorTypeMalformedXML
			message = "Feed document contains malformed XML"
		} else if strings.Contains(errStr, "empty") || strings.Contains(errStr, "no content") {
			errorType = ErrorTypeEmptyFeed
			message = "Feed document is empty or contains no content"
		}
	}

	fe := NewFeedErrorWithCause(errorType, message, err).
		WithURL(feedURL).
		WithOperation("parse_feed").
		WithComponent(componentFeedParser)

	if parseCtx := extractParseContext(err, content); parseCtx != nil {
		fe.WithParseContext(parseCtx)
	}

	return fe
}

// CreateValidationError creates a FeedError for URL validation issues
func CreateValidationError(err error, rawURL string) *FeedError {
	errorType := ErrorTypeValidation
	message := "URL validation failed"

	switch {
	case errors.Is(err, ErrUnsupportedScheme):
		errorType = ErrorTypeUnsupportedScheme
		message = "Unsupported URL scheme"
	case errors.Is(err, ErrPrivateIPBlocked):
		errorType = ErrorTypePrivateIP
		message = "Private IP address blocked"
	case errors.Is(err, ErrMissingHost):
		errorType = ErrorTypeInvalidURL
		message = "URL missing host"
	case errors.Is(err, ErrEmptyURL):
		errorType = ErrorTypeInvalidURL
		message = "URL cannot be empty"
	case errors.Is(err, ErrInvalidURL):
		errorType = ErrorTypeInvalidURL
		message = "Invalid URL format"
	}

	return NewFeedErrorWithCause(errorType, message, err).
		WithURL(rawURL).
		WithOperation("validate_url").
		WithComponent(componentURLValidator)
}

// CreateEmptyTermError creates a FeedError for a search term that trims to nothing
func CreateEmptyTermError(term string) *FeedError {
	return NewFeedError(ErrorTypeEmptyTerm, "Search term is empty").
		WithTerm(term).
		WithOperation("search_photos").
		WithComponent("term_validator")
}

// CreateCircuitBreakerError creates a FeedError for circuit breaker events
func CreateCircuitBreakerError(cause error, feedURL string, state string) *FeedError {
	message := fmt.Sprintf("Circuit breaker is %s", state)

	return NewFeedErrorWithCause(ErrorTypeCircuitBreaker, message, cause).
		WithURL(feedURL).
		WithOperation(operationFetchFeed).
		WithComponent("circuit_breaker")
}

// CreateRateLimitError creates a FeedError for rate limiting
func CreateRateLimitError(cause error, feedURL string) *FeedError {
	return NewFeedErrorWithCause(ErrorTypeRateLimit, "Request rate limit exceeded", cause).
		WithURL(feedURL).
		WithOperation(operationFetchFeed).
		WithComponent("rate_limiter")
}

// IsErrorType reports whether err wraps a FeedError of the given type.
func IsErrorType(err error, errorType ErrorType) bool {
	var fe *FeedError
	return errors.As(err, &fe) && fe.ErrorType == errorType
}

func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, keyword := range []string{"timeout", "deadline exceeded", "timed out"} {
		if strings.Contains(errStr, keyword) {
			return true
		}
	}

	return false
}

func isDNSError(err error) bool {
	if err == nil {
		return false
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	dnsKeywords := []string{
		"no such host", "dns", "name resolution",
		"name or service not known", "nodename nor servname provided",
	}
	for _, keyword := range dnsKeywords {
		if strings.Contains(errStr, keyword) {
			return true
		}
	}

	return false
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}

	for _, errno := range []syscall.Errno{
		syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ECONNABORTED,
		syscall.EHOSTUNREACH, syscall.ENETUNREACH,
	} {
		if errors.Is(err, errno) {
			return true
		}
	}

	errStr := strings.ToLower(err.Error())
	connKeywords := []string{
		"connection refused", "connection reset", "connection aborted",
		"host unreachable", "network unreachable", "no route to host",
	}
	for _, keyword := range connKeywords {
		if strings.Contains(errStr, keyword) {
			return true
		}
	}

	return false
}

// extractParseContext pulls a line number out of "XML syntax error on line N"
// style messages and detects the document format.
func extractParseContext(err error, content string) *ParseContext {
	if err == nil {
		return nil
	}

	errStr := err.Error()
	ctx := &ParseContext{}

	if strings.Contains(errStr, "line") {
		parts := strings.Fields(errStr)
		for i, part := range parts {
			if part == "line" && i+1 < len(parts) {
				if lineNum, parseErr := strconv.Atoi(strings.TrimSuffix(parts[i+1], ":")); parseErr == nil {
					ctx.LineNumber = lineNum
					break
				}
			}
		}
	}

	contentLower := strings.TrimSpace(strings.ToLower(content))
	if strings.HasPrefix(contentLower, "<") {
		switch {
		case strings.Contains(contentLower, "<rss"):
			ctx.FeedFormat = "RSS"
		case strings.Contains(contentLower, "<feed"):
			ctx.FeedFormat = "Atom"
		default:
			ctx.FeedFormat = "XML"
		}
	}

	if ctx.LineNumber > 0 && content != "" {
		lines := strings.Split(content, "\n")
		if ctx.LineNumber <= len(lines) {
			start := max(0, ctx.LineNumber-3)
			end := min(len(lines), ctx.LineNumber+2)
			ctx.ContentSnippet = strings.Join(lines[start:end], "\n")
		}
	}

	if ctx.LineNumber > 0 || ctx.FeedFormat != "" || ctx.ContentSnippet != "" {
		return ctx
	}

	return nil
}
