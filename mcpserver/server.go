// Package mcpserver exposes photo search as Model Context Protocol tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/richardwooding/photo-search/model"
	"github.com/richardwooding/photo-search/version"
)

const (
	component = "mcp_server"

	// DefaultAddr is the listen address for the streamable HTTP transport.
	DefaultAddr = "localhost:8080"

	searchPhotosTool   = "search_photos"
	fetchThumbnailTool = "fetch_thumbnail"
)

// Config holds the configuration for creating a new MCP server
type Config struct {
	Transport       model.Transport
	Searcher        PhotoSearcher
	Thumbnails      ThumbnailFetcher
	Addr            string
	ShutdownTimeout time.Duration
	Logger          *logrus.Entry
}

// Server serves the photo search tools.
type Server struct {
	transport       model.Transport
	searcher        PhotoSearcher
	thumbnails      ThumbnailFetcher
	addr            string
	shutdownTimeout time.Duration
	logger          *logrus.Entry
}

// SearchPhotosParams contains parameters for the search_photos tool.
type SearchPhotosParams struct {
	Term string `json:"term"`
}

// FetchThumbnailParams contains parameters for the fetch_thumbnail tool.
type FetchThumbnailParams struct {
	URL string `json:"url"`
}

// NewServer creates a new MCP server with the given configuration
func NewServer(config Config) (*Server, error) {
	if config.Transport == model.UndefinedTransport {
		return nil, model.NewFeedError(model.ErrorTypeTransport, "transport must be specified").
			WithOperation("create_server").
			WithComponent(component)
	}
	if config.Searcher == nil {
		return nil, model.NewFeedError(model.ErrorTypeConfiguration, "Searcher is required").
			WithOperation("create_server").
			WithComponent(component)
	}
	if config.Thumbnails == nil {
		return nil, model.NewFeedError(model.ErrorTypeConfiguration, "Thumbnails is required").
			WithOperation("create_server").
			WithComponent(component)
	}
	if config.Addr == "" {
		config.Addr = DefaultAddr
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 5 * time.Second
	}
	if config.Logger == nil {
		config.Logger = model.DiscardLogger()
	}
	return &Server{
		transport:       config.Transport,
		searcher:        config.Searcher,
		thumbnails:      config.Thumbnails,
		addr:            config.Addr,
		shutdownTimeout: config.ShutdownTimeout,
		logger:          config.Logger.WithField("component", component),
	}, nil
}

func (s *Server) newMCPServer() *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "photo-search",
		Version: version.GetVersion(),
	}, nil)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        searchPhotosTool,
		Description: "Search the public photo feed by tag and return titles, descriptions and thumbnail URLs",
		InputSchema: &jsonschema.Schema{
			Type:     "object",
			Required: []string{"term"},
			Properties: map[string]*jsonschema.Schema{
				"term": {
					Type:        "string",
					Description: "Search term; surrounding whitespace is ignored",
				},
			},
		},
	}, s.searchPhotos)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        fetchThumbnailTool,
		Description: "Fetch a photo thumbnail as image content",
		InputSchema: &jsonschema.Schema{
			Type:     "object",
			Required: []string{"url"},
			Properties: map[string]*jsonschema.Schema{
				"url": {
					Type:        "string",
					Description: "Thumbnail URL from a search_photos result",
				},
			},
		},
	}, s.fetchThumbnail)

	return srv
}

func (s *Server) searchPhotos(ctx context.Context, _ *mcp.CallToolRequest, args SearchPhotosParams) (*mcp.CallToolResult, any, error) {
	term := strings.TrimSpace(args.Term)
	if term == "" {
		return nil, nil, model.CreateEmptyTermError(args.Term).WithComponent(component)
	}

	logger := s.logger.WithFields(logrus.Fields{"tool": searchPhotosTool, "term": term})
	photos, err := s.searcher.Fetch(ctx, term)
	if err != nil {
		model.LogFeedError(logger, logrus.WarnLevel, err)
		return nil, nil, err
	}

	data, err := json.Marshal(model.NewSearchResult(term, photos))
	if err != nil {
		return nil, nil, model.NewFeedErrorWithCause(model.ErrorTypeInternal, "cannot encode search result", err).
			WithComponent(component)
	}
	logger.WithField("photos", len(photos)).Debug("tool call completed")
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}

func (s *Server) fetchThumbnail(ctx context.Context, _ *mcp.CallToolRequest, args FetchThumbnailParams) (*mcp.CallToolResult, any, error) {
	logger := s.logger.WithFields(logrus.Fields{"tool": fetchThumbnailTool, "url": args.URL})
	img, err := s.thumbnails.Fetch(ctx, args.URL)
	if err != nil {
		model.LogFeedError(logger, logrus.WarnLevel, err)
		return nil, nil, err
	}
	logger.WithField("bytes", len(img.Data)).Debug("tool call completed")
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.ImageContent{Data: img.Data, MIMEType: img.MIMEType}},
	}, nil, nil
}

// HTTPHandler serves the tools over the streamable HTTP transport.
func (s *Server) HTTPHandler() http.Handler {
	srv := s.newMCPServer()
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil)
}

// Run starts the MCP server and handles client connections until context is canceled
func (s *Server) Run(ctx context.Context) error {
	switch s.transport {
	case model.StdioTransport:
		s.logger.Info("serving on stdio")
		err := s.newMCPServer().Run(ctx, &mcp.StdioTransport{})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	case model.StreamableHTTPTransport:
		ln, err := net.Listen("tcp", s.addr)
		if err != nil {
			return model.NewFeedErrorWithCause(model.ErrorTypeTransport, "cannot listen", err).
				WithOperation("run_server").
				WithComponent(component)
		}
		return s.Serve(ctx, ln)
	default:
		return model.NewFeedError(model.ErrorTypeTransport, "unsupported transport").
			WithOperation("run_server").
			WithComponent(component)
	}
}

// Serve serves the streamable HTTP transport on ln until ctx is canceled,
// then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.HTTPHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(ln)
	}()
	s.logger.WithField("addr", ln.Addr().String()).Info("serving streamable HTTP")

	select {
	case err := <-errCh:
		return model.NewFeedErrorWithCause(model.ErrorTypeTransport, "HTTP server stopped", err).
			WithOperation("run_server").
			WithComponent(component)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.WithError(err).Warn("graceful shutdown timed out, closing connections")
		if err := httpServer.Close(); err != nil {
			return model.NewFeedErrorWithCause(model.ErrorTypeTransport, "HTTP server shutdown failed", err).
				WithOperation("shutdown_server").
				WithComponent(component)
		}
	}
	s.logger.Info("server stopped")
	return nil
}
