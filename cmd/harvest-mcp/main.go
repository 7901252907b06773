package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// scrapeRequest mirrors the Harvest API request model.
type scrapeRequest struct {
	URL      string   `json:"url"`
	Formats  []string `json:"formats,omitempty"`
	Mobile   bool     `json:"mobile,omitempty"`
	WaitFor  int      `json:"wait_for,omitempty"`
	MaxAge   int      `json:"max_age,omitempty"`
	MaxPages int      `json:"max_pages,omitempty"`
}

// scrapeResponse mirrors the Harvest API response model.
type scrapeResponse struct {
	Success bool `json:"success"`
	Data    *struct {
		Markdown string   `json:"markdown"`
		HTML     string   `json:"html"`
		Links    []string `json:"links"`
		Images   []string `json:"images"`
		Metadata struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			SourceURL   string `json:"source_url"`
			URL         string `json:"url"`
			StatusCode  int    `json:"status_code"`
			CacheState  string `json:"cache_state"`
			EngineUsed  string `json:"engine_used"`
			Warning     string `json:"warning"`
		} `json:"metadata"`
	} `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func main() {
	apiURL := os.Getenv("HARVEST_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("HARVEST_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "HARVEST_API_KEY is required")
		os.Exit(1)
	}

	s := server.NewMCPServer(
		"harvest",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	scrapeURLTool := mcp.NewTool("scrape_url",
		mcp.WithDescription("Scrape a web page and return its content as markdown. Uses a headless browser to render JavaScript-heavy pages and serves recent results from a cache when allowed."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the web page to scrape"),
		),
		mcp.WithString("formats",
			mcp.Description("Comma-separated output formats: 'markdown' (default), 'html', 'raw_html', 'links', 'images'"),
		),
		mcp.WithNumber("max_age",
			mcp.Description("Accept a cached snapshot up to this many milliseconds old (0 = always fetch live)"),
		),
		mcp.WithBoolean("mobile",
			mcp.Description("Emulate a mobile device"),
		),
	)
	s.AddTool(scrapeURLTool, handleScrapeURL(apiURL, apiKey))

	linksTool := mcp.NewTool("extract_links",
		mcp.WithDescription("Scrape a web page and return the absolute URLs it links to, one per line."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the web page to extract links from"),
		),
	)
	s.AddTool(linksTool, handleExtractLinks(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// callScrape posts a scrape request to the Harvest API and decodes the response.
func callScrape(ctx context.Context, client *http.Client, apiURL, apiKey string, reqBody scrapeRequest) (*scrapeResponse, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+"/api/v1/scrape", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", apiKey)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var scrapeResp scrapeResponse
	if err := json.Unmarshal(respBody, &scrapeResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return &scrapeResp, nil
}

func handleScrapeURL(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 120 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		reqBody := scrapeRequest{
			URL:    url,
			Mobile: request.GetBool("mobile", false),
			MaxAge: request.GetInt("max_age", 0),
		}
		if formats := request.GetString("formats", ""); formats != "" {
			for _, f := range strings.Split(formats, ",") {
				if trimmed := strings.TrimSpace(f); trimmed != "" {
					reqBody.Formats = append(reqBody.Formats, trimmed)
				}
			}
		}

		scrapeResp, err := callScrape(ctx, client, apiURL, apiKey, reqBody)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		if !scrapeResp.Success || scrapeResp.Data == nil {
			errMsg := "scrape failed"
			if scrapeResp.Error != nil {
				errMsg = fmt.Sprintf("[%s] %s", scrapeResp.Error.Code, scrapeResp.Error.Message)
			}
			return mcp.NewToolResultError(errMsg), nil
		}

		d := scrapeResp.Data
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("Title: %s\nSource: %s\n", d.Metadata.Title, d.Metadata.SourceURL))
		if d.Metadata.Warning != "" {
			sb.WriteString("Warning: " + d.Metadata.Warning + "\n")
		}
		sb.WriteString("\n")
		switch {
		case d.Markdown != "":
			sb.WriteString(d.Markdown)
		case d.HTML != "":
			sb.WriteString(d.HTML)
		}

		return mcp.NewToolResultText(sb.String()), nil
	}
}

func handleExtractLinks(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 120 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		scrapeResp, err := callScrape(ctx, client, apiURL, apiKey, scrapeRequest{
			URL:     url,
			Formats: []string{"links"},
		})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		if !scrapeResp.Success || scrapeResp.Data == nil {
			errMsg := "scrape failed"
			if scrapeResp.Error != nil {
				errMsg = fmt.Sprintf("[%s] %s", scrapeResp.Error.Code, scrapeResp.Error.Message)
			}
			return mcp.NewToolResultError(errMsg), nil
		}

		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("Found %d links:\n\n", len(scrapeResp.Data.Links)))
		for _, u := range scrapeResp.Data.Links {
			sb.WriteString(u + "\n")
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}
