package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/tool/duckduckgo/v2"
	"github.com/cloudwego/eino-ext/components/tool/googlesearch"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
)

const toolHTTPTimeout = 10 * time.Second

// InitToolsChain assembles the tools handed to the react agent. Tools that
// cannot be configured in this environment are skipped, not fatal.
func InitToolsChain() []tool.BaseTool {
	var tools []tool.BaseTool
	if ws := initWebSearch(); ws != nil {
		tools = append(tools, ws)
	}
	if wt := initWeather(); wt != nil {
		tools = append(tools, wt)
	}
	return tools
}

// --- web search (google with duckduckgo fallback) ---

func initWebSearch() tool.InvokableTool {
	googleTool := initGoogleSearch()
	duckTool := initDDGSearch()
	if googleTool == nil && duckTool == nil {
		log.Printf("web search tool disabled: no search providers available")
		return nil
	}

	ws := &webSearchTool{
		google:     googleTool,
		duck:       duckTool,
		httpClient: &http.Client{Timeout: toolHTTPTimeout},
	}

	info := &schema.ToolInfo{
		Name: "web_search",
		Desc: "Search the web for information; " +
			"automatically falls back to another provider if needed; " +
			"can fetch a URL directly.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Desc:     "Natural language query or URL to search",
				Type:     schema.String,
				Required: true,
			},
		}),
	}
	return utils.NewTool(info, ws.run)
}

type webSearchTool struct {
	google     tool.InvokableTool
	duck       tool.InvokableTool
	httpClient *http.Client
}

type webSearchParams struct {
	Query string `json:"query"`
}

func (w *webSearchTool) run(ctx context.Context, params *webSearchParams) (string, error) {
	if params == nil {
		return "", errors.New("missing search parameters")
	}
	query := strings.TrimSpace(params.Query)
	if query == "" {
		return "", errors.New("query must not be empty")
	}

	if looksLikeURL(query) {
		if content, err := w.fetchURL(ctx, query); err == nil {
			return content, nil
		} else {
			log.Printf("web url loader failed: %v", err)
		}
	}

	payloadBytes, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return "", fmt.Errorf("marshal search params: %w", err)
	}
	payload := string(payloadBytes)

	if w.google != nil {
		if result, err := w.google.InvokableRun(ctx, payload); err == nil {
			return result, nil
		} else {
			log.Printf("google search failed: %v", err)
		}
	}
	if w.duck != nil {
		if result, err := w.duck.InvokableRun(ctx, payload); err == nil {
			return result, nil
		} else {
			log.Printf("duckduckgo search failed: %v", err)
		}
	}
	return "", errors.New("no search provider succeeded")
}

func (w *webSearchTool) fetchURL(ctx context.Context, target string) (string, error) {
	parsed, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("unsupported url scheme")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "ChatRelay-WebSearch/1.0")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch url: %s", resp.Status)
	}

	const maxBodySize = 512 * 1024
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func looksLikeURL(input string) bool {
	lower := strings.ToLower(input)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func initDDGSearch() tool.InvokableTool {
	duckConfig := &duckduckgo.Config{
		ToolName:   "web_search_ddg",
		ToolDesc:   "DuckDuckGo Search Tool (no token required)",
		MaxResults: 3,
		Region:     duckduckgo.RegionWT,
		Timeout:    toolHTTPTimeout,
	}
	duckTool, err := duckduckgo.NewTextSearchTool(context.Background(), duckConfig)
	if err != nil {
		log.Printf("duckduckgo search tool disabled: %v", err)
		return nil
	}
	return duckTool
}

func initGoogleSearch() tool.InvokableTool {
	googleAPIKey := os.Getenv("GOOGLE_API_KEY")
	googleSearchEngineID := os.Getenv("GOOGLE_SEARCH_ENGINE_ID")
	if googleAPIKey == "" || googleSearchEngineID == "" {
		log.Printf("google search tool disabled: missing GOOGLE_API_KEY or GOOGLE_SEARCH_ENGINE_ID")
		return nil
	}
	googleTool, err := googlesearch.NewTool(context.Background(), &googlesearch.Config{
		ToolName:       "web_search_google",
		ToolDesc:       "Google Search Tool",
		APIKey:         googleAPIKey,
		SearchEngineID: googleSearchEngineID,
		Lang:           "en",
		Num:            5,
	})
	if err != nil {
		log.Printf("google search tool disabled: %v", err)
		return nil
	}
	return googleTool
}

// --- weather lookup (district geocode, then live weather) ---

const defaultWeatherBaseURL = "https://restapi.amap.com"

func initWeather() tool.InvokableTool {
	apiKey := os.Getenv("GAODE_API_KEY")
	if apiKey == "" {
		log.Printf("weather tool disabled: missing GAODE_API_KEY")
		return nil
	}
	wt := &weatherTool{
		baseURL:    defaultWeatherBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: toolHTTPTimeout},
	}
	info := &schema.ToolInfo{
		Name: "query_weather",
		Desc: "Look up current weather for a city by name.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"city": {
				Desc:     "City name to query, e.g. Beijing",
				Type:     schema.String,
				Required: true,
			},
		}),
	}
	return utils.NewTool(info, wt.run)
}

type weatherTool struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type weatherParams struct {
	City string `json:"city"`
}

func (w *weatherTool) run(ctx context.Context, params *weatherParams) (string, error) {
	if params == nil || strings.TrimSpace(params.City) == "" {
		return "", errors.New("city is required")
	}
	city := strings.TrimSpace(params.City)

	adcode, err := w.cityCode(ctx, city)
	if err != nil {
		return "", err
	}
	return w.liveWeather(ctx, city, adcode)
}

func (w *weatherTool) cityCode(ctx context.Context, city string) (string, error) {
	var result struct {
		Status    string `json:"status"`
		Info      string `json:"info"`
		Districts []struct {
			Adcode string `json:"adcode"`
		} `json:"districts"`
	}
	q := url.Values{"key": {w.apiKey}, "keywords": {city}, "subdistrict": {"0"}}
	if err := w.getJSON(ctx, "/v3/config/district", q, &result); err != nil {
		return "", err
	}
	if result.Status != "1" || len(result.Districts) == 0 {
		return "", fmt.Errorf("city lookup failed for %q: %s", city, result.Info)
	}
	return result.Districts[0].Adcode, nil
}

func (w *weatherTool) liveWeather(ctx context.Context, city, adcode string) (string, error) {
	var result struct {
		Status string `json:"status"`
		Info   string `json:"info"`
		Lives  []struct {
			Weather     string `json:"weather"`
			Temperature string `json:"temperature"`
			WindDir     string `json:"winddirection"`
			WindPower   string `json:"windpower"`
			Humidity    string `json:"humidity"`
			ReportTime  string `json:"reporttime"`
		} `json:"lives"`
	}
	q := url.Values{"key": {w.apiKey}, "city": {adcode}, "extensions": {"base"}}
	if err := w.getJSON(ctx, "/v3/weather/weatherInfo", q, &result); err != nil {
		return "", err
	}
	if result.Status != "1" || len(result.Lives) == 0 {
		return "", fmt.Errorf("weather lookup failed for %q: %s", city, result.Info)
	}
	live := result.Lives[0]
	return fmt.Sprintf("Weather in %s: %s, %s°C, wind %s force %s, humidity %s%% (reported %s)",
		city, live.Weather, live.Temperature, live.WindDir, live.WindPower, live.Humidity, live.ReportTime), nil
}

func (w *weatherTool) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("weather api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("weather api: %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode weather response: %w", err)
	}
	return nil
}
