package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/luxfi/log"

	"github.com/MikeLuu99/auction-arena/internal/protocol"
)

// OpenRouter API configuration
const (
	DefaultOpenRouterURL = "https://openrouter.ai/api/v1"
	placeBidTool         = "place_bid"
	rateLimitBackoff     = 60 * time.Second
)

type BidTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Parameters  struct {
			Type       string `json:"type"`
			Properties struct {
				Bid struct {
					Type        string  `json:"type"`
					Description string  `json:"description"`
					Minimum     float64 `json:"minimum"`
					Maximum     float64 `json:"maximum"`
				} `json:"bid"`
				Reasoning struct {
					Type        string `json:"type"`
					Description string `json:"description"`
				} `json:"reasoning"`
			} `json:"properties"`
			Required []string `json:"required"`
		} `json:"parameters"`
	} `json:"function"`
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type OpenRouterRequest struct {
	Model      string        `json:"model"`
	Messages   []ChatMessage `json:"messages"`
	Tools      []BidTool     `json:"tools,omitempty"`
	ToolChoice any           `json:"tool_choice,omitempty"`
}

type OpenRouterResponse struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

type BidArgs struct {
	Bid       float64 `json:"bid"`
	Reasoning string  `json:"reasoning"`
}

// LLM asks a language model for each bid through a forced tool call
type LLM struct {
	Model   string
	BaseURL string
	APIKey  string

	client      *http.Client
	logger      log.Logger
	rateLimited atomic.Int64
}

// NewLLM reads the API key from OPENROUTER_API_KEY
func NewLLM(model string, logger log.Logger) (*LLM, error) {
	apiKey := os.Getenv("OPENROUTER_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENROUTER_API_KEY is not set")
	}
	return &LLM{
		Model:   model,
		BaseURL: DefaultOpenRouterURL,
		APIKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger.New("bot", "llm", "model", model),
	}, nil
}

func getBidTool(budget float64) BidTool {
	tool := BidTool{}
	tool.Type = "function"
	tool.Function.Name = placeBidTool
	tool.Function.Description = "Place a sealed bid for the painting on sale this round"
	tool.Function.Parameters.Type = "object"
	tool.Function.Parameters.Properties.Bid.Type = "number"
	tool.Function.Parameters.Properties.Bid.Description = "Amount to bid; 0 to pass"
	tool.Function.Parameters.Properties.Bid.Minimum = 0
	tool.Function.Parameters.Properties.Bid.Maximum = budget
	tool.Function.Parameters.Properties.Reasoning.Type = "string"
	tool.Function.Parameters.Properties.Reasoning.Description = "Brief explanation of the decision"
	tool.Function.Parameters.Required = []string{"bid"}

	return tool
}

func buildPrompt(req *protocol.BidRequest) string {
	artists := make([]string, 0, len(req.ArtistsAndValues))
	for artist, value := range req.ArtistsAndValues {
		artists = append(artists, fmt.Sprintf("%s=%d", artist, value))
	}
	sort.Strings(artists)

	targets := make([]string, 0, len(req.TargetCollection))
	for artist, n := range req.TargetCollection {
		targets = append(targets, fmt.Sprintf("%d x %s", n, artist))
	}
	sort.Strings(targets)

	rule := "first price (the winner pays its own bid)"
	if req.WinnerPaysRule == 2 {
		rule = "second price (the winner pays the second highest bid)"
	}

	var opponents []string
	for _, b := range req.Bots {
		if b.ID == req.MyDetails.ID {
			continue
		}
		opponents = append(opponents, fmt.Sprintf("%s (budget %.2f, %d paintings)", b.Name, b.Budget, len(b.Paintings)))
	}

	return fmt.Sprintf(`You are a bidder in a sealed-bid painting auction. Win the paintings you need at a good price.

Auction State:
- Round: %d of %d
- Painting on sale: %s
- Artist values: %s
- Payment rule: %s
- Your budget: %.2f
- Your paintings: %s
- Your target collection: %s
- Opponents: %s

Bids above your budget count as zero. Ties go to the lowest participant id.

Use the %s function to submit your bid.`,
		req.RoundIndex+1, req.RoundLimit,
		req.CurrentPainting,
		strings.Join(artists, ", "),
		rule,
		req.MyDetails.Budget,
		strings.Join(req.MyDetails.Paintings, ", "),
		strings.Join(targets, ", "),
		strings.Join(opponents, "; "),
		placeBidTool)
}

func (l *LLM) Bid(ctx context.Context, req *protocol.BidRequest) (float64, error) {
	if until := l.rateLimited.Load(); until > time.Now().UnixNano() {
		return 0, fmt.Errorf("rate limited")
	}

	requestBody := OpenRouterRequest{
		Model:    l.Model,
		Messages: []ChatMessage{{Role: "user", Content: buildPrompt(req)}},
		Tools:    []BidTool{getBidTool(req.MyDetails.Budget)},
		ToolChoice: map[string]any{
			"type": "function",
			"function": map[string]string{
				"name": placeBidTool,
			},
		},
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return 0, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, l.BaseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return 0, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+l.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Title", "Auction Arena")

	resp, err := l.client.Do(httpReq)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		l.rateLimited.Store(time.Now().Add(rateLimitBackoff).UnixNano())
		return 0, fmt.Errorf("rate limited")
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("openrouter returned %s", resp.Status)
	}

	var response OpenRouterResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return 0, err
	}
	if len(response.Choices) == 0 {
		return 0, fmt.Errorf("%w: empty completion", protocol.ErrMalformedBid)
	}
	message := response.Choices[0].Message

	for _, call := range message.ToolCalls {
		if call.Function.Name != placeBidTool {
			continue
		}
		var args BidArgs
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			return 0, fmt.Errorf("%w: %v", protocol.ErrMalformedBid, err)
		}
		l.logger.Debug("LLM decision", "bid", args.Bid, "reasoning", args.Reasoning)
		return args.Bid, nil
	}

	// Fallback to the first number in the text
	for _, field := range strings.Fields(message.Content) {
		if amount, err := strconv.ParseFloat(strings.Trim(field, "$.,"), 64); err == nil {
			l.logger.Debug("LLM decision (fallback)", "bid", amount)
			return amount, nil
		}
	}
	return 0, fmt.Errorf("%w: no bid in completion", protocol.ErrMalformedBid)
}
