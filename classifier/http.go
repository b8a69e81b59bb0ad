package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/arbiterhq/arbiter/util"
)

// HTTPClassifier calls a hosted toxicity-scoring API. The provider
// returns per-label scores; the highest label at or above Threshold
// becomes the violation reason.
type HTTPClassifier struct {
	Client    *http.Client
	Host      string
	APIToken  string
	Threshold float64
}

func NewHTTPClassifier(host, token string, threshold float64) *HTTPClassifier {
	if threshold <= 0 {
		threshold = 0.8
	}
	return &HTTPClassifier{
		Client:    util.RobustHTTPClient(),
		Host:      host,
		APIToken:  token,
		Threshold: threshold,
	}
}

var _ Classifier = (*HTTPClassifier)(nil)

type classifyRequest struct {
	Text string `json:"text"`
}

type classifyResponse struct {
	Scores []classifyScore `json:"scores"`
}

type classifyScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

func (c *HTTPClassifier) Classify(ctx context.Context, text string) (*Verdict, error) {
	body, err := json.Marshal(classifyRequest{Text: text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Host+"/v1/classify", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.APIToken != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Token %s", c.APIToken))
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classifier request failed: %w", err)
	}
	defer resp.Body.Close()

	// the provider signals "input can never be analyzed" with a 422; that
	// is a skip for the caller, not a retryable failure
	if resp.StatusCode == http.StatusUnprocessableEntity {
		classifierUnanalyzable.Inc()
		return &Verdict{Unanalyzable: true}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("classifier returned status %d", resp.StatusCode)
	}

	var out classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode classifier response: %w", err)
	}

	verdict := &Verdict{}
	best := 0.0
	for _, sc := range out.Scores {
		if sc.Score >= c.Threshold && sc.Score > best {
			best = sc.Score
			verdict.Violation = true
			verdict.Reason = sc.Label
		}
	}
	classifierCalls.Inc()
	return verdict, nil
}
