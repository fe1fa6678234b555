package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/billbuster/billpoints/internal/point"
)

const summarySystemPrompt = "You are an expert legislative analyst providing concise summaries and topic tags."

const summaryBatchSize = 20

// SummarizePoints asks the model for a short prose summary of the full
// point set. Large point sets are summarized in batches and then combined.
func (c *Client) SummarizePoints(ctx context.Context, pts []point.Point) (string, error) {
	if len(pts) == 0 {
		return "No points extracted.", nil
	}

	var batchSummaries []string
	for i := 0; i < len(pts); i += summaryBatchSize {
		end := min(i+summaryBatchSize, len(pts))
		s, err := c.summarizeBatch(ctx, pts[i:end])
		if err != nil {
			return "", err
		}
		batchSummaries = append(batchSummaries, s)
	}
	if len(batchSummaries) == 1 {
		return batchSummaries[0], nil
	}

	prompt := fmt.Sprintf(`Here are summaries of different sections of a legislative document:
%s

Provide a comprehensive but concise summary of the entire document based on these section summaries, 3-5 paragraphs, covering the main provisions and purpose of the legislation.`, strings.Join(batchSummaries, "\n"))

	text, err := c.complete(ctx, summarySystemPrompt, prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (c *Client) summarizeBatch(ctx context.Context, pts []point.Point) (string, error) {
	pointsJSON, err := json.MarshalIndent(pts, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal points: %w", err)
	}

	prompt := fmt.Sprintf(`Here is a list of legislative points extracted from a document:
%s

Provide a brief summary of these points, focusing on the most important aspects. Keep it concise (3-5 sentences).`, pointsJSON)

	text, err := c.complete(ctx, summarySystemPrompt, prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// GenerateTags asks the model for 5-10 topic tags covering the point set.
func (c *Client) GenerateTags(ctx context.Context, pts []point.Point) ([]string, error) {
	if len(pts) == 0 {
		return nil, nil
	}

	pointsJSON, err := json.Marshal(pts)
	if err != nil {
		return nil, fmt.Errorf("marshal points: %w", err)
	}

	prompt := fmt.Sprintf(`Here is a list of legislative points extracted from a document:
%s

Generate 5-10 relevant tags or keywords that best represent the subject matter of this legislation: specific topics, policy areas, affected sectors, key themes. Return the tags as a JSON array of strings, each a single word or short phrase (1-3 words).`, pointsJSON)

	text, err := c.complete(ctx, summarySystemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	return parseTags(text), nil
}

// parseTags accepts a JSON string array, falling back to comma splitting
// when the model returns loose text.
func parseTags(text string) []string {
	text = stripCodeBlock(text)

	var tags []string
	if err := json.Unmarshal([]byte(text), &tags); err == nil {
		return cleanEntities(tags)
	}

	text = strings.NewReplacer("[", "", "]", "", `"`, "", "'", "").Replace(text)
	var out []string
	for _, t := range strings.Split(text, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
