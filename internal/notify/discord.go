package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	domain "github.com/RaydowCharole/AppStoreIapScript/pkg/types"
)

const (
	colorGreen  = 0x2ECC71 // every item succeeded
	colorYellow = 0xF1C40F // some items degraded
	colorRed    = 0xE74C3C // at least one item failed

	// Discord allows at most 25 fields per embed; one is kept for the overflow
	// line.
	maxItemFields = 24
)

// DiscordNotifier implements Notifier via Discord webhook.
type DiscordNotifier struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordNotifier creates a new DiscordNotifier.
func NewDiscordNotifier(webhookURL string, opts ...DiscordOption) *DiscordNotifier {
	d := &DiscordNotifier{
		webhookURL: webhookURL,
		client:     http.DefaultClient,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DiscordOption configures a DiscordNotifier.
type DiscordOption func(*DiscordNotifier)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) DiscordOption {
	return func(d *DiscordNotifier) {
		d.client = c
	}
}

// discordWebhookPayload is the Discord webhook JSON structure.
type discordWebhookPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Title       string              `json:"title"`
	Color       int                 `json:"color"`
	Description string              `json:"description,omitempty"`
	Fields      []discordEmbedField `json:"fields,omitempty"`
	Footer      *discordFooter      `json:"footer,omitempty"`
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordFooter struct {
	Text string `json:"text"`
}

// SendBatchSummary posts the batch outcome as a single Discord embed.
func (d *DiscordNotifier) SendBatchSummary(ctx context.Context, res *domain.BatchResult) error {
	payload := discordWebhookPayload{
		Embeds: []discordEmbed{buildSummaryEmbed(res)},
	}
	return d.post(ctx, payload)
}

func buildSummaryEmbed(res *domain.BatchResult) discordEmbed {
	s := res.Summary()
	embed := discordEmbed{
		Title: fmt.Sprintf("In-app purchases created: %d/%d", s.Success, s.Total),
		Color: summaryColor(s),
		Description: fmt.Sprintf(
			"App %s: %d succeeded (%d degraded), %d failed. Review submission is still manual.",
			res.AppID, s.Success, s.Degraded, s.Failed,
		),
		Footer: &discordFooter{Text: "run " + res.RunID},
	}

	limit := min(len(res.Items), maxItemFields)
	for i := range limit {
		embed.Fields = append(embed.Fields, itemField(&res.Items[i]))
	}
	if len(res.Items) > maxItemFields {
		embed.Fields = append(embed.Fields, discordEmbedField{
			Name:  "...",
			Value: fmt.Sprintf("and %d more items", len(res.Items)-maxItemFields),
		})
	}

	return embed
}

func itemField(item *domain.ItemResult) discordEmbedField {
	name := fmt.Sprintf("$%s (%s)", item.Price, item.Status)
	switch item.Status {
	case domain.StatusFailed:
		return discordEmbedField{Name: name, Value: item.ProductID + ": " + item.Error}
	default:
		return discordEmbedField{Name: name, Value: fmt.Sprintf("%s\nID %s", item.ProductID, item.IAPID), Inline: true}
	}
}

func summaryColor(s domain.Summary) int {
	switch {
	case s.Failed > 0:
		return colorRed
	case s.Degraded > 0:
		return colorYellow
	default:
		return colorGreen
	}
}

func (d *DiscordNotifier) post(ctx context.Context, payload discordWebhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		d.webhookURL,
		bytes.NewReader(body),
	)
	if err != nil {
		return fmt.Errorf("creating discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending discord webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("discord rate limited (429)")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("discord returned %d (body unreadable)", resp.StatusCode)
		}
		return fmt.Errorf("discord returned %d: %s", resp.StatusCode, respBody)
	}

	return nil
}
