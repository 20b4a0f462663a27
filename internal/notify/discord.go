// Package notify delivers deal alerts to the outside world: a Discord
// webhook message per qualifying deal, and an optional local sound for the
// ones worth getting up for. Delivery is best effort; a lost notification
// never fails a watch cycle.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/shopspring/decimal"
)

// Deal is the alert payload for one profitable listing. Profit fields are
// nil when the corresponding keyshop had no matching offer.
type Deal struct {
	Name          string
	Price         decimal.Decimal // listing price, USD
	KinguinProfit *decimal.Decimal
	G2AProfit     *decimal.Decimal
	DRM           string
	URL           string
}

// Discord posts deal embeds to a webhook.
type Discord struct {
	session *discordgo.Session
	id      string
	token   string
	logger  *slog.Logger
}

// NewDiscord builds a webhook notifier from a full webhook URL of the form
// https://discord.com/api/webhooks/{id}/{token}.
func NewDiscord(webhookURL string, logger *slog.Logger) (*Discord, error) {
	id, token, err := parseWebhookURL(webhookURL)
	if err != nil {
		return nil, err
	}

	// Webhook execution needs no bot token; an unauthenticated session
	// carries the HTTP plumbing.
	session, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}

	return &Discord{session: session, id: id, token: token, logger: logger}, nil
}

func parseWebhookURL(raw string) (id, token string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("parsing webhook URL: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	// Expected path: api/webhooks/{id}/{token}.
	if len(parts) < 4 || parts[len(parts)-4] != "api" || parts[len(parts)-3] != "webhooks" {
		return "", "", fmt.Errorf("webhook URL %q does not match /api/webhooks/{id}/{token}", raw)
	}
	return parts[len(parts)-2], parts[len(parts)-1], nil
}

// Notify posts one embed for the deal. Errors are logged and swallowed.
func (d *Discord) Notify(ctx context.Context, deal Deal) {
	embed := buildEmbed(deal)
	_, err := d.session.WebhookExecute(d.id, d.token, false, &discordgo.WebhookParams{
		Embeds: []*discordgo.MessageEmbed{embed},
	}, discordgo.WithContext(ctx))
	if err != nil {
		d.logger.ErrorContext(ctx, "discord notification failed",
			slog.String("deal", deal.Name),
			slog.String("error", err.Error()),
		)
		return
	}
	d.logger.InfoContext(ctx, "discord notification sent",
		slog.String("deal", deal.Name),
	)
}

// buildEmbed renders the alert embed. Profit fields use diff-style code
// blocks so gains show green and losses red in the Discord client.
func buildEmbed(deal Deal) *discordgo.MessageEmbed {
	fields := []*discordgo.MessageEmbedField{
		{
			Name:   "Current Price",
			Value:  fmt.Sprintf("$%s", deal.Price.StringFixed(2)),
			Inline: true,
		},
		{
			Name:   "Platform",
			Value:  deal.DRM,
			Inline: true,
		},
	}
	if deal.KinguinProfit != nil {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:  "Kinguin Profit",
			Value: profitBlock(*deal.KinguinProfit),
		})
	}
	if deal.G2AProfit != nil {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:  "G2A Profit",
			Value: profitBlock(*deal.G2AProfit),
		})
	}

	return &discordgo.MessageEmbed{
		Title:  deal.Name,
		URL:    deal.URL,
		Color:  0x2ecc71,
		Fields: fields,
	}
}

func profitBlock(profit decimal.Decimal) string {
	sign := "+"
	if profit.IsNegative() {
		sign = "" // the minus sign is already part of the number
	}
	return fmt.Sprintf("```diff\n%s%s PLN\n```", sign, profit.StringFixed(2))
}
