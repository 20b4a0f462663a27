package session

import "github.com/chromedp/chromedp"

// UserAgent is presented both by the bootstrap browser and by the scraping
// client, so the site sees one consistent client.
const UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// browserFlags returns allocator options for a fast, quiet bootstrap pass.
func browserFlags(headless bool) []chromedp.ExecAllocatorOption {
	return append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),

		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-extensions", true),

		// The page only needs to hand over cookies and a meta tag.
		chromedp.Flag("disable-images", true),
		chromedp.Flag("disable-audio-output", true),

		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-logging", true),
		chromedp.Flag("log-level", "3"),

		chromedp.Flag("user-agent", UserAgent),
	)
}
