package bot

import "strings"

const (
	defaultAnnouncerMessage = "Attention! {username} is now live with <{title} / {detail}> Watch here: {url}"
	defaultWelcomeMessage   = "Welcome <@!{memberid}>!"
)

// renderAnnouncement substitutes the announcement placeholders. An empty
// template falls back to the built-in default.
func renderAnnouncement(template, username, title, detail, url string) string {
	if template == "" {
		template = defaultAnnouncerMessage
	}
	return strings.NewReplacer(
		"{username}", username,
		"{title}", title,
		"{detail}", detail,
		"{url}", url,
	).Replace(template)
}

// renderWelcome substitutes the welcome placeholders.
func renderWelcome(template, memberName, memberID string) string {
	if template == "" {
		template = defaultWelcomeMessage
	}
	return strings.NewReplacer(
		"{membername}", memberName,
		"{memberid}", memberID,
	).Replace(template)
}
