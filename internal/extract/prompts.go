package extract

import (
	"fmt"
	"strings"

	"github.com/showscout/scout-cli/internal/model"
)

// showSchema is shared by the image and text show prompts. The model is
// told to return null for anything it cannot read; the engine only
// validates ranges.
const showSchema = `Return ONLY a JSON object with exactly these keys (use null for anything not present):
{
  "venue": string or null,
  "address": string or null,
  "city": string or null,
  "state": string or null,
  "zip": string or null,
  "lat": number or null,
  "lng": number or null,
  "day": string or null,
  "start_time": string or null (24h "HH:MM"),
  "end_time": string or null (24h "HH:MM"),
  "dj_name": string or null,
  "venue_phone": string or null,
  "venue_website": string or null,
  "confidence": number between 0 and 1
}
Never guess coordinates. Never invent a venue name. No prose, no markdown fences.`

const showImageSystem = `You read event flyers and promotional images for karaoke shows. ` +
	`Extract the venue, schedule and host details that are actually visible in the image.`

const showTextSystem = `You read scraped web page text for karaoke show listings. ` +
	`Extract the venue, schedule and host details that are actually stated in the text.`

const popupSystem = `You classify overlay dialogs on scraped web pages from a screenshot or HTML fragment.`

const popupSchema = `Return ONLY a JSON object:
{
  "kind": one of "login_wall", "cookie_consent", "notification_prompt", "age_gate", "none",
  "dismissible": boolean,
  "confidence": number between 0 and 1
}
No prose, no markdown fences.`

const groupNameSystem = `You extract the name of the community group or page that published scraped social content.`

const groupNameSchema = `Return ONLY a JSON object:
{
  "group_name": string or null,
  "confidence": number between 0 and 1
}
No prose, no markdown fences.`

// systemPrompt returns the system prompt for a prompt kind.
func systemPrompt(kind model.PromptKind) string {
	switch kind {
	case model.PromptShowImage:
		return showImageSystem
	case model.PromptShowText:
		return showTextSystem
	case model.PromptGeoCompletion:
		return geoCompletionSystem
	case model.PromptPopupClassify:
		return popupSystem
	case model.PromptGroupName:
		return groupNameSystem
	default:
		return showTextSystem
	}
}

// userPrompt builds the user message content for a single-target job.
func userPrompt(job model.ExtractionJob) string {
	switch job.Prompt {
	case model.PromptShowImage:
		return "Extract the karaoke show details from this flyer.\n\n" + showSchema
	case model.PromptShowText:
		var b strings.Builder
		b.WriteString("Extract the karaoke show details from this page text.\n\n")
		b.WriteString(showSchema)
		b.WriteString("\n\nPAGE TEXT:\n")
		b.WriteString(truncate(job.Target.Text, maxPromptChars))
		return b.String()
	case model.PromptPopupClassify:
		return "Classify the overlay shown in this HTML fragment.\n\n" + popupSchema +
			"\n\nHTML:\n" + truncate(job.Target.Text, maxPromptChars)
	case model.PromptGroupName:
		return "Identify the group or page name from this content.\n\n" + groupNameSchema +
			"\n\nCONTENT:\n" + truncate(job.Target.Text, maxPromptChars)
	default:
		return showSchema
	}
}

const geoCompletionSystem = `You complete missing geographic fields for known karaoke venues. ` +
	`You only fill fields you are confident about from public knowledge of the venue; otherwise return null.`

// maxPromptChars bounds how much scraped text rides along in one prompt.
const maxPromptChars = 12000

// geoCompletionPrompt renders up to geoBatchSize incomplete records into a
// single completion request keyed by index.
func geoCompletionPrompt(records []model.ShowRecord) string {
	var b strings.Builder
	b.WriteString("Complete the missing geographic fields for these venues. ")
	b.WriteString("Return ONLY a JSON object of the form:\n")
	b.WriteString(`{"records": [{"index": 0, "address": string or null, "city": string or null, "state": string or null, "zip": string or null, "lat": number or null, "lng": number or null, "confidence": number between 0 and 1}]}`)
	b.WriteString("\nInclude one entry per input index. Use null for anything you do not know. No prose, no markdown fences.\n\nVENUES:\n")
	for i, r := range records {
		fmt.Fprintf(&b, "%d. venue=%q", i, r.Venue)
		if r.Address != "" {
			fmt.Fprintf(&b, " address=%q", r.Address)
		}
		if r.City != "" {
			fmt.Fprintf(&b, " city=%q", r.City)
		}
		if r.State != "" {
			fmt.Fprintf(&b, " state=%q", r.State)
		}
		if r.Zip != "" {
			fmt.Fprintf(&b, " zip=%q", r.Zip)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
