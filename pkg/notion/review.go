package notion

import (
	"context"
	"fmt"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/showscout/scout-cli/internal/model"
)

// NeedsReview reports whether a show should land in the review queue:
// anything with unresolved conflicts, an error status, or confidence
// below the gate.
func NeedsReview(show model.ShowRecord, confidenceGate float64) bool {
	switch show.Status {
	case model.StatusConflict, model.StatusError, model.StatusSkipped:
		return true
	}
	return show.Confidence < confidenceGate
}

// BuildShowPage constructs a PageCreateRequest for one show in the review
// database. Conflicts are flattened into a single rich-text property so a
// reviewer sees the suggested corrections without leaving the page.
func BuildShowPage(dbID string, show model.ShowRecord) *notionapi.PageCreateRequest {
	props := notionapi.Properties{
		"Venue": notionapi.TitleProperty{
			Title: richText(show.Venue),
		},
		"Day": notionapi.SelectProperty{
			Select: notionapi.Option{Name: orDash(show.Day)},
		},
		"Start": notionapi.RichTextProperty{
			RichText: richText(show.StartTime),
		},
		"DJ": notionapi.RichTextProperty{
			RichText: richText(show.DJName),
		},
		"Address": notionapi.RichTextProperty{
			RichText: richText(formatAddress(show)),
		},
		"Status": notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(show.Status)},
		},
		"Confidence": notionapi.NumberProperty{
			Number: show.Confidence,
		},
	}

	if len(show.Conflicts) > 0 {
		props["Conflicts"] = notionapi.RichTextProperty{
			RichText: richText(formatConflicts(show.Conflicts)),
		}
	}
	if len(show.SourceURLs) > 0 {
		props["Source"] = notionapi.URLProperty{
			URL: show.SourceURLs[0],
		}
	}

	return &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(dbID),
		},
		Properties: props,
	}
}

// ExportReview pushes every show that needs review into the Notion review
// database. Individual page failures are logged and counted but don't stop
// the export.
func ExportReview(ctx context.Context, c Client, dbID string, shows []model.ShowRecord, confidenceGate float64) (int, error) {
	var exported, failed int
	for _, show := range shows {
		if !NeedsReview(show, confidenceGate) {
			continue
		}

		if _, err := c.CreatePage(ctx, BuildShowPage(dbID, show)); err != nil {
			if ctx.Err() != nil {
				return exported, eris.Wrap(ctx.Err(), "notion: export review")
			}
			failed++
			zap.L().Warn("notion: review page failed",
				zap.String("venue", show.Venue),
				zap.Error(err),
			)
			continue
		}
		exported++
	}

	if failed > 0 {
		return exported, eris.Errorf("notion: %d of %d review pages failed", failed, exported+failed)
	}
	return exported, nil
}

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{
		{Text: &notionapi.Text{Content: s}},
	}
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func formatAddress(show model.ShowRecord) string {
	parts := []string{show.Address, show.City, show.State, show.Zip}
	var nonEmpty []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, ", ")
}

func formatConflicts(conflicts []model.Conflict) string {
	var b strings.Builder
	for i, c := range conflicts {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s: %q -> %q (%s)", c.Field, c.Current, c.Suggested, c.Reason)
	}
	return b.String()
}
