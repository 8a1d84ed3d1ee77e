package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/Rorqualx/captchagate/internal/crawl"
	"github.com/Rorqualx/captchagate/internal/intercept"
	"github.com/Rorqualx/captchagate/internal/types"
	"github.com/Rorqualx/captchagate/pkg/version"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	retryStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	rejectStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	bannerBox   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 2)
)

// printBanner prints the startup banner.
func printBanner(w io.Writer) {
	body := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("captchagate"),
		subtleStyle.Render("captcha interception for crawl pipelines"),
		subtleStyle.Render(version.Full()+" · "+version.GoVersion()),
	)
	fmt.Fprintln(w, bannerBox.Render(body))
}

func actionStyle(a intercept.Action) lipgloss.Style {
	switch a {
	case intercept.ActionRetry:
		return retryStyle
	case intercept.ActionReject:
		return rejectStyle
	default:
		return passStyle
	}
}

// renderSummary formats the hops of a fetch chain and how it ended.
func renderSummary(result *crawl.Result, fetchErr error) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(subtleStyle).
		Headers("#", "METHOD", "STATUS", "ATTEMPTS", "ACTION", "TIME", "URL")

	if result != nil {
		for i, hop := range result.Hops {
			t.Row(
				strconv.Itoa(i+1),
				hop.Method,
				strconv.Itoa(hop.Status),
				strconv.Itoa(hop.Attempts),
				actionStyle(hop.Action).Render(hop.Action.String()),
				hop.Duration.Round(time.Millisecond).String(),
				hop.URL,
			)
		}
	}

	var footer string
	var rej *types.RejectionError
	switch {
	case fetchErr == nil && result != nil && result.Block != nil:
		b := result.Block
		footer = retryStyle.Render("blocked: "+b.Code) + fmt.Sprintf(" %s (%s), retry after %s", b.Reason, b.Kind, b.RetryAfter)
	case fetchErr == nil && result != nil && result.Response != nil:
		footer = passStyle.Render(fmt.Sprintf("done: %d bytes from %s", len(result.Response.Body), result.Response.URL.Redacted()))
	case errors.As(fetchErr, &rej):
		footer = rejectStyle.Render("rejected: "+string(rej.Reason)) + " " + rej.Message
	case fetchErr != nil:
		footer = rejectStyle.Render("failed: ") + fetchErr.Error()
	}

	return lipgloss.JoinVertical(lipgloss.Left, t.String(), footer)
}
