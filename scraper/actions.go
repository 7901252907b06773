package scraper

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/use-agent/harvest/models"
)

// actionTimeout is the per-action deadline.
const actionTimeout = 10 * time.Second

// executeActions runs the ordered list of browser actions on the page.
// Screenshot and pdf actions append their base64 artifact to the
// returned slice. If any action fails, the error reports which action
// failed and how many completed.
func executeActions(ctx context.Context, page *rod.Page, actions []models.Action) ([]string, error) {
	var artifacts []string
	for i, action := range actions {
		artifact, err := executeSingleAction(ctx, page, action)
		if err != nil {
			return artifacts, fmt.Errorf("action %d (%s) failed after %d completed: %w", i, action.Type, i, err)
		}
		if artifact != "" {
			artifacts = append(artifacts, artifact)
		}
	}
	return artifacts, nil
}

// executeSingleAction dispatches a single action with its own timeout.
func executeSingleAction(ctx context.Context, page *rod.Page, action models.Action) (string, error) {
	actionCtx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()

	p := page.Context(actionCtx)

	switch action.Type {
	case models.ActionWait:
		return "", execWait(p, action)
	case models.ActionClick:
		return "", execClick(p, action)
	case models.ActionScroll:
		return "", execScroll(p, action)
	case models.ActionExecuteJS:
		return "", execJS(p, action)
	case models.ActionScreenshot:
		return execScreenshot(p)
	case models.ActionPDF:
		return execPDF(p)
	default:
		return "", fmt.Errorf("unknown action type: %s", action.Type)
	}
}

// execWait either sleeps for a duration or waits for a CSS selector to appear.
func execWait(p *rod.Page, action models.Action) error {
	if action.Selector != "" {
		return p.WaitElementsMoreThan(action.Selector, 0)
	}
	if action.Milliseconds > 0 {
		d := time.Duration(action.Milliseconds) * time.Millisecond
		select {
		case <-time.After(d):
			return nil
		case <-p.GetContext().Done():
			return p.GetContext().Err()
		}
	}
	return nil
}

// execClick finds the element matching the selector and clicks it.
func execClick(p *rod.Page, action models.Action) error {
	if action.Selector == "" {
		return fmt.Errorf("click action requires a selector")
	}
	el, err := p.Element(action.Selector)
	if err != nil {
		return fmt.Errorf("element %q not found: %w", action.Selector, err)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

// execScroll scrolls the page up or down by the specified number of viewports.
func execScroll(p *rod.Page, action models.Action) error {
	amount := action.Amount
	if amount <= 0 {
		amount = 1
	}

	res, err := p.Eval(`() => window.innerHeight`)
	if err != nil {
		return fmt.Errorf("failed to get viewport height: %w", err)
	}
	viewportHeight := res.Value.Int()

	for i := 0; i < amount; i++ {
		var scrollDelta int
		if action.Direction == "up" {
			scrollDelta = -viewportHeight
		} else {
			scrollDelta = viewportHeight
		}

		if err := p.Mouse.Scroll(0, float64(scrollDelta), 0); err != nil {
			return fmt.Errorf("scroll step %d failed: %w", i, err)
		}

		// Brief pause between scroll steps to let lazy-loaded content trigger.
		time.Sleep(100 * time.Millisecond)
	}
	return nil
}

// execJS evaluates arbitrary JavaScript in the page context.
func execJS(p *rod.Page, action models.Action) error {
	if action.Code == "" {
		return fmt.Errorf("execute_js action requires code")
	}
	_, err := p.Eval(action.Code)
	return err
}

// execScreenshot captures the current viewport as a base64 PNG.
func execScreenshot(p *rod.Page) (string, error) {
	data, err := p.Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return "", fmt.Errorf("screenshot action: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// execPDF prints the current page to a base64 PDF.
func execPDF(p *rod.Page) (string, error) {
	stream, err := p.PDF(&proto.PagePrintToPDF{})
	if err != nil {
		return "", fmt.Errorf("pdf action: %w", err)
	}
	data, err := io.ReadAll(stream)
	if err != nil {
		return "", fmt.Errorf("pdf action: read stream: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
