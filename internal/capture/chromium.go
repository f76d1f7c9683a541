package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"

	appLog "citadash/internal/log"
)

// Default capture parameters for a landscape kiosk display.
const (
	DefaultWidth    = 1920
	DefaultHeight   = 1080
	DefaultTimeout  = 30 * time.Second
	DefaultSelector = `[data-ready="true"]`
)

var (
	ErrNoURL    = errors.New("capture: URL is required")
	ErrNoOutput = errors.New("capture: OutputPath is required")
)

// Options defines parameters for a Chromium-based screenshot capture.
type Options struct {
	// URL of the dashboard page to capture.
	URL string

	// OutputPath is where the PNG screenshot is written. Parent directories
	// are created as needed.
	OutputPath string

	// Width and Height are the viewport dimensions in pixels.
	Width  int
	Height int

	// Selector must become visible before the screenshot is taken; the page
	// exposes it once its data has loaded.
	Selector string

	// Timeout bounds the entire capture operation.
	Timeout time.Duration
}

// withDefaults validates opts and fills zero values.
func (o Options) withDefaults() (Options, error) {
	if o.URL == "" {
		return o, ErrNoURL
	}
	if o.OutputPath == "" {
		return o, ErrNoOutput
	}
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.Selector == "" {
		o.Selector = DefaultSelector
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o, nil
}

// CapturePNG launches a headless Chromium via chromedp, navigates to
// opts.URL, waits for opts.Selector to be visible and writes a full-page PNG
// screenshot to opts.OutputPath.
func CapturePNG(parentCtx context.Context, opts Options) error {
	opts, err := opts.withDefaults()
	if err != nil {
		return err
	}

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()

	// Apply timeout to the entire capture sequence.
	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	start := time.Now()
	var png []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		chromedp.Navigate(opts.URL),
		chromedp.WaitVisible(opts.Selector, chromedp.ByQuery),
		// Small extra delay to allow chart animations to settle.
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.FullScreenshot(&png, 100),
	}

	if err := chromedp.Run(ctx, tasks); err != nil {
		return fmt.Errorf("capture: chromedp run failed: %w", err)
	}

	if err := writeFileAtomic(opts.OutputPath, png); err != nil {
		return fmt.Errorf("capture: failed to write PNG: %w", err)
	}

	appLog.Info("snapshot captured", "output", opts.OutputPath, "bytes", len(png), "took", time.Since(start))
	return nil
}

// writeFileAtomic avoids serving a half-written preview.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*.png")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
