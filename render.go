package cardmaker

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"github.com/disintegration/imaging"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Compile-time interface checks.
var (
	_ SurfaceFactory = (*rodFactory)(nil)
	_ Surface        = (*rodSurface)(nil)
)

// networkIdleWindow is how long the network must stay quiet before a page
// with remote image slots is considered fully loaded.
const networkIdleWindow = 300 * time.Millisecond

// defaultRenderTimeout bounds a single render so one bad template or image
// cannot hang the whole pool.
const defaultRenderTimeout = 30 * time.Second

// rodFactory launches and owns one headless Chromium process via go-rod.
// Rod automatically downloads a managed Chromium on first run.
type rodFactory struct {
	timeout time.Duration
	browser *rod.Browser
}

func newRodFactory(timeout time.Duration) *rodFactory {
	if timeout <= 0 {
		timeout = defaultRenderTimeout
	}
	return &rodFactory{timeout: timeout}
}

// Start launches the browser process and connects to it.
func (f *rodFactory) Start() error {
	l := launcher.New().Headless(true)

	// Use a pre-installed browser if specified (Docker/containerized
	// environments); sandboxing is unavailable there.
	if bin := os.Getenv("ROD_BROWSER_BIN"); bin != "" {
		l = l.Bin(bin)
	}
	if os.Getenv("CI") == "true" || os.Getenv("ROD_BROWSER_BIN") != "" {
		l = l.NoSandbox(true)
	}

	u, err := l.Launch()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBrowserConnect, err)
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("%w: %v", ErrBrowserConnect, err)
	}
	f.browser = browser
	return nil
}

// Alive reports whether the browser process still answers.
func (f *rodFactory) Alive() bool {
	if f.browser == nil {
		return false
	}
	_, err := proto.BrowserGetVersion{}.Call(f.browser)
	return err == nil
}

// Stop closes the browser process.
func (f *rodFactory) Stop() error {
	if f.browser == nil {
		return nil
	}
	err := f.browser.Close()
	f.browser = nil
	return err
}

// NewSurface opens a fresh blank page.
func (f *rodFactory) NewSurface() (Surface, error) {
	if f.browser == nil {
		return nil, ErrBrowserConnect
	}
	page, err := f.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSurfaceCreate, err)
	}
	return &rodSurface{page: page, timeout: f.timeout}, nil
}

// rodSurface wraps one browser page.
type rodSurface struct {
	page    *rod.Page
	timeout time.Duration
}

// Render loads the document into the page at the card's CSS size and
// device scale, waits for load plus network idle, and captures exactly the
// (0,0)-(widthCss,heightCss) region as a PNG.
func (s *rodSurface) Render(ctx context.Context, html string, dims ResolvedCardDimensions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	timeout := s.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return nil, context.DeadlineExceeded
		}
	}

	if err := s.page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             dims.WidthCSS,
		Height:            dims.HeightCSS,
		DeviceScaleFactor: RenderScale,
		Mobile:            false,
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPageLoad, err)
	}

	// Subscribe to request-idle before setting content so image fetches
	// triggered by the new document are tracked.
	waitIdle := s.page.Timeout(timeout).WaitRequestIdle(networkIdleWindow, nil, nil, nil)

	if err := s.page.SetDocumentContent(html); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPageLoad, err)
	}
	if err := s.page.Timeout(timeout).WaitLoad(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPageLoad, err)
	}
	waitIdle()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	capture, err := s.page.Timeout(timeout).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
		Clip: &proto.PageViewport{
			X:      0,
			Y:      0,
			Width:  float64(dims.WidthCSS),
			Height: float64(dims.HeightCSS),
			Scale:  1,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCapture, err)
	}
	return capture, nil
}

// Close releases the page.
func (s *rodSurface) Close() error {
	return s.page.Close()
}

// exportPNG normalizes a raw capture for export: resample to the exact
// output pixel size and tag the print density so downstream tools read the
// file as 300 DPI.
func exportPNG(raw []byte, dims ResolvedCardDimensions) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}
	img = imaging.Resize(img, dims.WidthPx, dims.HeightPx, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCapture, err)
	}
	return setPNGDensity(buf.Bytes(), TargetDPI), nil
}

// previewDataURL wraps a raw capture as a base64 data URL. Previews skip
// the resample and density tagging for speed.
func previewDataURL(raw []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(raw)
}

// renderCardBack loads a card back artwork file and resamples it to the
// card's output pixel size (cover fit, center crop). Card backs are plain
// images, not template renders.
func renderCardBack(path string, dims ResolvedCardDimensions) ([]byte, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCardBackNotFound, err)
	}
	img = imaging.Fill(img, dims.WidthPx, dims.HeightPx, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}
	return setPNGDensity(buf.Bytes(), TargetDPI), nil
}
