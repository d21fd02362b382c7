// Package cardmaker renders declarative card templates into print-ready
// artifacts using headless Chrome.
//
// A card template is an HTML/CSS document with placeholder tokens
// ({{field}}, {{image:slot}}, {icon:name}). The package hydrates templates
// with tabular row data, renders each card through a bounded pool of
// browser pages, and composes the results into PNG sets, print PDFs with
// crop marks, or sprite sheets for tabletop-simulation tools.
//
// # Pipeline
//
//  1. Dimension resolution: named presets or custom inches to CSS px and
//     output px at the 300 DPI render scale (dimensions.go)
//  2. Template hydration: token substitution, HTML escaping, inline
//     emphasis (hydrate.go)
//  3. Rendering: headless Chrome page pool via go-rod (pool.go, render.go)
//  4. Composition: PDF page layout (compose_pdf.go) or sprite-sheet grid
//     (compose_sprite.go)
//
// # Quick Start
//
// Construct a Service once per process and pass it around explicitly:
//
//	svc := cardmaker.New(
//	    cardmaker.WithTemplateStore(templates),
//	    cardmaker.WithArtworkStore(artwork),
//	)
//	defer svc.Close()
//
//	dataURL, err := svc.RenderPreview(ctx, cardmaker.PreviewRequest{
//	    TemplateID: "hero",
//	    Card:       cardmaker.CardData{"Title": "Ace"},
//	    Mapping:    cardmaker.FieldMapping{"name": "Title"},
//	})
//
// Exports run as asynchronous jobs; callers poll:
//
//	jobID, err := svc.Exporter().Submit(ctx, req)
//	job, ok := svc.Exporter().Job(jobID)
//
// # Concurrency
//
// The browser process and its pages are the only shared mutable resource.
// Preview batches fan out in parallel and are throttled to PagePoolSize by
// the pool's FIFO acquire discipline. Export jobs render strictly
// sequentially to bound memory and leave pool capacity for interactive
// previews. Job records are mutated only by the goroutine processing the
// job and are never evicted for the process lifetime (single-user desktop
// scope; a server deployment would need a TTL policy).
//
// # Browser Requirements
//
// Rendering requires Chrome/Chromium. go-rod downloads a managed Chromium
// on first run (~/.cache/rod/browser/). Set ROD_BROWSER_BIN to use a
// pre-installed binary; sandboxing is disabled automatically in CI and
// containerized environments.
package cardmaker
