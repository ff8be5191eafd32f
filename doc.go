// Package splatgo is an explicit-point scene representation core for
// 3D Gaussian splatting pipelines.
//
// Splatgo owns the trainable point population and everything that mutates
// it: a columnar SoA point store, per-attribute Adam optimizers kept in
// lock-step with structural edits, a density-control engine (split,
// duplicate, cull, opacity reset on the reference schedule), an incremental
// growth port for streaming capture, a rasterizer-agnostic projection
// adapter, a multi-resolution semantic feature field, scale-conditioned
// relevancy queries, and compressed checkpointing to pluggable blob stores.
//
// # Quick Start
//
//	ctx := context.Background()
//	model, _ := splatgo.New(rasterizer,
//	    splatgo.WithSeed(42),
//	    splatgo.WithBlobStore(blobstore.NewMemoryStore()),
//	)
//	_ = model.SeedFromCloud(points, colors)
//
//	for !done {
//	    frame, _ := model.Render(ctx, cam)
//	    grads := backward(frame, target) // caller-supplied autodiff
//	    _ = model.RecordFrame(grads.ScreenGrads, frame.Radii, cam.Width, cam.Height)
//	    _ = model.ApplyGradients(grads.ByAttribute)
//	    _, _ = model.EndIteration(ctx)
//	}
//
//	name, _ := model.Save(ctx)
//	_ = model.Load(ctx, name)
//
// # Division of Labor
//
// Splatgo deliberately excludes the differentiable rasterization kernel and
// the autodiff loop. Callers bring a render.Rasterizer (CUDA, Metal, WebGPU,
// a software reference) and drive training; splatgo guarantees that the
// store, its optimizer moments and the densification statistics never
// disagree about the population, no matter how the population mutates.
//
// # Semantic Queries
//
// Each point carries a position-derived hash-grid feature. Rendering those
// features per pixel and decoding them at a ladder of physical scales yields
// language-relevancy maps:
//
//	_ = model.SetPhrases(positives, negatives)
//	res, _ := model.MaxAcross(ctx, cam)
//	sel, _ := model.CropToPhrase(ctx, 0.5) // restrict rendering to matches
//	row, pos, _ := model.Localize(ctx)     // single best point
//
// # Checkpoints
//
// Save writes a zstd-compressed (optionally lz4) columnar snapshot with a
// CRC-32C trailer to the configured blobstore.Store: in-memory, local disk,
// S3, MinIO, or S3 with DynamoDB commit pointers. Load verifies before it
// touches the store.
//
// Subpackages:
//
//   - gaussian: columnar point store (SoA, append/compact/resize)
//   - optim: Adam and the store/optimizer synchronizer
//   - refine: density-control engine and densification statistics
//   - growth: incremental growth port with headroom culls
//   - render: camera model, projection adapter, rasterizer contract
//   - field: hash-grid encoder and scale-conditioned decoder
//   - relevancy: phrase scoring, scale-ladder scans, point selection
//   - checkpoint: snapshot wire format and codecs
//   - blobstore: storage backends for snapshots
//   - resource: population caps, growth rate limits, job budgets
//   - sh: spherical-harmonics color utilities
package splatgo
