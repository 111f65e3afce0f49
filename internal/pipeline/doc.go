// Package pipeline orchestrates the build of a repository into an image.
//
// A [Request] captures the configuration of one invocation; it is mutated
// only while it is being configured and validated, and is read-only once
// [Pipeline.Execute] begins. Execution is a strictly ordered sequence of
// stages: fetch the repository, compose the applicable buildpacks, render
// the build context, build, optionally push, optionally run, and clean up.
// Any stage failure stops the pipeline; cleanup of the build context and
// of fetched checkouts runs on success and failure alike. A dry run stops
// after rendering without touching the engine.
//
// Example usage:
//
//	req := pipeline.NewRequest("https://example.com/repo.git")
//	if err := pipeline.New(req, stacks.Default()).Execute(ctx); err != nil {
//	    os.Exit(1)
//	}
package pipeline
