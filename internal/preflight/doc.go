// Package preflight validates a machine before medrank serves requests.
//
// The package checks:
//   - Configuration validity, including ranking weights resolution
//   - Corpus presence and parseability
//   - Data directory write permissions and free disk space
//   - SQLite availability (pure-Go driver)
//   - LLM and embedder reachability (warnings only; both have fallbacks)
//
// Use the Checker type to run all validations:
//
//	checker := preflight.New()
//	results := checker.RunAll(ctx, cfg, projectPath)
//	if checker.HasCriticalFailures(results) {
//	    // Handle failures
//	}
//
// `medrank doctor` prints the results; serve and daemon run the checks
// once per data directory, gated by the marker file.
package preflight
