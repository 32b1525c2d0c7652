// Package domain contains the core business entities and types for PromptLoop.
//
// This package defines:
//   - Entity types (Iteration, ModelRun, Output, Judgment, Rubric)
//   - Value objects and enums
//   - The aggregated metrics payload and its merge semantics
//
// # Design Philosophy
//
// Domain types are persistence-agnostic and represent the core
// business concepts independent of how they are stored or transmitted.
//
// # Key Entities
//
//   - Iteration: One evaluation pass of a prompt version across models
//   - ModelRun: One (model, config, seed) execution within an iteration
//   - Output: One model response to one dataset case
//   - Judgment: One judge's pointwise or pairwise evaluation of an output
//   - Rubric: Weighted criteria the composite score is computed against
//   - IterationMetrics: The aggregation engine's computed payload
package domain
