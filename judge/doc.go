// Package judge provides judgment back-ends and composite strategies.
//
//   - Func adapts a plain Go function to core.Judge.
//   - Prompt asks a model.Model for a YES/NO verdict plus reasoning.
//   - Consensus runs several judges concurrently and votes (unanimous,
//     majority or threshold).
//   - Weighted runs several judges concurrently and aggregates their verdicts
//     by normalized weight.
//
// Composite judges are themselves core.Judge values, so they can be nested.
package judge
