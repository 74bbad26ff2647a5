// Package engine implements the rulescript forward-chaining rule engine.
//
// A Database holds working memory (an id-indexed fact store), a match
// network compiled from rules, and the run state.
//
// NETWORK:
//
// Every inserted fact enters the root node, which hands it to each alpha
// node in registration order. An alpha node checks the fact's type and
// its pattern condition, binds the fact, and forwards a new token. A
// rule with several patterns chains join nodes: the left port of each
// join receives the partial matches built so far and the right port the
// next pattern's tokens. A join keeps one memory per port and pairs every
// arriving token with the other side's memory, in memory order. The last
// node of a rule is its terminal node, which queues an activation.
//
// OVERRIDE:
//
// Re-inserting a fact (after an update) produces tokens with the same key
// as before: the same node and the same constituent facts. A join drops
// the older token before pairing the new one, and a terminal node skips
// queued activations whose match has been replaced. Updates therefore
// supersede their earlier contribution instead of adding to it.
//
// PHASES:
//
// The run state is one value: Idle, Matching or Acting. Conditions run
// while Matching and may not change working memory. Activations found by
// a matching pass fire afterwards, one at a time, with the state set to
// Acting. Only then may facts be inserted or updated. A nested insert
// runs its own pass and fires its own activations before returning, so a
// run is a depth-first walk to the fixpoint.
//
// TERMINATION:
//
// The engine has no cycle detection. A rule set that keeps re-triggering
// itself hits the insert depth bound (WithMaxDepth) or the activation
// quota (WithMaxSteps) and FireRules fails with an error.
//
// DETERMINISM:
//
// Memory order is arrival order, child order is registration order and
// activations fire in the order they were found. The same rules and the
// same inserts always fire the same actions in the same order.
package engine
