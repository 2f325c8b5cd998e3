// Package expr resolves scoped variable references and evaluates the small
// arithmetic/logical expression language used by rules.
//
// Resolution is two-phase:
//
//  1. Substitution. The innermost $( … ) group is resolved first and the
//     scan repeats until no "$(" remains. A group holding a single
//     reference (self.path, other.path, global.path) becomes the scalar read
//     from that scope's document; any other group is evaluated and replaced
//     by the formatted result. Missing references become "0".
//
//  2. Evaluation. The substituted text is evaluated as a number. Booleans
//     are 0/1. Evaluation never fails from the caller's point of view:
//     syntax errors, unknown names, division by zero and non-finite results
//     all yield 0.
//
// Example:
//
//	r := expr.NewResolver(self, other, global)
//	r.Eval("$( $(self.X) - $(other.X) )") // 15 when self.X=25, other.X=10
package expr
