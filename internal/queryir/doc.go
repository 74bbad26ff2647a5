// Package queryir is a small query language over the facts of a
// recorded run.
//
// A query selects facts of one record type, filters them on field
// values and binds fields to variables. Joins combine a query with a
// further Select; the right side may compare its fields to variables
// the left side bound. Every query yields rows of bindings
// (variable name → value).
//
// QUERY NODES:
//
//	Select(type, filter, bindings)  facts of exactly one record type
//	Join(left, right, on)           inner join; right must be a Select
//
// PREDICATES:
//
//	Equals(field, value)            field = literal
//	BoundEquals(field, var)         field = variable bound on the left
//	And(predicates...)              conjunction (empty = true)
//
// FIELD PATHS:
//
// Fields are named by dotted paths into the fact's fields ("customer",
// "address.city"). The path "$id" is the fact id. A reference field
// compares to a fact id through its "$ref" member, so
//
//	BoundEquals{Field: "order.$ref", BoundVar: "orderID"}
//
// matches invoices whose order field refers to the fact bound to
// orderID by {"$id": "orderID"}. Equals against an ir.IRRef does this
// automatically.
//
// SEALED INTERFACES:
//
// Query and Predicate are sealed with marker methods, so backends can
// switch over them exhaustively:
//
//	switch q := query.(type) {
//	case Select, *Select:
//	case Join, *Join:
//	}
//
// Queries only ever read working-memory facts: facts that were created
// but never inserted are invisible to them.
package queryir
