// Package condition implements the small boolean expression language used to
// gate response variants and command cooldown escapes.
//
// A condition is text such as
//
//	{ismoderator} || {bits} >= 100
//
// made of string literals ('text'), integers, booleans (true/false), parameter
// references ({name} or {name:argument}) and the binary operators
// && || == != > < >= <=.
//
// The grammar has no precedence: an expression is an operand optionally
// followed by an operator and another full expression, so chains nest to the
// right. "a && b || c" is a && (b || c), and "x == y && z" is x == (y && z).
// Configuration written for the bot relies on this shape, so it is kept.
//
// Operands are coerced per operator: && and || turn strings into booleans
// (case-insensitive "true") and integers into booleans (> 0); ordering
// operators turn strings into integers (0 when not a number); == and !=
// compare values as they are, and values of different kinds are never equal.
//
// Conditions are compiled once by an Engine, which caches the resulting
// Predicate by its exact source text for the Engine's lifetime.
package condition
