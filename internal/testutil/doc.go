// Package testutil contains helper builders and fakes used across tests to
// reduce boilerplate when constructing cases, results, judges, sinks and
// reporters. The helpers depend only on core so any package can use them in
// its tests. They are not intended for production usage.
package testutil
