// Package casesource provides core.CaseSource implementations: in-memory
// suites, YAML suite files and model-backed work functions.
package casesource
