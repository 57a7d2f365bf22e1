// Package results decodes SPARQL 1.1 JSON result documents and projects
// their bindings onto native Go values.
package results
