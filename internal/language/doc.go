// Package language resolves user-supplied target languages against BCP 47
// tags for display and validation.
//
// The value a user passes is sent to the translation service and used in
// output file names unchanged; this package only describes it.
package language
