// Package rigging provides declarative chat-bot automation machinery.
//
// The action and handler plumbing is in package 'core', the expression
// evaluator is in 'expr', and some command-line tools are in `cmd`.
//
// See https://github.com/Comcast/rigging/blob/master/README.md for more.
package rigging
