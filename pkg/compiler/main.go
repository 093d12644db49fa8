// Package compiler provides a C-subset preprocessor, lexer, parser and
// code generator that targets Intel-syntax x86-64 assembly.
//
// Pipeline: C source → Preprocess → Lex → Parse (with type resolution) →
// Prune → Generate → assembly text for the ccvm interpreter.
package compiler
