package compiler

import (
	"go.uber.org/zap"

	"github.com/goliatone/go-tplc/pkg/optimize"
	"github.com/goliatone/go-tplc/pkg/validate"
)

const defaultName = "compile"

// Option customises a Compiler.
type Option[T any] func(*Compiler[T])

// WithPasses sets the optimisation chain applied to the raw stream.
func WithPasses[T any](chain optimize.Chain[T]) Option[T] {
	return func(c *Compiler[T]) {
		c.passes = chain
	}
}

// WithClassifier enables structural validation of the raw stream.
func WithClassifier[T any](classify validate.Classifier[T]) Option[T] {
	return func(c *Compiler[T]) {
		c.classify = classify
	}
}

// WithLogger routes session diagnostics to logger.
func WithLogger[T any](logger *zap.Logger) Option[T] {
	return func(c *Compiler[T]) {
		c.logger = logger
	}
}

// WithName labels the streams and log entries of every session.
func WithName[T any](name string) Option[T] {
	return func(c *Compiler[T]) {
		c.name = name
	}
}
