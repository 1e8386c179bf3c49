// Package markup is the reference front-end: it reads HTML annotated with
// `${…}` expressions and `data-sly-*` block attributes and emits the command
// vocabulary onto a stream.
//
// Block attributes:
//   - data-sly-test[.var]: render the element when the expression is truthy
//   - data-sly-list[.item]: repeat the element content per list item
//   - data-sly-text: replace the content with an escaped expression
//   - data-sly-include: replace the content with another unit
//   - data-sly-template.name: declare a procedure; parameters are the options
//   - data-sly-call: replace the content with a procedure call
//   - data-sly-unwrap[=expr]: drop the element tags, keeping the content
//
// `<sly>` elements never produce tags. Comments of the form `<!--/* … */-->`
// are removed.
package markup
