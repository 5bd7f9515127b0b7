// Package mbc implements the multi-turn agent conversation protocol: a
// session run-loop that drives a chat-completion provider, executes the
// tool calls the model requests, and accounts for turns, tokens and cost.
//
// The package owns the protocol machinery only. Providers, persistence,
// event broadcasting and background execution are injected through small
// interfaces (Provider, Store, Sink, Queue) so the core never depends on
// a concrete backend.
package mbc
