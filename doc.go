// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package anvil is an embeddable HTTP/1.1 server engine.
//
// Connections are accepted by [acceptor.Acceptor]s and handed to a bounded
// [queue.Queue] of worker goroutines. Each worker reads one request off the
// socket with [wire.ReadRequest], resolves it through the [router.Router]
// pattern table and runs the matched filter chain and handler. Sockets
// which stay persistent are parked on a second queue until their next
// request arrives.
//
// The root package ties configuration and process concerns together:
//
//	builder := anvil.RecoverBuilder(anvil.Serve(server.Registry(reg)))
//	err := anvil.Run(ctx, builder, config.FromYaml(f), config.FromEnv("ANVIL_"))
//
// [Run] reads the config sources into a [server.Config], builds the
// [server.Engine] and runs it until ctx is done.
//
// [acceptor.Acceptor]: https://pkg.go.dev/github.com/z5labs/anvil/acceptor#Acceptor
// [queue.Queue]: https://pkg.go.dev/github.com/z5labs/anvil/queue#Queue
// [wire.ReadRequest]: https://pkg.go.dev/github.com/z5labs/anvil/wire#ReadRequest
// [router.Router]: https://pkg.go.dev/github.com/z5labs/anvil/router#Router
package anvil
