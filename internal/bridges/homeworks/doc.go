// Package homeworks implements the integration protocol client for
// Lutron Homeworks QS/QSX processors.
//
// The processor speaks a line-oriented telnet protocol on port 23:
// commands go out as "?OUTPUT,5,1" (query) or "#OUTPUT,5,1,75" (execute),
// and the processor answers with "~OUTPUT,5,1,75.00" lines. The hard part
// is that the same "~" lines also arrive unsolicited whenever anything in
// the building changes state, interleaved on the one stream with the
// replies to our own commands.
//
// The package is organised around that hazard:
//
//   - Client (client.go) owns the TCP session: login handshake,
//     keepalives, receive loop, reconnection with backoff.
//   - lineFramer (framer.go) turns the byte stream into protocol lines,
//     tolerating partial reads and split terminators.
//   - correlator (correlator.go) classifies every line as a reply to a
//     pending command or an unsolicited event. A single goroutine owns
//     the pending set; matching is structural (command family plus echoed
//     address fields) with oldest-first tie-breaking.
//   - session (session.go) is the single-writer command queue: bounded
//     submissions, in-flight limiting, per-command timeouts, and settle
//     windows for commands the processor never acknowledges.
//   - Registry (events.go) fans unsolicited events out to subscribers
//     with bounded buffers and a drop-oldest overflow policy.
//   - Command constructors (command.go) cover outputs, areas, shade
//     groups and system state, each carrying its own reply decoder.
//
// Typical use:
//
//	client, err := homeworks.New(homeworks.Config{
//	    Host:     "192.168.1.50",
//	    Username: "integration",
//	    Password: "secret",
//	}, logger)
//	if err != nil { ... }
//	if err := client.Start(ctx); err != nil { ... }
//	defer client.Close()
//
//	level, err := client.Submit(ctx, homeworks.QueryOutputLevel(5))
//
//	sub := client.Subscribe(homeworks.FilterFamily(homeworks.FamilyOutput))
//	for ev := range sub.C() { ... }
package homeworks
