// Package command implements the command-channel protocol shared by every
// agent plugin.
//
// A plugin owns one channel.Channel to the controller. On start it sends a
// single handshake frame (HandshakeByte), then reads opcode frames and routes
// each one through a HandlerTable. Opcodes without a registered handler go
// to the table's default arm, which logs and continues.
//
// Two loop modes exist. SingleShot handles one opcode, waits a grace period
// and returns; it is used by actions such as power control that end the
// session. Streaming keeps dispatching until a handler returns Stop, the
// channel closes, or the context is cancelled.
//
//	table := command.NewHandlerTable(nil)
//	table.Register(1, func(ctx context.Context, f command.Frame) (command.Action, error) {
//	    return command.Continue, nil
//	})
//	d := command.NewDispatcher(ch, table, command.DispatcherConfig{Name: "chat", Mode: command.Streaming})
//	err := d.Run(ctx)
//
// Plugins are created through a Loader, which maps plugin identifiers to
// factories and runs each instance in its own goroutine with a session ID
// attached to its context for log correlation.
package command
